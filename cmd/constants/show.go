package constants

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/markusressel/heat2go/cmd/global"
	"github.com/markusressel/heat2go/internal/control_loop"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/mgutz/ansi"
	"github.com/spf13/cobra"
	"github.com/tomlazar/table"
	"golang.org/x/exp/maps"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored constants of all or one channel",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openPersistence()
		if err != nil {
			return err
		}

		stored, err := p.LoadAllConstants()
		if err != nil {
			return err
		}

		ids := maps.Keys(stored)
		sort.Strings(ids)

		var rows [][]string
		for _, id := range ids {
			if len(channelId) > 0 && id != channelId {
				continue
			}
			rows = append(rows, constantsRow(id, stored[id]))
		}
		if len(rows) == 0 {
			ui.Warning("No stored constants found")
			return nil
		}

		tab := table.Table{
			Headers: []string{"Channel", "Kind", "Constants"},
			Rows:    rows,
		}
		var buf bytes.Buffer
		tableErr := tab.WriteTable(&buf, &table.Config{
			ShowIndex:       false,
			Color:           !global.NoColor,
			AlternateColors: true,
			TitleColorCode:  ansi.ColorCode("white+buf"),
			AltColorCodes: []string{
				ansi.ColorCode("white"),
				ansi.ColorCode("white:236"),
			},
		})
		if tableErr != nil {
			return tableErr
		}
		ui.Printfln("%s", buf.String())
		return nil
	},
}

func init() {
	Command.AddCommand(showCmd)
}

func constantsRow(id string, c control_loop.Constants) []string {
	switch {
	case c.Pid != nil:
		return []string{id, "pid", fmt.Sprintf("Kp=%.3f Ki=%.3f Kd=%.3f Kc=%.3f", c.Pid.Kp, c.Pid.Ki, c.Pid.Kd, c.Pid.Kc)}
	case c.Mpc != nil:
		return []string{id, "mpc", fmt.Sprintf(
			"power=%.2fW capacity=%.3fJ/K responsiveness=%.4f/s transfer=%.4fW/K fan=%.4fW/K",
			c.Mpc.HeaterPower, c.Mpc.BlockHeatCapacity, c.Mpc.SensorResponsiveness,
			c.Mpc.AmbientXferCoeffFan0, c.Mpc.Fan255Adjustment,
		)}
	default:
		return []string{id, "-", "-"}
	}
}
