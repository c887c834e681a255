package channel

import (
	"bytes"
	"fmt"

	"github.com/markusressel/heat2go/cmd/global"
	"github.com/markusressel/heat2go/internal"
	"github.com/markusressel/heat2go/internal/thermal"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/mgutz/ansi"
	"github.com/spf13/cobra"
	"github.com/tomlazar/table"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print all configured channels to console",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config := loadConfig()
		thermalConfig, err := internal.NewThermalConfig(config)
		if err != nil {
			return err
		}

		var rows [][]string
		for _, spec := range thermalConfig.Channels {
			if len(channelId) > 0 && spec.Id != channelId {
				continue
			}
			rows = append(rows, channelRow(spec))
		}

		tab := table.Table{
			Headers: []string{"ID", "Kind", "Input", "Conversion", "Heater", "Control", "Min", "Max"},
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
	Command.AddCommand(listCmd)
}

func channelRow(spec thermal.ChannelSpec) []string {
	input := "-"
	switch {
	case spec.Sensor.AdcPin != nil:
		input = fmt.Sprintf("adc %d", *spec.Sensor.AdcPin)
	case spec.Sensor.Thermocouple != nil:
		input = fmt.Sprintf("%s cs %d", spec.Sensor.Thermocouple.Chip, spec.Sensor.Thermocouple.Cs)
	}

	heater := "-"
	control := "-"
	if spec.Heater != nil {
		heater = fmt.Sprintf("pin %d", spec.Heater.Pin)
		if spec.Heater.Slow {
			heater += " (slow)"
		}
		control = spec.Control.Kind.String()
	}
	if len(spec.RedundantOf) > 0 {
		control = fmt.Sprintf("redundant of %s", spec.RedundantOf)
	}

	return []string{
		spec.Id,
		spec.Kind.String(),
		input,
		spec.Sensor.Conversion.Kind().String(),
		heater,
		control,
		fmt.Sprintf("%.1f", spec.MinTemp),
		fmt.Sprintf("%.1f", spec.MaxTemp),
	}
}
