package channel

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/markusressel/heat2go/internal"
	"github.com/markusressel/heat2go/internal/persistence"
	"github.com/markusressel/heat2go/internal/thermal"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/spf13/cobra"
)

var (
	autotuneTarget float64
	autotuneCycles int
	autotuneMethod string
	autotuneSave   bool
)

var autotuneCmd = &cobra.Command{
	Use:   "autotune",
	Short: "Autotunes a channel of the simulated printer",
	Long: `Runs a PID or MPC autotune on the simulated printer in virtual time
and prints the resulting constants. With --save the constants are stored
in the database and used by the daemon on its next start.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(channelId) == 0 {
			return errors.New("a channel id is required")
		}
		method, err := thermal.ParseAutotuneMethod(autotuneMethod)
		if err != nil {
			return err
		}
		config := loadConfig()

		var store thermal.ConstantsStore
		if autotuneSave {
			p := persistence.NewPersistence(config.DbPath)
			if err := p.Init(); err != nil {
				return err
			}
			store = p
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		ui.Info("Autotuning %s of channel %s at %.1f °C...", method, channelId, autotuneTarget)
		report, err := internal.AutotuneVirtual(ctx, config, channelId, thermal.AutotuneRequest{
			Target: autotuneTarget,
			Cycles: autotuneCycles,
			Method: method,
			Save:   autotuneSave,
		}, store)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(report.Constants, "", "  ")
		if err != nil {
			return err
		}
		ui.Printfln("%s", out)
		if report.Saved {
			ui.Info("Constants saved to %s", config.DbPath)
		}
		return nil
	},
}

func init() {
	autotuneCmd.Flags().Float64VarP(&autotuneTarget, "target", "t", 200, "Target temperature in °C")
	autotuneCmd.Flags().IntVarP(&autotuneCycles, "cycles", "n", thermal.DefaultAutotuneCycles, "Number of PID autotune cycles")
	autotuneCmd.Flags().StringVarP(&autotuneMethod, "method", "m", "pid", "Autotune method, one of: pid | mpc")
	autotuneCmd.Flags().BoolVarP(&autotuneSave, "save", "s", false, "Store the resulting constants in the database")
	Command.AddCommand(autotuneCmd)
}
