package channel

import (
	"errors"
	"fmt"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/markusressel/heat2go/internal"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/spf13/cobra"
)

var (
	simulateTarget   float64
	simulateDuration time.Duration
	simulateInterval time.Duration
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Heats a channel of the simulated printer and plots its temperature",
	Long: `Runs the simulated printer in virtual time, heats the given channel
to the target temperature and plots the temperature curve.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(channelId) == 0 {
			return errors.New("a channel id is required")
		}
		config := loadConfig()

		result, err := internal.Simulate(config, channelId, simulateTarget, simulateDuration, simulateInterval)
		if err != nil {
			return err
		}

		caption := fmt.Sprintf("%s °C, target %.1f, one point every %s", result.Channel, result.Target, result.Interval)
		graph := asciigraph.Plot(result.Temperatures, asciigraph.Height(15), asciigraph.Width(100), asciigraph.Caption(caption))
		ui.Printfln("%s", graph)

		if result.Fault != nil {
			ui.Error("Simulation halted: %s on %s: %s", result.Fault.Kind, result.Fault.Channel, result.Fault.Message)
			return nil
		}
		last := result.Temperatures[len(result.Temperatures)-1]
		ui.Success("Final temperature: %.2f °C", last)
		return nil
	},
}

func init() {
	simulateCmd.Flags().Float64VarP(&simulateTarget, "target", "t", 200, "Target temperature in °C")
	simulateCmd.Flags().DurationVarP(&simulateDuration, "duration", "d", 10*time.Minute, "Simulated time")
	simulateCmd.Flags().DurationVarP(&simulateInterval, "interval", "", time.Second, "Time between two plotted points")
	Command.AddCommand(simulateCmd)
}
