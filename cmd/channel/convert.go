package channel

import (
	"errors"
	"fmt"

	"github.com/markusressel/heat2go/internal/sensors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	rawValue     int
	celsiusValue float64
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Converts between raw readings and temperatures of a channel",
	Long: `Converts a raw (oversampled) reading of the given channel to °C,
or a temperature in °C to the raw reading the sensor would produce.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rawSet := cmd.Flags().Changed("raw")
		celsiusSet := cmd.Flags().Changed("celsius")
		if len(channelId) == 0 {
			return errors.New("a channel id is required")
		}
		if rawSet == celsiusSet {
			return errors.New("exactly one of --raw or --celsius is required")
		}

		pterm.DisableOutput()
		config := loadConfig()
		spec, err := getChannelSpec(channelId, config)
		if err != nil {
			return err
		}
		conversion := spec.Sensor.Conversion

		if rawSet {
			fmt.Printf("%.2f", conversion.Celsius(sensors.Raw(rawValue)))
		} else {
			fmt.Printf("%d", conversion.Raw(celsiusValue))
		}
		return nil
	},
}

func init() {
	convertCmd.Flags().IntVarP(&rawValue, "raw", "r", 0, "Raw reading to convert")
	convertCmd.Flags().Float64VarP(&celsiusValue, "celsius", "t", 0, "Temperature in °C to convert")
	Command.AddCommand(convertCmd)
}
