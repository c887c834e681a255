package config

import (
	"time"

	"github.com/markusressel/heat2go/internal/configuration"
	"github.com/markusressel/heat2go/internal/control_loop"
	"github.com/markusressel/heat2go/internal/sensors"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var exampleCmd = &cobra.Command{
	Use:   "example",
	Short: "Prints an example configuration of a simulated printer",
	Long:  ``,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(ExampleConfig())
		if err != nil {
			return err
		}
		ui.Printf("%s", out)
		return nil
	},
}

func init() {
	Command.AddCommand(exampleCmd)
}

// ExampleConfig is a hotend with a part cooling fan and a bed, both simulated.
func ExampleConfig() configuration.Configuration {
	adcPin := 1
	bedPin := 2
	return configuration.Configuration{
		DbPath: "/etc/heat2go/heat2go.db",
		Isr: configuration.IsrConfig{
			Frequency:         1000,
			Oversample:        16,
			SensorsReadyDwell: 2,
			AdcRange:          4096,
		},
		SoftPwm: configuration.SoftPwmConfig{
			MinStateTime: 16,
		},
		FaultConfirmations: 1,
		IdleInterval:       time.Millisecond,
		Channels: []configuration.ChannelConfig{
			{
				ID:   "hotend0",
				Kind: "hotend",
				Sensor: configuration.SensorConfig{
					AdcPin: &adcPin,
					SteinhartHart: &sensors.SteinhartHartParams{
						R25:            100000,
						Beta:           4092,
						SeriesResistor: 4700,
					},
				},
				Heater: &configuration.HeaterConfig{Pin: 10},
				Control: &configuration.ControlConfig{
					Kind: "pid",
					Pid:  &control_loop.PidConstants{Kp: 22.2, Ki: 1.08, Kd: 114},
					Fan:  "part",
				},
				MinTemp: 5,
				MaxTemp: 275,
				Runaway: &configuration.RunawayConfig{Period: 40 * time.Second, Hysteresis: 4},
				Watch:   &configuration.WatchConfig{Period: 20 * time.Second, Increase: 2},
				Sim: &configuration.SimConfig{
					Ambient:              20,
					HeaterPower:          40,
					HeatCapacity:         16.7,
					Transfer:             0.068,
					FanTransfer:          0.03,
					SensorResponsiveness: 0.22,
					Fan:                  "part",
				},
			},
			{
				ID:   "bed",
				Kind: "bed",
				Sensor: configuration.SensorConfig{
					AdcPin: &bedPin,
					Table:  &configuration.TableConfig{Builtin: "1"},
				},
				Heater: &configuration.HeaterConfig{Pin: 11, Slow: true},
				Control: &configuration.ControlConfig{
					Kind:       "bangBang",
					Hysteresis: 2,
				},
				MinTemp: 5,
				MaxTemp: 125,
				Runaway: &configuration.RunawayConfig{Period: 20 * time.Second, Hysteresis: 2},
				Sim: &configuration.SimConfig{
					Ambient:      20,
					HeaterPower:  200,
					HeatCapacity: 500,
					Transfer:     1.2,
				},
			},
		},
		Fans: []configuration.FanConfig{
			{ID: "part", Pin: 12},
			{
				ID:  "hotend-fan",
				Pin: 13,
				Auto: &configuration.AutoFanConfig{
					Channels:    []string{"hotend0"},
					Temperature: 50,
					Speed:       255,
				},
			},
		},
		Api: configuration.ApiConfig{
			Host: "localhost",
			Port: 9001,
		},
		Statistics: configuration.StatisticsConfig{
			Port: 9000,
		},
	}
}
