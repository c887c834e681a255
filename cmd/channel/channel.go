package channel

import (
	"fmt"

	"github.com/markusressel/heat2go/cmd/global"
	"github.com/markusressel/heat2go/internal"
	"github.com/markusressel/heat2go/internal/configuration"
	"github.com/markusressel/heat2go/internal/thermal"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var channelId string

var Command = &cobra.Command{
	Use:              "channel",
	Short:            "Thermal channel related commands",
	Long:             ``,
	TraverseChildren: true,
}

func init() {
	Command.PersistentFlags().StringVarP(
		&channelId,
		"id", "i",
		"",
		"Channel ID as specified in the config",
	)
}

func loadConfig() *configuration.Configuration {
	ui.SetDebugEnabled(global.Verbose)
	if global.NoColor {
		pterm.DisableColor()
	}

	configPath := configuration.DetectAndReadConfigFile()
	ui.Info("Using configuration file at: %s", configPath)
	err := configuration.Validate(configPath)
	if err != nil {
		ui.FatalWithoutStacktrace(err.Error())
	}
	return &configuration.CurrentConfig
}

func getChannelSpec(id string, config *configuration.Configuration) (*thermal.ChannelSpec, error) {
	thermalConfig, err := internal.NewThermalConfig(config)
	if err != nil {
		return nil, err
	}

	var availableChannelIds []string
	for _, spec := range thermalConfig.Channels {
		availableChannelIds = append(availableChannelIds, spec.Id)
		if spec.Id == id {
			return &spec, nil
		}
	}
	return nil, fmt.Errorf("no channel with id found: %s, options: %s", id, availableChannelIds)
}
