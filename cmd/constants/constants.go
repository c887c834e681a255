package constants

import (
	"github.com/markusressel/heat2go/cmd/global"
	"github.com/markusressel/heat2go/internal/configuration"
	"github.com/markusressel/heat2go/internal/persistence"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var channelId string

var Command = &cobra.Command{
	Use:              "constants",
	Short:            "Commands for the stored autotune results",
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

func openPersistence() (persistence.Persistence, error) {
	ui.SetDebugEnabled(global.Verbose)
	if global.NoColor {
		pterm.DisableColor()
	}

	configPath := configuration.DetectAndReadConfigFile()
	ui.Info("Using configuration file at: %s", configPath)

	p := persistence.NewPersistence(configuration.CurrentConfig.DbPath)
	if err := p.Init(); err != nil {
		return nil, err
	}
	return p, nil
}
