package constants

import (
	"errors"

	"github.com/markusressel/heat2go/internal/ui"
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Deletes the stored constants of a channel",
	Long: `Deletes the stored autotune result of a channel,
the daemon falls back to the configured constants on its next start.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(channelId) == 0 {
			return errors.New("a channel id is required")
		}
		p, err := openPersistence()
		if err != nil {
			return err
		}
		if err := p.DeleteConstants(channelId); err != nil {
			return err
		}
		ui.Success("Deleted stored constants of channel %s", channelId)
		return nil
	},
}

func init() {
	Command.AddCommand(deleteCmd)
}
