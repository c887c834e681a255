package cmd

import (
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/spf13/cobra"
)

// set at build time with -ldflags "-X github.com/markusressel/heat2go/cmd.version=..."
var (
	version = "dev"
	commit  = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of heat2go",
	Long:  `All software has versions. This is heat2go's`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(commit) > 0 {
			ui.Printfln("%s (%s)", version, commit)
			return
		}
		ui.Printfln("%s", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
