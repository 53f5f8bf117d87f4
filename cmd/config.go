package cmd

import (
	"github.com/spf13/cobra"

	"github.com/flowlens/flowlens/cfg"
	"github.com/flowlens/flowlens/printer"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect daemon configuration.",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the path to the daemon config file, creating it if absent.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.WriteDefault(); err != nil {
			return err
		}
		printer.Stdout.RawOutput(cfg.ConfigFilePath())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configPathCmd)
}
