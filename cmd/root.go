package cmd

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flowlens/flowlens/cmd/internal/cmderr"
	"github.com/flowlens/flowlens/printer"
	"github.com/flowlens/flowlens/util"
	"github.com/flowlens/flowlens/version"
)

var (
	debugFlag   bool
	verboseFlag int
)

var rootCmd = &cobra.Command{
	Use:           "flowlensd",
	Short:         "Real-time, per-core network traffic analysis daemon.",
	Long:          "flowlensd captures packets from a NIC, reassembles flows, identifies protocols, and dispatches matching traffic to subscribers.",
	Version:       version.DisplayString(),
	SilenceErrors: true, // We print our own errors from subcommands in Execute.
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func Execute() {
	if cmd, err := rootCmd.ExecuteC(); err != nil {
		if _, isFlowlensErr := err.(cmderr.FlowlensErr); !isFlowlensErr {
			cmd.Println(cmd.UsageString())
		}

		exitCode := 1
		var exitErr util.ExitError
		if isExitErr := errors.As(err, &exitErr); isExitErr {
			exitCode = exitErr.ExitCode
		}
		printer.Stderr.Errorf("%s\n", err)
		os.Exit(exitCode)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Output detailed debug logging.")
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.PersistentFlags().IntVarP(&verboseFlag, "verbose", "v", 0, "Verbosity level for datapath tracing (0 disables).")
	viper.BindPFlag("verbose-level", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
}
