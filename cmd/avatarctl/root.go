package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var recordingsFlag string

	ctx := newCommandContext(&configFlag, &recordingsFlag)

	rootCmd := &cobra.Command{
		Use:           "avatarctl",
		Short:         "Avatar Studio command line tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&recordingsFlag, "recordings", "", "Recordings directory (overrides config)")

	rootCmd.AddCommand(newDevicesCommand(ctx))
	rootCmd.AddCommand(newInspectCommand(ctx))
	rootCmd.AddCommand(newRecordingsCommand(ctx))

	return rootCmd
}
