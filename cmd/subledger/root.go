package main

import (
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/subledger/pkg/config"
)

func newRootCmd() *cobra.Command {
	var envFiles []string

	rootCmd := &cobra.Command{
		Use:           "subledger",
		Short:         "Subscription ledger and background scheduling engine",
		Long:          "subledger sells time and traffic limited subscriptions against a prepaid wallet, provisions them on the panel and keeps them in shape with background jobs.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return config.LoadEnvFiles(envFiles...)
		},
	}
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before reading the environment")

	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newBackupCmd(),
		newSeedCmd(),
		newVersionCmd(),
	)
	return rootCmd
}
