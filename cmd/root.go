package cmd

import (
	"github.com/spf13/cobra"
	"media-orchestrator/config"
)

func Root(config *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "media-orchestrator",
		Short: "onboard uploaded media and track their unboxing jobs",
	}
	rootCmd.AddCommand(server(config))
	rootCmd.AddCommand(migrate(config))
	return rootCmd
}
