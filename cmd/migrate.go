package cmd

import (
	"context"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"media-orchestrator/config"
	"media-orchestrator/migration"
	"os"
)

func migrate(cfg *config.Config) *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
			ctx := logger.WithContext(context.Background())

			if err := config.PingDatabase(ctx, cfg.DB); err != nil {
				return err
			}
			if down {
				return migration.Down(ctx, cfg.DB)
			}
			return migration.Up(ctx, cfg.DB)
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "revert every migration instead")
	return cmd
}
