package cmd

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"recording-pipeline/config"
	"recording-pipeline/repository"
	server2 "recording-pipeline/server"
)

func migrate(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := server2.SetupLogger(config)
			repo, err := repository.NewRepo(config.DB)
			if err != nil {
				return err
			}
			if err := repo.AutoMigrate(ctx); err != nil {
				return err
			}
			zerolog.Ctx(ctx).Info().Msg("schema migrated")
			return nil
		},
	}
}
