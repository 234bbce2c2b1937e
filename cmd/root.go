package cmd

import (
	"github.com/spf13/cobra"
	"recording-pipeline/config"
)

func Root(config *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "recording-pipeline",
		Short:         "ingest, transcode and archive interview recordings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(server(config))
	rootCmd.AddCommand(migrate(config))
	rootCmd.AddCommand(status(config))
	rootCmd.AddCommand(archive(config))
	return rootCmd
}
