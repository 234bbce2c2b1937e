package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"recording-pipeline/config"
	server2 "recording-pipeline/server"
)

func archive(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <recording-id>",
		Short: "request the verification archive of a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid recording id: %w", err)
			}
			res, err := server2.RequestArchive(server2.SetupLogger(config), config, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status: %s\n", res.Status)
			if res.Message != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "message: %s\n", res.Message)
			}
			if res.DownloadURL != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "download: %s\n", res.DownloadURL)
			}
			return nil
		},
	}
}
