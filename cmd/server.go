package cmd

import (
	"github.com/spf13/cobra"
	"recording-pipeline/config"
	server2 "recording-pipeline/server"
)

func server(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "start http server and job workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server2.RunHttp(config)
		},
	}
}
