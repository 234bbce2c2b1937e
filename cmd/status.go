package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"recording-pipeline/config"
	"recording-pipeline/dto"
	"recording-pipeline/repository"
	server2 "recording-pipeline/server"
	"recording-pipeline/service"
)

func status(config *config.Config) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "status [recording-id]",
		Short: "show pipeline status of recent recordings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := server2.SetupLogger(config)
			repo, err := repository.NewRepo(config.DB)
			if err != nil {
				return err
			}
			recordings := service.NewRecordingService(repo, config)

			var items []dto.RecordingStatus
			if len(args) == 1 {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid recording id: %w", err)
				}
				item, err := recordings.Status(ctx, id)
				if err != nil {
					return err
				}
				items = append(items, item)
			} else {
				items, err = recordings.List(ctx, limit)
				if err != nil {
					return err
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderStatus(items))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of recordings to list")
	return cmd
}

func renderStatus(items []dto.RecordingStatus) string {
	headers := []string{"ID", "Case", "Stage", "Transcode", "Transcript", "Archive", "Size"}
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		size := "-"
		if item.VideoSize > 0 {
			size = humanize.IBytes(uint64(item.VideoSize))
		}
		rows = append(rows, []string{
			item.ID.String(),
			item.CaseReference,
			item.Stage,
			orDash(item.TranscodeStatus),
			orDash(item.TranscriptionStatus),
			orDash(item.ArchiveStatus),
			size,
		})
	}
	return renderTable(headers, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight})
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
