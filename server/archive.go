package server

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"recording-pipeline/config"
	"recording-pipeline/dto"
	"recording-pipeline/pkg/ffmpeg"
	"recording-pipeline/repository"
	"recording-pipeline/service"
)

// RequestArchive queues archive packaging for one recording without
// starting any workers.
func RequestArchive(ctx context.Context, cfg *config.Config, recordingId uuid.UUID) (dto.ArchiveResponse, error) {
	repo, err := repository.NewRepo(cfg.DB)
	if err != nil {
		return dto.ArchiveResponse{}, fmt.Errorf("open repository: %w", err)
	}
	dispatcher, _, closeQueue, err := setupQueue(ctx, cfg)
	if err != nil {
		return dto.ArchiveResponse{}, err
	}
	defer closeQueue()

	orchestrator := service.NewOrchestrator(repo, dispatcher, cfg)
	runner := ffmpeg.NewRunner(cfg.Encoder.Binary, cfg.Encoder.Timeout)
	return service.NewArchiveService(repo, orchestrator, runner, cfg).Request(ctx, recordingId)
}
