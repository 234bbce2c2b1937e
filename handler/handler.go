package handler

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"recording-pipeline/dto"
	"recording-pipeline/service"
)

type ServiceDependencies struct {
	TranscodeService  service.TranscodeService
	TranscribeService service.TranscribeService
	ArchiveService    service.ArchiveService
}

func TranscodeHandler(ctx context.Context, body []byte, deps ServiceDependencies) error {
	var msg dto.TranscodeMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal transcode message")
		return backoff.Permanent(err)
	}

	zerolog.Ctx(ctx).Info().
		Str("job_id", msg.JobId.String()).
		Str("recording_id", msg.RecordingId.String()).
		Msg("received transcode message")

	return terminal(deps.TranscodeService.Process(ctx, msg))
}

func TranscribeHandler(ctx context.Context, body []byte, deps ServiceDependencies) error {
	var msg dto.TranscribeMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal transcribe message")
		return backoff.Permanent(err)
	}

	zerolog.Ctx(ctx).Info().
		Str("job_id", msg.JobId.String()).
		Str("recording_id", msg.RecordingId.String()).
		Msg("received transcribe message")

	return terminal(deps.TranscribeService.Process(ctx, msg))
}

func ArchiveHandler(ctx context.Context, body []byte, deps ServiceDependencies) error {
	var msg dto.ArchiveMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal archive message")
		return backoff.Permanent(err)
	}

	zerolog.Ctx(ctx).Info().
		Str("job_id", msg.JobId.String()).
		Str("recording_id", msg.RecordingId.String()).
		Msg("received archive message")

	return terminal(deps.ArchiveService.Process(ctx, msg))
}

// terminal stops queue retries for failures the job already recorded.
func terminal(err error) error {
	if err != nil && errors.Is(err, service.ErrNonRetryable) {
		return backoff.Permanent(err)
	}
	return err
}
