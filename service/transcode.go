package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"recording-pipeline/config"
	"recording-pipeline/constant"
	"recording-pipeline/dto"
	"recording-pipeline/entities"
	"recording-pipeline/pkg/blobstore"
	"recording-pipeline/pkg/ffmpeg"
	"recording-pipeline/pkg/fileutil"
	"recording-pipeline/repository"
)

type TranscodeService interface {
	Process(ctx context.Context, message dto.TranscodeMessage) error
}

type transcodeService struct {
	repo         repository.JobRepository
	orchestrator Orchestrator
	runner       ffmpeg.Runner
	cfg          *config.Config
	now          func() time.Time
}

func NewTranscodeService(repo repository.JobRepository, orchestrator Orchestrator, runner ffmpeg.Runner, cfg *config.Config) TranscodeService {
	return &transcodeService{
		repo:         repo,
		orchestrator: orchestrator,
		runner:       runner,
		cfg:          cfg,
		now:          time.Now,
	}
}

// VideoKey is the storage key of a recording's processed video.
func VideoKey(recordingId fmt.Stringer, at time.Time) string {
	return fmt.Sprintf("oitivas/%s/%s.mp4", at.Format("2006/01"), recordingId)
}

func (s *transcodeService) Process(ctx context.Context, message dto.TranscodeMessage) (err error) {
	logger := zerolog.Ctx(ctx).With().
		Str("job_id", message.JobId.String()).
		Str("recording_id", message.RecordingId.String()).
		Str("stage", constant.JobTypeTranscode.String()).
		Logger()
	ctx = logger.WithContext(ctx)
	logger.Info().Msg("processing job")

	claimed, err := claimJob(ctx, s.repo, message.JobId, message.RecordingId, constant.JobTypeTranscode)
	if err != nil || !claimed {
		return err
	}

	workDir := filepath.Join(s.cfg.Upload.TempDir, "transcode", message.JobId.String())
	defer func() {
		for _, p := range []string{message.RawPath, workDir, message.SessionDir} {
			if p == "" {
				continue
			}
			if rmErr := os.RemoveAll(p); rmErr != nil {
				logger.Error().Err(rmErr).Str("path", p).Msg("failed to remove local file")
			}
		}
	}()
	defer func() {
		if err != nil {
			err = failJob(ctx, s.repo, message.JobId, message.RecordingId, constant.JobTypeTranscode, err)
		}
	}()

	info, err := os.Stat(message.RawPath)
	if err != nil || info.Size() == 0 {
		return Wrap(ErrIntegrity, "transcode", "open raw input", message.RawPath, err)
	}
	if err = os.MkdirAll(workDir, os.ModePerm); err != nil {
		return Wrap(ErrServerIO, "transcode", "create work dir", "", err)
	}

	output := filepath.Join(workDir, message.RecordingId.String()+".mp4")
	logger.Info().Int64("size_bytes", info.Size()).Msg("optimizing video")
	err = s.retry(ctx, "optimize", func() error {
		return s.runner.Run(ctx, ffmpeg.OptimizeArgs(message.RawPath, output)...)
	})
	if err != nil {
		logger.Error().Err(err).Str("ffmpeg_output", ffmpeg.Output(err)).Msg("failed to optimize video")
		return Wrap(ErrExternalTool, "transcode", "optimize", "", err)
	}

	hash, size, err := fileutil.HashFile(output)
	if err != nil {
		return Wrap(ErrServerIO, "transcode", "hash output", "", err)
	}
	if size == 0 {
		return Wrap(ErrExternalTool, "transcode", "optimize", "encoder produced an empty file", nil)
	}

	key := VideoKey(message.RecordingId, s.now())
	logger.Info().Str("key", key).Int64("size_bytes", size).Msg("uploading processed video")
	err = s.retry(ctx, "upload", func() error {
		return blobstore.PutFile(ctx, s.cfg.Storage, key, output, "video/mp4")
	})
	if err != nil {
		return Wrap(ErrServerIO, "transcode", "upload", key, err)
	}

	media := entities.ProcessedMedia{StorageKey: key, ContentHash: hash, ByteSize: size}
	if err = s.repo.SaveProcessedMedia(ctx, message.RecordingId, media); err != nil {
		return Wrap(ErrServerIO, "transcode", "save media", "", err)
	}
	if updateErr := s.repo.UpdateStatusJob(ctx, constant.JobStatusCompleted, message.JobId); updateErr != nil {
		logger.Error().Err(updateErr).Msg("failed to update job status")
	}
	appendNote(ctx, s.repo, message.RecordingId, fmt.Sprintf("video processed, sha256 %s", hash))
	logger.Info().Str("video_hash", hash).Msg("job completed")

	if dispatchErr := s.orchestrator.StartTranscription(ctx, message.RecordingId); dispatchErr != nil {
		logger.Error().Err(dispatchErr).Msg("failed to dispatch transcription")
	}
	return nil
}

// retry runs op with exponential backoff up to encoder.attempts times.
func (s *transcodeService) retry(ctx context.Context, operation string, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 10 * time.Second

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := op()
		if err != nil && errors.Is(err, context.Canceled) {
			return struct{}{}, backoff.Permanent(err)
		}
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Int("attempt", attempt).Str("operation", operation).Msg("attempt failed")
		}
		return struct{}{}, err
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(max(s.cfg.Encoder.Attempts, 1)))
	return err
}
