package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"recording-pipeline/config"
	"recording-pipeline/constant"
	"recording-pipeline/dto"
	"recording-pipeline/pkg/asr"
	"recording-pipeline/pkg/blobstore"
	"recording-pipeline/pkg/ffmpeg"
	"recording-pipeline/pkg/srt"
	"recording-pipeline/repository"
)

type TranscribeService interface {
	Process(ctx context.Context, message dto.TranscribeMessage) error
}

type transcribeService struct {
	repo   repository.JobRepository
	runner ffmpeg.Runner
	asr    asr.Client
	cfg    *config.Config
}

func NewTranscribeService(repo repository.JobRepository, runner ffmpeg.Runner, client asr.Client, cfg *config.Config) TranscribeService {
	return &transcribeService{
		repo:   repo,
		runner: runner,
		asr:    client,
		cfg:    cfg,
	}
}

func (s *transcribeService) Process(ctx context.Context, message dto.TranscribeMessage) (err error) {
	logger := zerolog.Ctx(ctx).With().
		Str("job_id", message.JobId.String()).
		Str("recording_id", message.RecordingId.String()).
		Str("stage", constant.JobTypeTranscribe.String()).
		Logger()
	ctx = logger.WithContext(ctx)
	logger.Info().Msg("processing job")

	claimed, err := claimJob(ctx, s.repo, message.JobId, message.RecordingId, constant.JobTypeTranscribe)
	if err != nil || !claimed {
		return err
	}

	tempDir := filepath.Join(s.cfg.Upload.TempDir, "transcribe", message.JobId.String())
	defer os.RemoveAll(tempDir)
	defer func() {
		if err != nil {
			err = failJob(ctx, s.repo, message.JobId, message.RecordingId, constant.JobTypeTranscribe, err)
		}
	}()

	rec, err := s.repo.FindRecordingById(ctx, message.RecordingId)
	if err != nil {
		return Wrap(ErrServerIO, "transcribe", "find recording", "", err)
	}
	if rec.VideoKey == nil || *rec.VideoKey == "" {
		return Wrap(ErrIntegrity, "transcribe", "find video", "recording has no processed video", nil)
	}

	videoPath := filepath.Join(tempDir, "video.mp4")
	n, err := blobstore.GetFile(ctx, s.cfg.Storage, *rec.VideoKey, videoPath)
	if err != nil {
		return Wrap(ErrServerIO, "transcribe", "download video", *rec.VideoKey, err)
	}
	logger.Info().Int64("size_bytes", n).Msg("video downloaded")

	audioPath := filepath.Join(tempDir, "audio.wav")
	if err = s.runner.Run(ctx, ffmpeg.ExtractAudioArgs(videoPath, audioPath)...); err != nil {
		logger.Error().Err(err).Str("ffmpeg_output", ffmpeg.Output(err)).Msg("failed to extract audio")
		return Wrap(ErrExternalTool, "transcribe", "extract audio", "", err)
	}

	raw, err := s.asr.Transcribe(ctx, audioPath)
	if err != nil {
		return Wrap(ErrUpstream, "transcribe", "asr", "", err)
	}

	normalized := srt.Normalize(raw)
	validation := srt.Validate(normalized)
	if !validation.Valid {
		return Wrap(ErrIntegrity, "transcribe", "validate", strings.Join(validation.Errors, "; "), nil)
	}
	for _, warning := range validation.Warnings {
		logger.Warn().Str("warning", warning).Msg("transcript validation warning")
	}

	if err = s.repo.SaveTranscript(ctx, message.RecordingId, normalized); err != nil {
		return Wrap(ErrServerIO, "transcribe", "save transcript", "", err)
	}
	if updateErr := s.repo.UpdateStatusJob(ctx, constant.JobStatusCompleted, message.JobId); updateErr != nil {
		logger.Error().Err(updateErr).Msg("failed to update job status")
	}
	appendNote(ctx, s.repo, message.RecordingId, fmt.Sprintf("transcript saved with %d segments", validation.SegmentCount))
	logger.Info().Int("segment_count", validation.SegmentCount).Msg("job completed")
	return nil
}
