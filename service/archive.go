package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"recording-pipeline/config"
	"recording-pipeline/constant"
	"recording-pipeline/dto"
	"recording-pipeline/pkg/archive"
	"recording-pipeline/pkg/blobstore"
	"recording-pipeline/pkg/ffmpeg"
	"recording-pipeline/repository"
)

type ArchiveService interface {
	Request(ctx context.Context, recordingId uuid.UUID) (dto.ArchiveResponse, error)
	Process(ctx context.Context, message dto.ArchiveMessage) error
}

type archiveService struct {
	repo         repository.JobRepository
	orchestrator Orchestrator
	runner       ffmpeg.Runner
	cfg          *config.Config
	now          func() time.Time
}

func NewArchiveService(repo repository.JobRepository, orchestrator Orchestrator, runner ffmpeg.Runner, cfg *config.Config) ArchiveService {
	return &archiveService{
		repo:         repo,
		orchestrator: orchestrator,
		runner:       runner,
		cfg:          cfg,
		now:          time.Now,
	}
}

func ArchiveKey(recordingId uuid.UUID) string {
	return fmt.Sprintf("downloads/%s.zip", recordingId)
}

// Request starts packaging unless a package is already queued, running or
// stored, in which case it reports that state.
func (s *archiveService) Request(ctx context.Context, recordingId uuid.UUID) (dto.ArchiveResponse, error) {
	logger := zerolog.Ctx(ctx).With().Str("recording_id", recordingId.String()).Logger()
	ctx = logger.WithContext(ctx)

	rec, err := s.repo.FindRecordingById(ctx, recordingId)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return dto.ArchiveResponse{}, Wrap(ErrNotFound, "archive", "find recording", recordingId.String(), nil)
		}
		return dto.ArchiveResponse{}, Wrap(ErrServerIO, "archive", "find recording", "", err)
	}
	if rec.VideoKey == nil || *rec.VideoKey == "" {
		return dto.ArchiveResponse{}, Wrap(ErrConflict, "archive", "request", "video has not been processed yet", nil)
	}

	if rec.ArchiveStatus.InFlight() {
		return dto.ArchiveResponse{Status: string(rec.ArchiveStatus), Message: "archive is being prepared"}, nil
	}
	if rec.ArchiveStatus == constant.JobStatusCompleted && rec.ArchivePath != nil {
		exists, err := s.cfg.Storage.Exists(ctx, *rec.ArchivePath)
		if err != nil {
			return dto.ArchiveResponse{}, Wrap(ErrServerIO, "archive", "check archive", "", err)
		}
		if exists {
			return s.ready(ctx, *rec.ArchivePath)
		}
		logger.Warn().Str("key", *rec.ArchivePath).Msg("archive missing from storage, packaging again")
	}

	claimed, err := s.repo.ClaimArchive(ctx, recordingId)
	if err != nil {
		return dto.ArchiveResponse{}, Wrap(ErrServerIO, "archive", "claim", "", err)
	}
	if !claimed {
		return dto.ArchiveResponse{Status: string(constant.JobStatusPending), Message: "archive is being prepared"}, nil
	}

	if err := s.orchestrator.StartArchive(ctx, recordingId); err != nil {
		return dto.ArchiveResponse{}, err
	}
	return dto.ArchiveResponse{Status: string(constant.JobStatusPending), Message: "archive requested"}, nil
}

func (s *archiveService) ready(ctx context.Context, key string) (dto.ArchiveResponse, error) {
	url, err := s.cfg.Storage.Presign(ctx, key, s.cfg.Server.PresignTTL)
	if err != nil {
		return dto.ArchiveResponse{}, Wrap(ErrServerIO, "archive", "presign", "", err)
	}
	return dto.ArchiveResponse{Status: string(constant.JobStatusCompleted), Message: "ready", DownloadURL: url}, nil
}

func (s *archiveService) Process(ctx context.Context, message dto.ArchiveMessage) (err error) {
	logger := zerolog.Ctx(ctx).With().
		Str("job_id", message.JobId.String()).
		Str("recording_id", message.RecordingId.String()).
		Str("stage", constant.JobTypeArchive.String()).
		Logger()
	ctx = logger.WithContext(ctx)
	logger.Info().Msg("processing job")

	claimed, err := claimJob(ctx, s.repo, message.JobId, message.RecordingId, constant.JobTypeArchive)
	if err != nil || !claimed {
		return err
	}

	tempDir := filepath.Join(s.cfg.Upload.TempDir, "archive", message.JobId.String())
	defer os.RemoveAll(tempDir)
	defer func() {
		if err != nil {
			err = failJob(ctx, s.repo, message.JobId, message.RecordingId, constant.JobTypeArchive, err)
		}
	}()

	rec, err := s.repo.FindRecordingById(ctx, message.RecordingId)
	if err != nil {
		return Wrap(ErrServerIO, "archive", "find recording", "", err)
	}
	if rec.VideoKey == nil || *rec.VideoKey == "" {
		return Wrap(ErrIntegrity, "archive", "find video", "recording has no processed video", nil)
	}

	partsDir := filepath.Join(tempDir, "parts")
	if err = os.MkdirAll(partsDir, os.ModePerm); err != nil {
		return Wrap(ErrServerIO, "archive", "create work dir", "", err)
	}

	videoPath := filepath.Join(tempDir, "video.mp4")
	if _, err = blobstore.GetFile(ctx, s.cfg.Storage, *rec.VideoKey, videoPath); err != nil {
		return Wrap(ErrServerIO, "archive", "download video", *rec.VideoKey, err)
	}

	id := message.RecordingId.String()
	pattern := filepath.Join(partsDir, id+"_%03d.mp4")
	args := ffmpeg.SegmentArgs(videoPath, pattern, s.cfg.Archive.SegmentSeconds, s.cfg.Archive.MaxPartSize)
	if err = s.runner.Run(ctx, args...); err != nil {
		logger.Error().Err(err).Str("ffmpeg_output", ffmpeg.Output(err)).Msg("failed to segment video")
		return Wrap(ErrExternalTool, "archive", "segment", "", err)
	}

	parts, err := filepath.Glob(filepath.Join(partsDir, id+"_*.mp4"))
	if err != nil {
		return Wrap(ErrServerIO, "archive", "list parts", "", err)
	}
	if len(parts) == 0 {
		return Wrap(ErrExternalTool, "archive", "segment", "encoder produced no parts", nil)
	}
	sort.Strings(parts)

	entries, err := archive.HashParts(parts)
	if err != nil {
		return Wrap(ErrServerIO, "archive", "hash parts", "", err)
	}
	manifest := archive.Manifest{
		Title:         s.cfg.Archive.Title,
		RecordingID:   id,
		CaseReference: rec.CaseReference,
		GeneratedAt:   s.now(),
		Entries:       entries,
	}

	zipPath := filepath.Join(tempDir, id+".zip")
	if err = archive.WriteZip(zipPath, parts, id+"_hashes.txt", manifest); err != nil {
		return Wrap(ErrServerIO, "archive", "write zip", "", err)
	}

	key := ArchiveKey(message.RecordingId)
	if err = blobstore.PutFile(ctx, s.cfg.Storage, key, zipPath, "application/zip"); err != nil {
		return Wrap(ErrServerIO, "archive", "upload", key, err)
	}

	if err = s.repo.SaveArchive(ctx, message.RecordingId, key); err != nil {
		return Wrap(ErrServerIO, "archive", "save archive", "", err)
	}
	if updateErr := s.repo.UpdateStatusJob(ctx, constant.JobStatusCompleted, message.JobId); updateErr != nil {
		logger.Error().Err(updateErr).Msg("failed to update job status")
	}
	appendNote(ctx, s.repo, message.RecordingId, fmt.Sprintf("archive packaged with %d parts", len(parts)))
	logger.Info().Int("parts", len(parts)).Str("key", key).Msg("job completed")
	return nil
}
