package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"recording-pipeline/config"
	"recording-pipeline/constant"
	"recording-pipeline/dto"
	"recording-pipeline/entities"
	"recording-pipeline/repository"
)

type RecordingService interface {
	Create(ctx context.Context, caseReference string) (*entities.Recording, error)
	Status(ctx context.Context, id uuid.UUID) (dto.RecordingStatus, error)
	List(ctx context.Context, limit int) ([]dto.RecordingStatus, error)
	WatchLink(ctx context.Context, id uuid.UUID) (dto.LinkResponse, error)
	Transcript(ctx context.Context, id uuid.UUID) (string, error)
	ArchiveStatus(ctx context.Context, id uuid.UUID) (dto.ArchiveResponse, error)
}

type recordingService struct {
	repo repository.JobRepository
	cfg  *config.Config
	now  func() time.Time
}

func NewRecordingService(repo repository.JobRepository, cfg *config.Config) RecordingService {
	return &recordingService{
		repo: repo,
		cfg:  cfg,
		now:  time.Now,
	}
}

func (s *recordingService) Create(ctx context.Context, caseReference string) (*entities.Recording, error) {
	caseReference = strings.TrimSpace(caseReference)
	if caseReference == "" {
		return nil, Wrap(ErrClientInput, "recording", "create", "case reference is required", nil)
	}
	rec := &entities.Recording{
		ID:            uuid.New(),
		CaseReference: caseReference,
		Stage:         constant.StageCreated,
	}
	if err := s.repo.CreateRecording(ctx, rec); err != nil {
		return nil, Wrap(ErrServerIO, "recording", "create", "", err)
	}
	zerolog.Ctx(ctx).Info().
		Str("recording_id", rec.ID.String()).
		Str("case_reference", caseReference).
		Msg("recording created")
	return rec, nil
}

func (s *recordingService) find(ctx context.Context, id uuid.UUID) (*entities.Recording, error) {
	rec, err := s.repo.FindRecordingById(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, Wrap(ErrNotFound, "recording", "find", id.String(), nil)
		}
		return nil, Wrap(ErrServerIO, "recording", "find", "", err)
	}
	return rec, nil
}

func (s *recordingService) Status(ctx context.Context, id uuid.UUID) (dto.RecordingStatus, error) {
	rec, err := s.find(ctx, id)
	if err != nil {
		return dto.RecordingStatus{}, err
	}
	return toStatus(rec), nil
}

func (s *recordingService) List(ctx context.Context, limit int) ([]dto.RecordingStatus, error) {
	recordings, err := s.repo.ListRecordings(ctx, limit)
	if err != nil {
		return nil, Wrap(ErrServerIO, "recording", "list", "", err)
	}
	out := make([]dto.RecordingStatus, 0, len(recordings))
	for _, rec := range recordings {
		out = append(out, toStatus(rec))
	}
	return out, nil
}

func (s *recordingService) WatchLink(ctx context.Context, id uuid.UUID) (dto.LinkResponse, error) {
	rec, err := s.find(ctx, id)
	if err != nil {
		return dto.LinkResponse{}, err
	}
	if rec.VideoKey == nil || *rec.VideoKey == "" {
		return dto.LinkResponse{}, Wrap(ErrNotFound, "recording", "watch link", "video has not been processed yet", nil)
	}
	ttl := s.cfg.Server.PresignTTL
	url, err := s.cfg.Storage.Presign(ctx, *rec.VideoKey, ttl)
	if err != nil {
		return dto.LinkResponse{}, Wrap(ErrServerIO, "recording", "presign", "", err)
	}
	return dto.LinkResponse{URL: url, ExpiresAt: s.now().Add(ttl).UTC()}, nil
}

func (s *recordingService) Transcript(ctx context.Context, id uuid.UUID) (string, error) {
	rec, err := s.find(ctx, id)
	if err != nil {
		return "", err
	}
	if rec.Transcript == nil || *rec.Transcript == "" {
		return "", Wrap(ErrNotFound, "recording", "transcript", "recording has no transcript", nil)
	}
	return *rec.Transcript, nil
}

// ArchiveStatus reports the archive state without starting work.
func (s *recordingService) ArchiveStatus(ctx context.Context, id uuid.UUID) (dto.ArchiveResponse, error) {
	rec, err := s.find(ctx, id)
	if err != nil {
		return dto.ArchiveResponse{}, err
	}
	res := dto.ArchiveResponse{Status: string(rec.ArchiveStatus)}
	if rec.ArchiveStatus == constant.JobStatusCompleted && rec.ArchivePath != nil {
		url, err := s.cfg.Storage.Presign(ctx, *rec.ArchivePath, s.cfg.Server.PresignTTL)
		if err != nil {
			return dto.ArchiveResponse{}, Wrap(ErrServerIO, "archive", "presign", "", err)
		}
		res.DownloadURL = url
	}
	return res, nil
}

func toStatus(rec *entities.Recording) dto.RecordingStatus {
	status := dto.RecordingStatus{
		ID:                  rec.ID,
		CaseReference:       rec.CaseReference,
		Stage:               string(rec.Stage),
		TranscodeStatus:     string(rec.TranscodeStatus),
		TranscriptionStatus: string(rec.TranscriptionStatus),
		ArchiveStatus:       string(rec.ArchiveStatus),
		HasTranscript:       rec.Transcript != nil && *rec.Transcript != "",
		RecordingEndedAt:    rec.RecordingEndedAt,
	}
	if rec.VideoHash != nil {
		status.VideoHash = *rec.VideoHash
	}
	if rec.VideoSize != nil {
		status.VideoSize = *rec.VideoSize
	}
	return status
}
