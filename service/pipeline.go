package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"recording-pipeline/config"
	"recording-pipeline/constant"
	"recording-pipeline/dto"
	"recording-pipeline/entities"
	"recording-pipeline/repository"
)

// Dispatcher hands a job message to the background queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobType constant.JobType, message any) error
}

type Orchestrator interface {
	StartTranscode(ctx context.Context, recordingId uuid.UUID, rawPath, sessionDir string) error
	StartTranscription(ctx context.Context, recordingId uuid.UUID) error
	StartArchive(ctx context.Context, recordingId uuid.UUID) error
	Resume(ctx context.Context) error
}

type orchestrator struct {
	repo       repository.JobRepository
	dispatcher Dispatcher
	cfg        *config.Config
}

func NewOrchestrator(repo repository.JobRepository, dispatcher Dispatcher, cfg *config.Config) Orchestrator {
	return &orchestrator{
		repo:       repo,
		dispatcher: dispatcher,
		cfg:        cfg,
	}
}

// enqueue records a pending job and publishes its message. A failed publish
// marks the job failed and resets the stage status to resetTo.
func (o *orchestrator) enqueue(ctx context.Context, recordingId uuid.UUID, jobType constant.JobType, resetTo constant.JobStatus, message func(jobId uuid.UUID) any) error {
	job := &entities.Job{
		ID:          uuid.New(),
		RecordingId: recordingId,
		JobType:     jobType,
		Status:      constant.JobStatusPending,
	}
	if err := o.repo.CreateJob(ctx, job); err != nil {
		return Wrap(ErrServerIO, jobType.String(), "create job", "", err)
	}
	if err := o.repo.SetStageStatus(ctx, recordingId, jobType, constant.JobStatusPending); err != nil {
		return Wrap(ErrServerIO, jobType.String(), "set status", "", err)
	}

	if err := o.dispatcher.Dispatch(ctx, jobType, message(job.ID)); err != nil {
		if failErr := o.repo.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			zerolog.Ctx(ctx).Error().Err(failErr).Msg("failed to update job status")
		}
		if resetErr := o.repo.SetStageStatus(ctx, recordingId, jobType, resetTo); resetErr != nil {
			zerolog.Ctx(ctx).Error().Err(resetErr).Msg("failed to reset stage status")
		}
		return Wrap(ErrServerIO, jobType.String(), "dispatch", "", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("recording_id", recordingId.String()).
		Str("job_id", job.ID.String()).
		Str("job_type", jobType.String()).
		Msg("job dispatched")
	return nil
}

func (o *orchestrator) StartTranscode(ctx context.Context, recordingId uuid.UUID, rawPath, sessionDir string) error {
	return o.enqueue(ctx, recordingId, constant.JobTypeTranscode, constant.JobStatusFailed, func(jobId uuid.UUID) any {
		return dto.TranscodeMessage{JobId: jobId, RecordingId: recordingId, RawPath: rawPath, SessionDir: sessionDir}
	})
}

func (o *orchestrator) StartTranscription(ctx context.Context, recordingId uuid.UUID) error {
	return o.enqueue(ctx, recordingId, constant.JobTypeTranscribe, constant.JobStatusNone, func(jobId uuid.UUID) any {
		return dto.TranscribeMessage{JobId: jobId, RecordingId: recordingId}
	})
}

func (o *orchestrator) StartArchive(ctx context.Context, recordingId uuid.UUID) error {
	return o.enqueue(ctx, recordingId, constant.JobTypeArchive, constant.JobStatusFailed, func(jobId uuid.UUID) any {
		return dto.ArchiveMessage{JobId: jobId, RecordingId: recordingId}
	})
}

// Resume repairs recordings a restart left between stages. Transcodes that
// were running are re-dispatched while their raw input survives and failed
// otherwise; finished transcodes without a transcription get one.
func (o *orchestrator) Resume(ctx context.Context) error {
	recordings, err := o.repo.FindResumable(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, rec := range recordings {
		logger := zerolog.Ctx(ctx).With().Str("recording_id", rec.ID.String()).Str("stage", string(rec.Stage)).Logger()

		switch {
		case rec.Stage == constant.StageUploaded && rec.TranscodeStatus == constant.JobStatusProcessing:
			sessionDir, rawPath := sessionPaths(o.cfg.Upload.TempDir, rec.ID)
			if _, statErr := os.Stat(rawPath); statErr != nil {
				logger.Warn().Msg("raw input gone, marking transcode failed")
				if err := o.repo.SetStageStatus(ctx, rec.ID, constant.JobTypeTranscode, constant.JobStatusFailed); err != nil {
					errs = append(errs, err)
				}
				appendNote(ctx, o.repo, rec.ID, "transcode interrupted and raw input was lost")
				continue
			}
			logger.Info().Msg("re-dispatching interrupted transcode")
			if err := o.StartTranscode(ctx, rec.ID, rawPath, sessionDir); err != nil {
				errs = append(errs, err)
			}
		case rec.Stage == constant.StageTranscoded && rec.TranscriptionStatus == constant.JobStatusNone:
			logger.Info().Msg("dispatching missing transcription")
			if err := o.StartTranscription(ctx, rec.ID); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// sessionPaths returns the session directory and raw file of a recording.
func sessionPaths(tempDir string, recordingId uuid.UUID) (string, string) {
	dir := filepath.Join(tempDir, "sessions", recordingId.String())
	return dir, filepath.Join(dir, fmt.Sprintf("%s.webm", recordingId))
}

// sessionLockPath lives outside the session directory so discarding a
// session never removes a lock another request is waiting on.
func sessionLockPath(tempDir string, recordingId uuid.UUID) string {
	return filepath.Join(tempDir, "locks", recordingId.String()+".lock")
}

func appendNote(ctx context.Context, repo repository.JobRepository, recordingId uuid.UUID, note string) {
	if err := repo.AppendNote(ctx, recordingId, note); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("recording_id", recordingId.String()).Msg("failed to append note")
	}
}

// failJob records a failed run and tags err so the queue does not redeliver it.
func failJob(ctx context.Context, repo repository.JobRepository, jobId, recordingId uuid.UUID, jobType constant.JobType, err error) error {
	zerolog.Ctx(ctx).Error().Err(err).Msg("job failed")
	if updateErr := repo.FailJob(ctx, jobId, err.Error()); updateErr != nil {
		zerolog.Ctx(ctx).Error().Err(updateErr).Msg("failed to update job status")
	}
	if updateErr := repo.SetStageStatus(ctx, recordingId, jobType, constant.JobStatusFailed); updateErr != nil {
		zerolog.Ctx(ctx).Error().Err(updateErr).Msg("failed to update stage status")
	}
	appendNote(ctx, repo, recordingId, fmt.Sprintf("%s failed: %v", jobType, err))
	return errors.Join(ErrNonRetryable, err)
}

// claimJob moves the job to processing. ok is false when another delivery
// already took it.
func claimJob(ctx context.Context, repo repository.JobRepository, jobId, recordingId uuid.UUID, jobType constant.JobType) (bool, error) {
	claimed, err := repo.ClaimJob(ctx, jobId)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to claim job")
		return false, err
	}
	if !claimed {
		zerolog.Ctx(ctx).Info().Msg("job is not pending")
		return false, nil
	}
	if err := repo.SetStageStatus(ctx, recordingId, jobType, constant.JobStatusProcessing); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to update stage status")
	}
	appendNote(ctx, repo, recordingId, fmt.Sprintf("%s started", jobType))
	return true, nil
}
