package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"recording-pipeline/constant"
	"recording-pipeline/entities"
)

var ErrNotFound = errors.New("record not found")

const noteTimeLayout = "2006-01-02 15:04:05"

type JobRepository interface {
	AutoMigrate(ctx context.Context) error

	CreateRecording(ctx context.Context, recording *entities.Recording) error
	FindRecordingById(ctx context.Context, id uuid.UUID) (*entities.Recording, error)
	ListRecordings(ctx context.Context, limit int) ([]*entities.Recording, error)
	FindResumable(ctx context.Context) ([]*entities.Recording, error)
	MarkUploaded(ctx context.Context, id uuid.UUID, startedAt, endedAt time.Time) error
	SetStageStatus(ctx context.Context, id uuid.UUID, jobType constant.JobType, status constant.JobStatus) error
	SaveProcessedMedia(ctx context.Context, id uuid.UUID, media entities.ProcessedMedia) error
	SaveTranscript(ctx context.Context, id uuid.UUID, transcript string) error
	ClaimArchive(ctx context.Context, id uuid.UUID) (bool, error)
	SaveArchive(ctx context.Context, id uuid.UUID, path string) error
	AppendNote(ctx context.Context, id uuid.UUID, note string) error

	CreateJob(ctx context.Context, job *entities.Job) error
	FindJobById(ctx context.Context, id uuid.UUID) (*entities.Job, error)
	ClaimJob(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateStatusJob(ctx context.Context, status constant.JobStatus, id uuid.UUID) error
	FailJob(ctx context.Context, id uuid.UUID, reason string) error
}

type repo struct {
	db *gorm.DB
}

func NewRepo(db *sql.DB) (JobRepository, error) {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		},
	)
	if err != nil {
		return nil, err
	}
	return &repo{
		db: gormDB,
	}, nil
}

func (r *repo) GetDB(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *repo) AutoMigrate(ctx context.Context) error {
	return r.GetDB(ctx).AutoMigrate(&entities.Recording{}, &entities.Job{})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *repo) CreateRecording(ctx context.Context, recording *entities.Recording) error {
	if recording.ID == uuid.Nil {
		recording.ID = uuid.New()
	}
	if recording.Stage == "" {
		recording.Stage = constant.StageCreated
	}
	return r.GetDB(ctx).Create(recording).Error
}

func (r *repo) FindRecordingById(ctx context.Context, id uuid.UUID) (*entities.Recording, error) {
	recording := &entities.Recording{}
	err := r.GetDB(ctx).First(recording, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return recording, nil
}

func (r *repo) ListRecordings(ctx context.Context, limit int) ([]*entities.Recording, error) {
	var recordings []*entities.Recording
	q := r.GetDB(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recordings).Error; err != nil {
		return nil, err
	}
	return recordings, nil
}

// FindResumable returns recordings a crash may have left between stages.
func (r *repo) FindResumable(ctx context.Context) ([]*entities.Recording, error) {
	var recordings []*entities.Recording
	err := r.GetDB(ctx).
		Where("stage = ? AND transcode_status IN ?", constant.StageUploaded,
			[]constant.JobStatus{constant.JobStatusPending, constant.JobStatusProcessing}).
		Or("stage = ? AND transcription_status IN ?", constant.StageTranscoded,
			[]constant.JobStatus{constant.JobStatusNone, constant.JobStatusPending}).
		Find(&recordings).Error
	if err != nil {
		return nil, err
	}
	return recordings, nil
}

func (r *repo) updateRecording(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	res := r.GetDB(ctx).Model(&entities.Recording{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repo) MarkUploaded(ctx context.Context, id uuid.UUID, startedAt, endedAt time.Time) error {
	return r.updateRecording(ctx, id, map[string]interface{}{
		"stage":                constant.StageUploaded,
		"transcode_status":     constant.JobStatusPending,
		"recording_started_at": startedAt,
		"recording_ended_at":   endedAt,
	})
}

func statusColumn(jobType constant.JobType) (string, error) {
	switch jobType {
	case constant.JobTypeTranscode:
		return "transcode_status", nil
	case constant.JobTypeTranscribe:
		return "transcription_status", nil
	case constant.JobTypeArchive:
		return "archive_status", nil
	}
	return "", fmt.Errorf("unknown job type %q", jobType)
}

func (r *repo) SetStageStatus(ctx context.Context, id uuid.UUID, jobType constant.JobType, status constant.JobStatus) error {
	column, err := statusColumn(jobType)
	if err != nil {
		return err
	}
	return r.updateRecording(ctx, id, map[string]interface{}{column: status})
}

func (r *repo) SaveProcessedMedia(ctx context.Context, id uuid.UUID, media entities.ProcessedMedia) error {
	return r.updateRecording(ctx, id, map[string]interface{}{
		"video_key":        media.StorageKey,
		"video_hash":       media.ContentHash,
		"video_size":       media.ByteSize,
		"transcode_status": constant.JobStatusCompleted,
		"stage":            constant.StageTranscoded,
	})
}

func (r *repo) SaveTranscript(ctx context.Context, id uuid.UUID, transcript string) error {
	return r.updateRecording(ctx, id, map[string]interface{}{
		"transcript":           transcript,
		"transcription_status": constant.JobStatusCompleted,
		"stage":                constant.StageTranscribed,
	})
}

// ClaimArchive moves archive_status to pending unless a packaging job is
// already queued or running. It reports whether this caller won the claim.
func (r *repo) ClaimArchive(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.GetDB(ctx).Model(&entities.Recording{}).
		Where("id = ? AND archive_status NOT IN ?", id,
			[]constant.JobStatus{constant.JobStatusPending, constant.JobStatusProcessing}).
		Update("archive_status", constant.JobStatusPending)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) SaveArchive(ctx context.Context, id uuid.UUID, path string) error {
	return r.updateRecording(ctx, id, map[string]interface{}{
		"archive_path":   path,
		"archive_status": constant.JobStatusCompleted,
	})
}

func (r *repo) AppendNote(ctx context.Context, id uuid.UUID, note string) error {
	line := fmt.Sprintf("[%s]: %s\n", time.Now().Format(noteTimeLayout), note)
	return r.updateRecording(ctx, id, map[string]interface{}{
		"notes": gorm.Expr("notes || ?", line),
	})
}

func (r *repo) CreateJob(ctx context.Context, job *entities.Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == constant.JobStatusNone {
		job.Status = constant.JobStatusPending
	}
	return r.GetDB(ctx).Create(job).Error
}

func (r *repo) FindJobById(ctx context.Context, id uuid.UUID) (*entities.Job, error) {
	job := &entities.Job{}
	err := r.GetDB(ctx).First(job, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}

	return job, nil
}

// ClaimJob moves a pending job to processing and counts the attempt.
func (r *repo) ClaimJob(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.GetDB(ctx).Model(&entities.Job{}).
		Where("id = ? AND status = ?", id, constant.JobStatusPending).
		Updates(map[string]interface{}{
			"status":   constant.JobStatusProcessing,
			"attempts": gorm.Expr("attempts + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) UpdateStatusJob(ctx context.Context, status constant.JobStatus, id uuid.UUID) error {
	return r.GetDB(ctx).Model(&entities.Job{}).Where("id = ?", id).Update("status", status).Error
}

func (r *repo) FailJob(ctx context.Context, id uuid.UUID, reason string) error {
	return r.GetDB(ctx).Model(&entities.Job{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     constant.JobStatusFailed,
		"last_error": reason,
	}).Error
}
