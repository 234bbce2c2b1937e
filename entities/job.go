package entities

import (
	"github.com/google/uuid"
	"recording-pipeline/constant"
	"time"
)

type Job struct {
	ID          uuid.UUID          `json:"id" gorm:"type:uuid;primary_key"`
	RecordingId uuid.UUID          `json:"recording_id" gorm:"type:uuid;not null;index:idx_jobs_recording_id"`
	Status      constant.JobStatus `json:"status" gorm:"type:varchar(20);not null"`
	JobType     constant.JobType   `json:"job_type" gorm:"type:varchar(20);not null"`
	Attempts    int                `json:"attempts" gorm:"not null;default:0"`
	LastError   *string            `json:"last_error" gorm:"type:text"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func (Job) TableName() string {
	return "jobs"
}
