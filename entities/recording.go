package entities

import (
	"github.com/google/uuid"
	"recording-pipeline/constant"
	"time"
)

type Recording struct {
	ID                  uuid.UUID          `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CaseReference       string             `json:"case_reference" gorm:"type:varchar(255);not null;index:idx_recordings_case_reference"`
	Stage               constant.Stage     `json:"stage" gorm:"type:varchar(20);not null;default:'created'"`
	VideoKey            *string            `json:"video_key" gorm:"type:varchar(500)"`
	VideoHash           *string            `json:"video_hash" gorm:"type:varchar(64)"`
	VideoSize           *int64             `json:"video_size" gorm:"type:bigint"`
	Transcript          *string            `json:"transcript,omitempty" gorm:"type:text"`
	TranscodeStatus     constant.JobStatus `json:"transcode_status" gorm:"type:varchar(20);not null;default:''"`
	TranscriptionStatus constant.JobStatus `json:"transcription_status" gorm:"type:varchar(20);not null;default:''"`
	ArchiveStatus       constant.JobStatus `json:"archive_status" gorm:"type:varchar(20);not null;default:''"`
	ArchivePath         *string            `json:"archive_path" gorm:"type:varchar(500)"`
	Notes               string             `json:"notes" gorm:"type:text;not null;default:''"`
	RecordingStartedAt  *time.Time         `json:"recording_started_at" gorm:"type:timestamptz"`
	RecordingEndedAt    *time.Time         `json:"recording_ended_at" gorm:"type:timestamptz"`
	CreatedAt           time.Time          `json:"created_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt           time.Time          `json:"updated_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
}

func (Recording) TableName() string {
	return "recordings"
}

// ProcessedMedia identifies the authoritative transcoded video of a recording.
type ProcessedMedia struct {
	StorageKey  string
	ContentHash string
	ByteSize    int64
}
