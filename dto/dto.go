package dto

import (
	"github.com/google/uuid"
	"time"
)

type TranscodeMessage struct {
	JobId       uuid.UUID `json:"jobId"`
	RecordingId uuid.UUID `json:"recordingId"`
	RawPath     string    `json:"rawPath"`
	SessionDir  string    `json:"sessionDir"`
}

type TranscribeMessage struct {
	JobId       uuid.UUID `json:"jobId"`
	RecordingId uuid.UUID `json:"recordingId"`
}

type ArchiveMessage struct {
	JobId       uuid.UUID `json:"jobId"`
	RecordingId uuid.UUID `json:"recordingId"`
}

type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func NewSuccessResponse[T any](data T) Response[T] {
	return Response[T]{
		Success: true,
		Data:    data,
	}
}

func NewErrorResponse(err string, code string) Response[any] {
	return Response[any]{
		Success: false,
		Error:   err,
		Code:    code,
	}
}

type CreateRecordingRequest struct {
	CaseReference string `json:"caseReference" binding:"required"`
}

type ChunkResponse struct {
	Message    string `json:"message,omitempty"`
	Status     string `json:"status,omitempty"`
	PartNumber int    `json:"part_number"`
	TotalSize  int64  `json:"total_size"`
	FinalSize  int64  `json:"final_size,omitempty"`
}

type RecordingStatus struct {
	ID                  uuid.UUID  `json:"id"`
	CaseReference       string     `json:"case_reference"`
	Stage               string     `json:"stage"`
	TranscodeStatus     string     `json:"transcode_status"`
	TranscriptionStatus string     `json:"transcription_status"`
	ArchiveStatus       string     `json:"archive_status"`
	VideoHash           string     `json:"video_hash,omitempty"`
	VideoSize           int64      `json:"video_size,omitempty"`
	HasTranscript       bool       `json:"has_transcript"`
	RecordingEndedAt    *time.Time `json:"recording_ended_at,omitempty"`
}

type LinkResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ArchiveResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}
