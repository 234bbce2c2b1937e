package service

import (
	"context"
	"os"
	"strings"
	"testing"

	"recording-pipeline/constant"
	"recording-pipeline/dto"
	"recording-pipeline/entities"
)

func TestResume(t *testing.T) {
	repo := newFakeRepo()
	dispatcher := &fakeDispatcher{}
	cfg := testConfig(t)
	o := NewOrchestrator(repo, dispatcher, cfg)

	interrupted := repo.addRecording(t, func(rec *entities.Recording) {
		rec.Stage = constant.StageUploaded
		rec.TranscodeStatus = constant.JobStatusProcessing
	})
	sessionDir, rawPath := sessionPaths(cfg.Upload.TempDir, interrupted)
	if err := os.MkdirAll(sessionDir, os.ModePerm); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(rawPath, webmChunk(512), 0o644); err != nil {
		t.Fatalf("write raw: %v", err)
	}

	lost := repo.addRecording(t, func(rec *entities.Recording) {
		rec.Stage = constant.StageUploaded
		rec.TranscodeStatus = constant.JobStatusProcessing
	})
	untranscribed := repo.addRecording(t, func(rec *entities.Recording) {
		rec.Stage = constant.StageTranscoded
		rec.TranscodeStatus = constant.JobStatusCompleted
	})
	done := repo.addRecording(t, func(rec *entities.Recording) {
		rec.Stage = constant.StageTranscribed
		rec.TranscodeStatus = constant.JobStatusCompleted
		rec.TranscriptionStatus = constant.JobStatusCompleted
	})

	if err := o.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}

	if n := dispatcher.count(constant.JobTypeTranscode); n != 1 {
		t.Fatalf("expected one transcode re-dispatch, got %d", n)
	}
	if n := dispatcher.count(constant.JobTypeTranscribe); n != 1 {
		t.Fatalf("expected one transcription dispatch, got %d", n)
	}
	for _, d := range dispatcher.sent {
		switch msg := d.message.(type) {
		case dto.TranscodeMessage:
			if msg.RecordingId != interrupted || msg.RawPath != rawPath {
				t.Fatalf("unexpected transcode message %+v", msg)
			}
		case dto.TranscribeMessage:
			if msg.RecordingId != untranscribed {
				t.Fatalf("unexpected transcription message %+v", msg)
			}
		}
	}

	if rec := repo.recording(t, interrupted); rec.TranscodeStatus != constant.JobStatusPending {
		t.Fatalf("expected re-dispatched transcode pending, got %q", rec.TranscodeStatus)
	}
	rec := repo.recording(t, lost)
	if rec.TranscodeStatus != constant.JobStatusFailed || !strings.Contains(rec.Notes, "raw input was lost") {
		t.Fatalf("expected lost transcode failed with a note, got %q %q", rec.TranscodeStatus, rec.Notes)
	}
	if rec := repo.recording(t, untranscribed); rec.TranscriptionStatus != constant.JobStatusPending {
		t.Fatalf("expected transcription pending, got %q", rec.TranscriptionStatus)
	}
	if rec := repo.recording(t, done); rec.Notes != "" {
		t.Fatalf("finished recording must not be touched, notes %q", rec.Notes)
	}
}

func TestEnqueueRecordsJob(t *testing.T) {
	repo := newFakeRepo()
	dispatcher := &fakeDispatcher{}
	o := NewOrchestrator(repo, dispatcher, testConfig(t))
	id := repo.addRecording(t, func(rec *entities.Recording) {
		rec.Stage = constant.StageTranscoded
	})

	if err := o.StartTranscription(context.Background(), id); err != nil {
		t.Fatalf("start transcription: %v", err)
	}
	msg, ok := dispatcher.sent[0].message.(dto.TranscribeMessage)
	if !ok {
		t.Fatalf("unexpected message %T", dispatcher.sent[0].message)
	}
	job, err := repo.FindJobById(context.Background(), msg.JobId)
	if err != nil {
		t.Fatalf("find job: %v", err)
	}
	if job.Status != constant.JobStatusPending || job.JobType != constant.JobTypeTranscribe || job.RecordingId != id {
		t.Fatalf("unexpected job %+v", job)
	}
}
