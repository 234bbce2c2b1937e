package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"recording-pipeline/constant"
	"recording-pipeline/dto"
	"recording-pipeline/entities"
	"recording-pipeline/pkg/ffmpeg"
)

type transcodeFixture struct {
	repo       *fakeRepo
	dispatcher *fakeDispatcher
	runner     *fakeRunner
	svc        *transcodeService
	message    dto.TranscodeMessage
}

func newTranscodeFixture(t *testing.T) *transcodeFixture {
	t.Helper()
	repo := newFakeRepo()
	dispatcher := &fakeDispatcher{}
	runner := &fakeRunner{data: []byte("optimized mp4 bytes")}
	cfg := testConfig(t)

	id := repo.addRecording(t, func(rec *entities.Recording) {
		rec.Stage = constant.StageUploaded
		rec.TranscodeStatus = constant.JobStatusPending
	})
	sessionDir, rawPath := sessionPaths(cfg.Upload.TempDir, id)
	if err := os.MkdirAll(sessionDir, os.ModePerm); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(rawPath, webmChunk(4096), 0o644); err != nil {
		t.Fatalf("write raw: %v", err)
	}

	svc := NewTranscodeService(repo, NewOrchestrator(repo, dispatcher, cfg), runner, cfg).(*transcodeService)
	svc.now = func() time.Time { return time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC) }

	return &transcodeFixture{
		repo:       repo,
		dispatcher: dispatcher,
		runner:     runner,
		svc:        svc,
		message: dto.TranscodeMessage{
			JobId:       repo.addJob(t, id, constant.JobTypeTranscode),
			RecordingId: id,
			RawPath:     rawPath,
			SessionDir:  sessionDir,
		},
	}
}

func (f *transcodeFixture) assertCleaned(t *testing.T) {
	t.Helper()
	for _, p := range []string{f.message.RawPath, f.message.SessionDir} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be removed, stat: %v", p, err)
		}
	}
	workDir := filepath.Join(f.svc.cfg.Upload.TempDir, "transcode", f.message.JobId.String())
	if _, err := os.Stat(workDir); !os.IsNotExist(err) {
		t.Fatalf("expected work dir to be removed, stat: %v", err)
	}
}

func TestVideoKey(t *testing.T) {
	id := uuid.MustParse("8d0c7a4e-3f1a-4c55-9d7e-3b7b1b0f6a10")
	got := VideoKey(id, time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC))
	want := "oitivas/2026/01/8d0c7a4e-3f1a-4c55-9d7e-3b7b1b0f6a10.mp4"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestTranscodeProcessSuccess(t *testing.T) {
	f := newTranscodeFixture(t)
	ctx := context.Background()

	if err := f.svc.Process(ctx, f.message); err != nil {
		t.Fatalf("process: %v", err)
	}

	sum := sha256.Sum256([]byte("optimized mp4 bytes"))
	wantHash := hex.EncodeToString(sum[:])
	wantKey := "oitivas/2026/03/" + f.message.RecordingId.String() + ".mp4"

	rec := f.repo.recording(t, f.message.RecordingId)
	if rec.Stage != constant.StageTranscoded || rec.TranscodeStatus != constant.JobStatusCompleted {
		t.Fatalf("unexpected state %s/%s", rec.Stage, rec.TranscodeStatus)
	}
	if rec.VideoKey == nil || *rec.VideoKey != wantKey {
		t.Fatalf("unexpected video key %v", rec.VideoKey)
	}
	if rec.VideoHash == nil || *rec.VideoHash != wantHash {
		t.Fatalf("expected hash of the output, got %v", rec.VideoHash)
	}

	r, err := f.svc.cfg.Storage.Get(ctx, wantKey)
	if err != nil {
		t.Fatalf("get uploaded video: %v", err)
	}
	data, _ := io.ReadAll(r)
	_ = r.Close()
	if string(data) != "optimized mp4 bytes" {
		t.Fatalf("unexpected uploaded content %q", data)
	}

	job, _ := f.repo.FindJobById(ctx, f.message.JobId)
	if job.Status != constant.JobStatusCompleted {
		t.Fatalf("expected job completed, got %s", job.Status)
	}
	if n := f.dispatcher.count(constant.JobTypeTranscribe); n != 1 {
		t.Fatalf("expected transcription dispatched once, got %d", n)
	}
	f.assertCleaned(t)
}

func TestTranscodeProcessEncoderFailure(t *testing.T) {
	f := newTranscodeFixture(t)
	f.runner.fail = func(int) error {
		return &ffmpeg.ExecError{Args: []string{"-i"}, Output: "Invalid data found", Err: errors.New("exit status 1")}
	}

	err := f.svc.Process(context.Background(), f.message)
	assertMarker(t, err, ErrExternalTool)
	assertMarker(t, err, ErrNonRetryable)

	rec := f.repo.recording(t, f.message.RecordingId)
	if rec.TranscodeStatus != constant.JobStatusFailed || rec.VideoKey != nil {
		t.Fatalf("unexpected state %s key=%v", rec.TranscodeStatus, rec.VideoKey)
	}
	job, _ := f.repo.FindJobById(context.Background(), f.message.JobId)
	if job.Status != constant.JobStatusFailed || job.LastError == nil {
		t.Fatalf("expected failed job with reason, got %+v", job)
	}
	if n := f.dispatcher.count(constant.JobTypeTranscribe); n != 0 {
		t.Fatalf("expected no transcription dispatch, got %d", n)
	}
	f.assertCleaned(t)
}

func TestTranscodeProcessRetriesEncoder(t *testing.T) {
	f := newTranscodeFixture(t)
	f.svc.cfg.Encoder.Attempts = 2
	f.runner.fail = func(call int) error {
		if call == 1 {
			return errors.New("transient")
		}
		return nil
	}

	if err := f.svc.Process(context.Background(), f.message); err != nil {
		t.Fatalf("process: %v", err)
	}
	if n := f.runner.callCount(); n != 2 {
		t.Fatalf("expected 2 encoder calls, got %d", n)
	}
}

func TestTranscodeProcessMissingRawInput(t *testing.T) {
	f := newTranscodeFixture(t)
	if err := os.Remove(f.message.RawPath); err != nil {
		t.Fatalf("remove raw: %v", err)
	}

	err := f.svc.Process(context.Background(), f.message)
	assertMarker(t, err, ErrIntegrity)
	if f.runner.callCount() != 0 {
		t.Fatalf("encoder must not run without input")
	}
}

func TestTranscodeProcessSkipsClaimedJob(t *testing.T) {
	f := newTranscodeFixture(t)
	if err := f.repo.UpdateStatusJob(context.Background(), constant.JobStatusProcessing, f.message.JobId); err != nil {
		t.Fatalf("update job: %v", err)
	}

	if err := f.svc.Process(context.Background(), f.message); err != nil {
		t.Fatalf("process: %v", err)
	}
	if f.runner.callCount() != 0 {
		t.Fatalf("a job already taken must not run again")
	}
	if _, err := os.Stat(f.message.RawPath); err != nil {
		t.Fatalf("raw input must be left for the running job: %v", err)
	}
}
