package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"recording-pipeline/config"
	"recording-pipeline/constant"
	"recording-pipeline/entities"
	"recording-pipeline/pkg/blobstore"
	"recording-pipeline/repository"
)

type fakeRepo struct {
	mu         sync.Mutex
	recordings map[uuid.UUID]*entities.Recording
	jobs       map[uuid.UUID]*entities.Job
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		recordings: map[uuid.UUID]*entities.Recording{},
		jobs:       map[uuid.UUID]*entities.Job{},
	}
}

func (r *fakeRepo) AutoMigrate(ctx context.Context) error { return nil }

func (r *fakeRepo) CreateRecording(ctx context.Context, recording *entities.Recording) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if recording.ID == uuid.Nil {
		recording.ID = uuid.New()
	}
	if recording.Stage == "" {
		recording.Stage = constant.StageCreated
	}
	cp := *recording
	r.recordings[recording.ID] = &cp
	return nil
}

func (r *fakeRepo) FindRecordingById(ctx context.Context, id uuid.UUID) (*entities.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recordings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeRepo) ListRecordings(ctx context.Context, limit int) ([]*entities.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entities.Recording, 0, len(r.recordings))
	for _, rec := range r.recordings {
		cp := *rec
		out = append(out, &cp)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepo) FindResumable(ctx context.Context) ([]*entities.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Recording
	for _, rec := range r.recordings {
		uploaded := rec.Stage == constant.StageUploaded && rec.TranscodeStatus.InFlight()
		transcoded := rec.Stage == constant.StageTranscoded &&
			(rec.TranscriptionStatus == constant.JobStatusNone || rec.TranscriptionStatus == constant.JobStatusPending)
		if uploaded || transcoded {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeRepo) update(id uuid.UUID, fn func(rec *entities.Recording)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recordings[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(rec)
	return nil
}

func (r *fakeRepo) MarkUploaded(ctx context.Context, id uuid.UUID, startedAt, endedAt time.Time) error {
	return r.update(id, func(rec *entities.Recording) {
		rec.Stage = constant.StageUploaded
		rec.TranscodeStatus = constant.JobStatusPending
		rec.RecordingStartedAt = &startedAt
		rec.RecordingEndedAt = &endedAt
	})
}

func (r *fakeRepo) SetStageStatus(ctx context.Context, id uuid.UUID, jobType constant.JobType, status constant.JobStatus) error {
	return r.update(id, func(rec *entities.Recording) {
		switch jobType {
		case constant.JobTypeTranscode:
			rec.TranscodeStatus = status
		case constant.JobTypeTranscribe:
			rec.TranscriptionStatus = status
		case constant.JobTypeArchive:
			rec.ArchiveStatus = status
		}
	})
}

func (r *fakeRepo) SaveProcessedMedia(ctx context.Context, id uuid.UUID, media entities.ProcessedMedia) error {
	return r.update(id, func(rec *entities.Recording) {
		rec.VideoKey = &media.StorageKey
		rec.VideoHash = &media.ContentHash
		rec.VideoSize = &media.ByteSize
		rec.Stage = constant.StageTranscoded
		rec.TranscodeStatus = constant.JobStatusCompleted
	})
}

func (r *fakeRepo) SaveTranscript(ctx context.Context, id uuid.UUID, transcript string) error {
	return r.update(id, func(rec *entities.Recording) {
		rec.Transcript = &transcript
		rec.Stage = constant.StageTranscribed
		rec.TranscriptionStatus = constant.JobStatusCompleted
	})
}

func (r *fakeRepo) ClaimArchive(ctx context.Context, id uuid.UUID) (bool, error) {
	claimed := false
	err := r.update(id, func(rec *entities.Recording) {
		if !rec.ArchiveStatus.InFlight() {
			rec.ArchiveStatus = constant.JobStatusPending
			claimed = true
		}
	})
	return claimed, err
}

func (r *fakeRepo) SaveArchive(ctx context.Context, id uuid.UUID, path string) error {
	return r.update(id, func(rec *entities.Recording) {
		rec.ArchivePath = &path
		rec.ArchiveStatus = constant.JobStatusCompleted
	})
}

func (r *fakeRepo) AppendNote(ctx context.Context, id uuid.UUID, note string) error {
	return r.update(id, func(rec *entities.Recording) {
		rec.Notes += fmt.Sprintf("[%s]: %s\n", time.Now().Format("2006-01-02 15:04:05"), note)
	})
}

func (r *fakeRepo) CreateJob(ctx context.Context, job *entities.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *fakeRepo) FindJobById(ctx context.Context, id uuid.UUID) (*entities.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (r *fakeRepo) ClaimJob(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status != constant.JobStatusPending {
		return false, nil
	}
	job.Status = constant.JobStatusProcessing
	job.Attempts++
	return true, nil
}

func (r *fakeRepo) UpdateStatusJob(ctx context.Context, status constant.JobStatus, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	job.Status = status
	return nil
}

func (r *fakeRepo) FailJob(ctx context.Context, id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	job.Status = constant.JobStatusFailed
	job.LastError = &reason
	return nil
}

func (r *fakeRepo) recording(t *testing.T, id uuid.UUID) *entities.Recording {
	t.Helper()
	rec, err := r.FindRecordingById(context.Background(), id)
	if err != nil {
		t.Fatalf("find recording %s: %v", id, err)
	}
	return rec
}

func (r *fakeRepo) addRecording(t *testing.T, fn func(rec *entities.Recording)) uuid.UUID {
	t.Helper()
	rec := &entities.Recording{ID: uuid.New(), CaseReference: "IP 123/2026", Stage: constant.StageCreated}
	if fn != nil {
		fn(rec)
	}
	if err := r.CreateRecording(context.Background(), rec); err != nil {
		t.Fatalf("create recording: %v", err)
	}
	return rec.ID
}

// addJob stores a pending job so a worker can claim it.
func (r *fakeRepo) addJob(t *testing.T, recordingId uuid.UUID, jobType constant.JobType) uuid.UUID {
	t.Helper()
	job := &entities.Job{ID: uuid.New(), RecordingId: recordingId, JobType: jobType, Status: constant.JobStatusPending}
	if err := r.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job.ID
}

type dispatched struct {
	jobType constant.JobType
	message any
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []dispatched
	err  error
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, jobType constant.JobType, message any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, dispatched{jobType: jobType, message: message})
	return nil
}

func (d *fakeDispatcher) count(jobType constant.JobType) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, m := range d.sent {
		if m.jobType == jobType {
			n++
		}
	}
	return n
}

// fakeRunner stands in for the encoder. By default it writes data to the
// output path found in the arguments.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	data  []byte
	parts int
	fail  func(call int) error
}

func (f *fakeRunner) Run(ctx context.Context, args ...string) error {
	f.mu.Lock()
	f.calls = append(f.calls, args)
	call := len(f.calls)
	f.mu.Unlock()

	if f.fail != nil {
		if err := f.fail(call); err != nil {
			return err
		}
	}
	data := f.data
	if data == nil {
		data = []byte("encoded output")
	}

	if slices.Contains(args, "segment") {
		pattern := args[len(args)-1]
		for i := range max(f.parts, 1) {
			if err := os.WriteFile(fmt.Sprintf(pattern, i), data, 0o644); err != nil {
				return err
			}
		}
		return nil
	}
	output := args[len(args)-1]
	if output == "-y" {
		output = args[len(args)-2]
	}
	return os.WriteFile(output, data, 0o644)
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeASR struct {
	transcript string
	err        error
	audioSeen  bool
}

func (f *fakeASR) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if _, err := os.Stat(audioPath); err == nil {
		f.audioSeen = true
	}
	return f.transcript, f.err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	store, err := blobstore.NewLocal(filepath.Join(t.TempDir(), "blobs"))
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	return &config.Config{
		Storage: store,
		Server:  config.Server{PresignTTL: time.Hour},
		Upload: config.Upload{
			TempDir:         t.TempDir(),
			ChunkSizeLimit:  50 << 20,
			MaxVideoSize:    2 << 30,
			LockWait:        200 * time.Millisecond,
			LockBackend:     constant.LockBackendFile,
			SizeTolerance:   0.01,
			StrictSizeCheck: true,
		},
		Encoder: config.Encoder{Binary: "ffmpeg", Timeout: time.Minute, Attempts: 1},
		Archive: config.Archive{SegmentSeconds: 60, MaxPartSize: "15M", Title: "Arquivo de Teste"},
	}
}

func putBlob(t *testing.T, store blobstore.Store, key string, data []byte) {
	t.Helper()
	if err := store.Put(context.Background(), key, strings.NewReader(string(data)), int64(len(data)), "video/mp4"); err != nil {
		t.Fatalf("put %s: %v", key, err)
	}
}

func assertMarker(t *testing.T, err, marker error) {
	t.Helper()
	if !errors.Is(err, marker) {
		t.Fatalf("expected %v, got %v", marker, err)
	}
}
