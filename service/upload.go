package service

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"recording-pipeline/config"
	"recording-pipeline/constant"
	"recording-pipeline/dto"
	"recording-pipeline/pkg/fileutil"
	"recording-pipeline/pkg/lease"
	"recording-pipeline/repository"
)

const (
	metadataFile = "metadata.json"
	sniffBytes   = 3072
)

var allowedChunkTypes = []string{"video/webm", "video/x-matroska", "application/octet-stream"}

type ChunkRequest struct {
	RecordingID uuid.UUID
	PartNumber  int
	IsFinal     bool
	// Chunk is nil when the request carried no payload.
	Chunk io.Reader
	// Size is the declared payload size, or -1 when unknown.
	Size int64
}

type PartInfo struct {
	Number     int       `json:"number"`
	Size       int64     `json:"size"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// SessionMetadata is persisted next to the raw file of an upload session.
type SessionMetadata struct {
	SessionID uuid.UUID  `json:"sessionId"`
	StartedAt time.Time  `json:"startedAt"`
	Parts     []PartInfo `json:"parts"`
	TotalSize int64      `json:"totalSize"`
	LastPart  int        `json:"lastPart"`
	Finalized bool       `json:"finalized"`
}

func (m *SessionMetadata) hasPart(number int) bool {
	return slices.ContainsFunc(m.Parts, func(p PartInfo) bool { return p.Number == number })
}

type UploadService interface {
	AppendChunk(ctx context.Context, req ChunkRequest) (dto.ChunkResponse, error)
}

type uploadService struct {
	repo         repository.JobRepository
	orchestrator Orchestrator
	locker       lease.Locker
	cfg          *config.Config
}

func NewUploadService(repo repository.JobRepository, orchestrator Orchestrator, locker lease.Locker, cfg *config.Config) UploadService {
	return &uploadService{
		repo:         repo,
		orchestrator: orchestrator,
		locker:       locker,
		cfg:          cfg,
	}
}

// AppendChunk appends one part of a recording to its session file. The final
// call verifies the assembled file and dispatches the transcode job once.
// Any failure other than a busy session or a conflict discards the session.
func (s *uploadService) AppendChunk(ctx context.Context, req ChunkRequest) (res dto.ChunkResponse, err error) {
	logger := zerolog.Ctx(ctx).With().
		Str("recording_id", req.RecordingID.String()).
		Int("part_number", req.PartNumber).
		Bool("is_final", req.IsFinal).
		Logger()
	ctx = logger.WithContext(ctx)

	if req.PartNumber < 1 {
		return res, Wrap(ErrClientInput, "upload", "validate", "part_number must be at least 1", nil)
	}

	rec, err := s.repo.FindRecordingById(ctx, req.RecordingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return res, Wrap(ErrNotFound, "upload", "find recording", req.RecordingID.String(), nil)
		}
		return res, Wrap(ErrServerIO, "upload", "find recording", "", err)
	}
	if rec.Stage != constant.StageCreated {
		if req.IsFinal && req.Chunk == nil {
			logger.Info().Msg("upload already finalized")
			return dto.ChunkResponse{Status: string(constant.JobStatusProcessing), PartNumber: req.PartNumber, FinalSize: derefSize(rec.VideoSize)}, nil
		}
		return res, Wrap(ErrConflict, "upload", "append", "recording upload already completed", nil)
	}

	sessionDir, rawPath := sessionPaths(s.cfg.Upload.TempDir, req.RecordingID)
	lockPath := sessionLockPath(s.cfg.Upload.TempDir, req.RecordingID)
	if err := os.MkdirAll(filepath.Dir(lockPath), os.ModePerm); err != nil {
		return res, Wrap(ErrServerIO, "upload", "create lock directory", "", err)
	}

	release, err := s.locker.Acquire(ctx, lockPath, s.cfg.Upload.LockWait)
	if err != nil {
		if errors.Is(err, lease.ErrNotAcquired) {
			logger.Warn().Msg("session lock busy")
			return res, Wrap(ErrBusy, "upload", "lock", "another chunk is being written", nil)
		}
		return res, Wrap(ErrServerIO, "upload", "lock", "", err)
	}

	var payload *bufio.Reader
	if err = os.MkdirAll(sessionDir, os.ModePerm); err != nil {
		err = Wrap(ErrServerIO, "upload", "create session", "", err)
	} else if req.Chunk != nil {
		payload, err = s.inspect(req)
	}
	if err == nil {
		res, err = s.appendLocked(ctx, req, payload, sessionDir, rawPath)
	}
	if releaseErr := release(); releaseErr != nil {
		logger.Warn().Err(releaseErr).Msg("failed to release session lock")
	}

	if err != nil && !errors.Is(err, ErrBusy) && !errors.Is(err, ErrConflict) {
		logger.Error().Err(err).Msg("chunk rejected, discarding session")
		if rmErr := os.RemoveAll(sessionDir); rmErr != nil {
			logger.Error().Err(rmErr).Msg("failed to remove session directory")
		}
	}
	return res, err
}

// inspect enforces the declared size limit and buffers the payload so its
// leading bytes can be sniffed. An empty payload is reported as nil.
func (s *uploadService) inspect(req ChunkRequest) (*bufio.Reader, error) {
	if req.Size > s.cfg.Upload.ChunkSizeLimit {
		return nil, Wrap(ErrClientInput, "upload", "validate",
			fmt.Sprintf("chunk of %d bytes exceeds the %d byte limit", req.Size, s.cfg.Upload.ChunkSizeLimit), nil)
	}

	br := bufio.NewReaderSize(req.Chunk, sniffBytes)
	head, err := br.Peek(sniffBytes)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, Wrap(ErrClientInput, "upload", "read chunk", "chunk stream ended unexpectedly", err)
	}
	if len(head) == 0 {
		return nil, nil
	}
	return br, nil
}

// sniff checks the container type of the first payload of a session. Later
// parts are mid-stream cluster bytes with no header to detect.
func sniff(payload *bufio.Reader) error {
	head, _ := payload.Peek(sniffBytes)
	mtype := mimetype.Detect(head)
	if !slices.ContainsFunc(allowedChunkTypes, mtype.Is) {
		return Wrap(ErrClientInput, "upload", "validate", fmt.Sprintf("content type %s is not accepted", mtype.String()), nil)
	}
	return nil
}

func (s *uploadService) appendLocked(ctx context.Context, req ChunkRequest, payload *bufio.Reader, sessionDir, rawPath string) (dto.ChunkResponse, error) {
	logger := zerolog.Ctx(ctx)
	res := dto.ChunkResponse{PartNumber: req.PartNumber}
	metaPath := filepath.Join(sessionDir, metadataFile)

	meta, err := readMetadata(metaPath)
	if err != nil {
		return res, Wrap(ErrIntegrity, "upload", "read metadata", "", err)
	}
	dirty := false
	if meta == nil {
		switch {
		case req.PartNumber == 1:
			meta = &SessionMetadata{SessionID: req.RecordingID, StartedAt: time.Now().UTC(), Parts: []PartInfo{}}
			dirty = true
		case payload != nil || req.IsFinal:
			return res, Wrap(ErrIntegrity, "upload", "append", fmt.Sprintf("part %d received before the session started", req.PartNumber), nil)
		default:
			res.Message = fmt.Sprintf("Part %d received", req.PartNumber)
			return res, nil
		}
	}

	if meta.Finalized {
		if req.IsFinal && payload == nil {
			res.Status = string(constant.JobStatusProcessing)
			res.FinalSize = meta.TotalSize
			return res, nil
		}
		return res, Wrap(ErrConflict, "upload", "append", "session already finalized", nil)
	}

	if payload != nil {
		switch {
		case meta.hasPart(req.PartNumber):
			logger.Info().Msg("part already registered, skipping append")
		case req.PartNumber < meta.LastPart:
			return res, Wrap(ErrIntegrity, "upload", "append",
				fmt.Sprintf("part %d arrived after part %d", req.PartNumber, meta.LastPart), nil)
		default:
			if len(meta.Parts) == 0 {
				if err := sniff(payload); err != nil {
					return res, err
				}
			}
			if err := s.appendPart(ctx, meta, req.PartNumber, payload, rawPath); err != nil {
				return res, err
			}
			dirty = true
		}
	}
	if dirty {
		if err := writeMetadata(metaPath, meta); err != nil {
			return res, Wrap(ErrServerIO, "upload", "write metadata", "", err)
		}
	}
	res.TotalSize = meta.TotalSize

	if !req.IsFinal {
		res.Message = fmt.Sprintf("Part %d received", req.PartNumber)
		return res, nil
	}

	finalSize, err := s.verify(ctx, meta, rawPath)
	if err != nil {
		return res, err
	}

	meta.Finalized = true
	if err := writeMetadata(metaPath, meta); err != nil {
		return res, Wrap(ErrServerIO, "upload", "write metadata", "", err)
	}
	if err := s.repo.MarkUploaded(ctx, req.RecordingID, meta.StartedAt, time.Now().UTC()); err != nil {
		return res, Wrap(ErrServerIO, "upload", "mark uploaded", "", err)
	}
	appendNote(ctx, s.repo, req.RecordingID, fmt.Sprintf("upload completed with %d parts, %d bytes", len(meta.Parts), finalSize))

	if err := s.orchestrator.StartTranscode(ctx, req.RecordingID, rawPath, sessionDir); err != nil {
		return res, err
	}

	logger.Info().Int64("size_bytes", finalSize).Int("last_part", meta.LastPart).Msg("upload finalized")
	res.Status = string(constant.JobStatusProcessing)
	res.FinalSize = finalSize
	return res, nil
}

func (s *uploadService) appendPart(ctx context.Context, meta *SessionMetadata, partNumber int, payload io.Reader, rawPath string) error {
	current, err := fileutil.Size(rawPath)
	if err != nil {
		return Wrap(ErrServerIO, "upload", "stat raw file", "", err)
	}
	remaining := s.cfg.Upload.MaxVideoSize - current
	if remaining <= 0 {
		return Wrap(ErrClientInput, "upload", "validate", "recording exceeds the total size limit", nil)
	}
	limit := min(s.cfg.Upload.ChunkSizeLimit, remaining)

	written, err := fileutil.AppendLimited(rawPath, payload, limit)
	if err != nil {
		if errors.Is(err, fileutil.ErrTooLarge) {
			msg := "chunk exceeds the per-chunk size limit"
			if limit == remaining {
				msg = "recording exceeds the total size limit"
			}
			return Wrap(ErrClientInput, "upload", "append", msg, err)
		}
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return Wrap(ErrServerIO, "upload", "append", "", err)
		}
		return Wrap(ErrClientInput, "upload", "append", "chunk stream ended unexpectedly", err)
	}

	meta.Parts = append(meta.Parts, PartInfo{Number: partNumber, Size: written, ReceivedAt: time.Now().UTC()})
	meta.TotalSize += written
	meta.LastPart = partNumber

	zerolog.Ctx(ctx).Debug().Int64("size_bytes", written).Int64("total_size", meta.TotalSize).Msg("part appended")
	return nil
}

// verify checks the assembled file against the metadata total.
func (s *uploadService) verify(ctx context.Context, meta *SessionMetadata, rawPath string) (int64, error) {
	actual, err := fileutil.Size(rawPath)
	if err != nil {
		return 0, Wrap(ErrServerIO, "upload", "stat raw file", "", err)
	}
	if actual == 0 {
		return 0, Wrap(ErrIntegrity, "upload", "finalize", "raw file is missing or empty", nil)
	}

	if actual != meta.TotalSize {
		divergence := math.Abs(float64(actual-meta.TotalSize)) / float64(max(meta.TotalSize, 1))
		event := zerolog.Ctx(ctx).Warn().
			Int64("size_bytes", actual).
			Int64("expected_bytes", meta.TotalSize).
			Float64("divergence", divergence)
		if divergence > s.cfg.Upload.SizeTolerance && s.cfg.Upload.StrictSizeCheck {
			event.Msg("raw file size outside tolerance")
			return 0, Wrap(ErrIntegrity, "upload", "finalize",
				fmt.Sprintf("raw file has %d bytes, metadata expects %d", actual, meta.TotalSize), nil)
		}
		event.Msg("raw file size differs from metadata")
	}
	return actual, nil
}

func readMetadata(path string) (*SessionMetadata, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	meta := &SessionMetadata{}
	if err := json.Unmarshal(data, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func writeMetadata(path string, meta *SessionMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func derefSize(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
