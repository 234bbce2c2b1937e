// Package ffmpeg runs the encoder binary and builds its argument lists.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var ErrTimeout = errors.New("ffmpeg timed out")

// ExecError carries the combined output of a failed encoder run.
type ExecError struct {
	Args   []string
	Output string
	Err    error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("ffmpeg execution failed: %v", e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

type Runner interface {
	Run(ctx context.Context, args ...string) error
}

type runner struct {
	binary  string
	timeout time.Duration
}

func (r runner) Run(ctx context.Context, args ...string) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.WaitDelay = 10 * time.Second
	zerolog.Ctx(ctx).Debug().Str("command", r.binary+" "+strings.Join(args, " ")).Msg("executing ffmpeg")

	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = errors.Join(ErrTimeout, err)
		}
		return &ExecError{Args: args, Output: tail(string(output), 4096), Err: err}
	}
	return nil
}

func NewRunner(binary string, timeout time.Duration) Runner {
	if binary == "" {
		binary = "ffmpeg"
	}
	return runner{binary: binary, timeout: timeout}
}

// Output returns the encoder output attached to err, if any.
func Output(err error) string {
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return execErr.Output
	}
	return ""
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// OptimizeArgs re-encodes a raw browser recording into a fast-start H.264/AAC MP4.
func OptimizeArgs(input, output string) []string {
	return []string{
		"-y",
		"-i", input,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "26",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"-af", "asetpts=PTS-STARTPTS",
		output,
	}
}

// ExtractAudioArgs produces 16 kHz mono PCM with loudness normalization.
func ExtractAudioArgs(input, output string) []string {
	return []string{
		"-i", input,
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"-af", "loudnorm=I=-16:TP=-1.5:LRA=11",
		output,
		"-y",
	}
}

// SegmentArgs splits a video into fixed-length parts named by pattern,
// e.g. "{uuid}_%03d.mp4".
func SegmentArgs(input, pattern string, segmentSeconds int, maxPartSize string) []string {
	return []string{
		"-i", input,
		"-f", "segment",
		"-segment_time", strconv.Itoa(segmentSeconds),
		"-reset_timestamps", "1",
		"-fs", maxPartSize,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "192k",
		"-filter:v", "fps=24",
		pattern,
	}
}
