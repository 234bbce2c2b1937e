package ffmpeg

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestOptimizeArgs(t *testing.T) {
	got := strings.Join(OptimizeArgs("in.webm", "out.mp4"), " ")
	want := "-y -i in.webm -c:v libx264 -preset veryfast -crf 26 -c:a aac -b:a 128k -movflags +faststart -af asetpts=PTS-STARTPTS out.mp4"
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}

func TestExtractAudioArgs(t *testing.T) {
	got := strings.Join(ExtractAudioArgs("v.mp4", "a.wav"), " ")
	want := "-i v.mp4 -ar 16000 -ac 1 -c:a pcm_s16le -af loudnorm=I=-16:TP=-1.5:LRA=11 a.wav -y"
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}

func TestSegmentArgs(t *testing.T) {
	args := SegmentArgs("v.mp4", "id_%03d.mp4", 60, "15M")
	joined := strings.Join(args, " ")
	for _, part := range []string{"-f segment", "-segment_time 60", "-reset_timestamps 1", "-fs 15M", "-filter:v fps=24"} {
		if !strings.Contains(joined, part) {
			t.Fatalf("missing %q in %q", part, joined)
		}
	}
	if args[len(args)-1] != "id_%03d.mp4" {
		t.Fatalf("pattern must be the last argument, got %q", args[len(args)-1])
	}
}

func TestRunnerReportsOutputOnFailure(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	r := NewRunner(sh, time.Minute)
	err = r.Run(context.Background(), "-c", "echo broken input >&2; exit 3")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(Output(err), "broken input") {
		t.Fatalf("expected output to be attached, got %q", Output(err))
	}
}

func TestRunnerTimeout(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	r := NewRunner(sh, 50*time.Millisecond)
	err = r.Run(context.Background(), "-c", "exec sleep 5")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}
