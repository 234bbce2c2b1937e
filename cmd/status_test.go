package cmd

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"recording-pipeline/dto"
)

func TestRenderStatus(t *testing.T) {
	id := uuid.New()
	out := renderStatus([]dto.RecordingStatus{{
		ID:              id,
		CaseReference:   "IP 9/2026",
		Stage:           "transcoded",
		TranscodeStatus: "completed",
		VideoSize:       5 << 20,
	}})

	for _, want := range []string{id.String(), "IP 9/2026", "transcoded", "completed", "5.0 MiB"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Count(out, "-") == 0 {
		t.Fatalf("expected empty statuses rendered as dashes:\n%s", out)
	}
}

func TestRenderTableEmptyHeaders(t *testing.T) {
	if got := renderTable(nil, nil, nil); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
}
