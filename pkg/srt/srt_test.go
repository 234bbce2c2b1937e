package srt

import (
	"math"
	"strings"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestParseJoinsTextAndAcceptsPeriodSeparator(t *testing.T) {
	input := "1\r\n00:00:01.000 --> 00:00:02,500\r\nHello\r\nthere\r\n\r\n2\n00:00:03,000 --> 00:00:04,000\nAgain\n"

	cues := Parse(input)
	if len(cues) != 2 {
		t.Fatalf("expected 2 cues, got %d", len(cues))
	}
	if cues[0].Text != "Hello there" {
		t.Fatalf("unexpected text %q", cues[0].Text)
	}
	if !almostEqual(cues[0].Start, 1) || !almostEqual(cues[0].End, 2.5) {
		t.Fatalf("unexpected times %v-%v", cues[0].Start, cues[0].End)
	}
	if cues[1].Index != 2 {
		t.Fatalf("expected index 2, got %d", cues[1].Index)
	}
}

func TestParseDropsInvalidBlocks(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"end before start", "1\n00:00:01,000 --> 00:00:00,500\nHello\n"},
		{"end equals start", "1\n00:00:01,000 --> 00:00:01,000\nHello\n"},
		{"no timing line", "1\nHello\n"},
		{"malformed timing", "1\n00:01,000 --> 00:02,000\nHello\n"},
		{"no text", "1\n00:00:01,000 --> 00:00:02,000\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if cues := Parse(tt.input); len(cues) != 0 {
				t.Fatalf("expected no cues, got %+v", cues)
			}
		})
	}
}

func TestEndBeforeStartNormalizesToNothing(t *testing.T) {
	out := Normalize("1\n00:00:01,000 --> 00:00:00,500\nHello\n")
	if len(NormalizeCues("1\n00:00:01,000 --> 00:00:00,500\nHello\n")) != 0 {
		t.Fatal("expected zero cues")
	}
	v := Validate(out)
	if v.Valid || len(v.Errors) == 0 {
		t.Fatalf("expected validation error, got %+v", v)
	}
}

func TestRoundTrip(t *testing.T) {
	cues := []Cue{
		{Index: 1, Start: 0.5, End: 2.25, Text: "first line"},
		{Index: 2, Start: 3, End: 4.75, Text: "second"},
		{Index: 3, Start: 3725.125, End: 3730, Text: "an hour in"},
		{Index: 4, Start: 360001, End: 360002.5, Text: "a hundred hours in"},
	}

	got := Parse(Serialize(cues))
	if len(got) != len(cues) {
		t.Fatalf("expected %d cues, got %d", len(cues), len(got))
	}
	for i := range cues {
		if got[i].Index != cues[i].Index || got[i].Text != cues[i].Text ||
			!almostEqual(got[i].Start, cues[i].Start) || !almostEqual(got[i].End, cues[i].End) {
			t.Fatalf("cue %d: got %+v, want %+v", i, got[i], cues[i])
		}
	}
}

func TestFormatTimestampFloors(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "00:00:00,000"},
		{1.1, "00:00:01,100"},
		{1.9999, "00:00:01,999"},
		{61.5, "00:01:01,500"},
		{3725.125, "01:02:05,125"},
		{360001, "100:00:01,000"},
		{-3, "00:00:00,000"},
	}
	for _, tt := range tests {
		if got := FormatTimestamp(tt.in); got != tt.want {
			t.Errorf("FormatTimestamp(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	got, err := ParseTimestamp("01:02:05,125")
	if err != nil {
		t.Fatalf("ParseTimestamp: %v", err)
	}
	if !almostEqual(got, 3725.125) {
		t.Fatalf("got %v", got)
	}
	if got, err := ParseTimestamp("100:00:01,000"); err != nil || !almostEqual(got, 360001) {
		t.Fatalf("three digit hours: got %v, %v", got, err)
	}
	if _, err := ParseTimestamp("1:2:3"); err == nil {
		t.Fatal("expected error for malformed timestamp")
	}
}

func TestSplitLongPreservesDuration(t *testing.T) {
	for _, n := range []int{21, 40, 45, 67} {
		words := make([]string, n)
		for i := range words {
			words[i] = "w"
		}
		orig := Cue{Index: 1, Start: 10, End: 17.3, Text: strings.Join(words, " ")}

		out := SplitLong([]Cue{orig}, DefaultMaxWords)
		wantPieces := (n + DefaultMaxWords - 1) / DefaultMaxWords
		if len(out) != wantPieces {
			t.Fatalf("n=%d: expected %d pieces, got %d", n, wantPieces, len(out))
		}

		var total float64
		for i, c := range out {
			if c.Index != i+1 {
				t.Fatalf("n=%d: piece %d has index %d", n, i, c.Index)
			}
			if len(strings.Fields(c.Text)) > DefaultMaxWords {
				t.Fatalf("n=%d: piece %d too long", n, i)
			}
			total += c.Duration()
		}
		if total > orig.Duration()+1e-9 {
			t.Fatalf("n=%d: pieces last %v, original %v", n, total, orig.Duration())
		}
		if last := out[len(out)-1]; last.End > orig.End {
			t.Fatalf("n=%d: last piece ends at %v after %v", n, last.End, orig.End)
		}
	}
}

func TestSplitLongKeepsShortCues(t *testing.T) {
	cues := []Cue{{Index: 1, Start: 0, End: 1, Text: "short cue"}}
	out := SplitLong(cues, DefaultMaxWords)
	if len(out) != 1 || out[0].Text != "short cue" {
		t.Fatalf("unexpected %+v", out)
	}
}

func TestResolveOverlaps(t *testing.T) {
	cues := []Cue{
		{Index: 1, Start: 0, End: 3, Text: "a"},
		{Index: 2, Start: 2, End: 5, Text: "b"},
		{Index: 3, Start: 4.5, End: 6, Text: "c"},
		{Index: 4, Start: 7, End: 8, Text: "d"},
	}

	out := ResolveOverlaps(cues)
	for i := 0; i+1 < len(out); i++ {
		a, b := out[i], out[i+1]
		if b.Start-a.End < 0.05-1e-9 {
			t.Fatalf("cues %d/%d gap %v", i, i+1, b.Start-a.End)
		}
		if a.End-a.Start < 0.1-1e-9 {
			t.Fatalf("cue %d lasts %v", i, a.End-a.Start)
		}
	}
	if !almostEqual(out[0].End, 1.95) {
		t.Fatalf("expected first end 1.95, got %v", out[0].End)
	}
	if cues[0].End != 3 {
		t.Fatal("input slice was modified")
	}
}

func TestNormalizeRenumbers(t *testing.T) {
	input := "7\n00:00:01,000 --> 00:00:02,000\nkept\n\n" +
		"8\n00:00:03,000 --> 00:00:02,000\ndropped\n\n" +
		"9\n00:00:04,000 --> 00:00:05,000\nalso kept\n"

	want := "1\n00:00:01,000 --> 00:00:02,000\nkept\n\n" +
		"2\n00:00:04,000 --> 00:00:05,000\nalso kept\n\n"
	if got := Normalize(input); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestValidate(t *testing.T) {
	empty := Validate("")
	if empty.Valid || len(empty.Errors) == 0 {
		t.Fatalf("empty: %+v", empty)
	}

	noMarkers := Validate("just words")
	if noMarkers.Valid || len(noMarkers.Errors) == 0 {
		t.Fatalf("no markers: %+v", noMarkers)
	}

	three := Validate(strings.Repeat("1\n00:00:01,000 --> 00:00:02,000\nx\n\n", 3))
	if !three.Valid || len(three.Warnings) == 0 || three.SegmentCount != 3 {
		t.Fatalf("three markers: %+v", three)
	}

	many := Validate(strings.Repeat("1\n00:00:01,000 --> 00:00:02,000\nx\n\n", 12))
	if !many.Valid || len(many.Warnings) != 0 || many.SegmentCount != 12 {
		t.Fatalf("twelve markers: %+v", many)
	}
}
