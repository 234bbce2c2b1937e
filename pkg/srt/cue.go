// Package srt parses, repairs and serializes SubRip subtitle text.
package srt

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Cue is one subtitle entry. Times are seconds from the start of the media.
type Cue struct {
	Index int
	Start float64
	End   float64
	Text  string
}

func (c Cue) Duration() float64 {
	return c.End - c.Start
}

var timingLine = regexp.MustCompile(`^\s*(\d+):(\d{2}):(\d{2})[.,](\d{3})\s*-->\s*(\d+):(\d{2}):(\d{2})[.,](\d{3})`)

var timestamp = regexp.MustCompile(`^(\d+):(\d{2}):(\d{2})[.,](\d{3})$`)

var blockSeparator = regexp.MustCompile(`\n\s*\n`)

// Parse reads SubRip text into cues. Blocks without a valid timing line,
// with end <= start, or without text are dropped.
func Parse(text string) []Cue {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var cues []Cue
	for _, block := range blockSeparator.Split(strings.TrimSpace(text), -1) {
		cue, ok := parseBlock(block)
		if !ok {
			continue
		}
		cue.Index = len(cues) + 1
		cues = append(cues, cue)
	}
	return cues
}

func parseBlock(block string) (Cue, bool) {
	lines := strings.Split(strings.TrimSpace(block), "\n")

	timingAt := -1
	for i, line := range lines {
		if strings.Contains(line, "-->") {
			timingAt = i
			break
		}
	}
	if timingAt < 0 {
		return Cue{}, false
	}

	m := timingLine.FindStringSubmatch(lines[timingAt])
	if m == nil {
		return Cue{}, false
	}
	start := toSeconds(m[1], m[2], m[3], m[4])
	end := toSeconds(m[5], m[6], m[7], m[8])
	if end <= start {
		return Cue{}, false
	}

	var words []string
	for _, line := range lines[timingAt+1:] {
		if line = strings.TrimSpace(line); line != "" {
			words = append(words, line)
		}
	}
	if len(words) == 0 {
		return Cue{}, false
	}

	return Cue{Start: start, End: end, Text: strings.Join(words, " ")}, true
}

func toSeconds(h, m, s, ms string) float64 {
	hours, _ := strconv.Atoi(h)
	minutes, _ := strconv.Atoi(m)
	seconds, _ := strconv.Atoi(s)
	millis, _ := strconv.Atoi(ms)
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000
}

// ParseTimestamp converts "HH:MM:SS,mmm" (or with a period) into seconds.
func ParseTimestamp(value string) (float64, error) {
	m := timestamp.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	return toSeconds(m[1], m[2], m[3], m[4]), nil
}

// FormatTimestamp renders seconds as "HH:MM:SS,mmm". Every component is floored.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	// nudge before flooring so 1.1 does not render as 1,099
	totalMillis := int64(math.Floor(seconds*1000 + 1e-6))
	hours := totalMillis / 3_600_000
	minutes := totalMillis / 60_000 % 60
	secs := totalMillis / 1000 % 60
	millis := totalMillis % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// Serialize renders cues as SubRip text using their Index fields.
func Serialize(cues []Cue) string {
	var b strings.Builder
	for _, c := range cues {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", c.Index, FormatTimestamp(c.Start), FormatTimestamp(c.End), c.Text)
	}
	return b.String()
}
