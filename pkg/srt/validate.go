package srt

import (
	"fmt"
	"strings"
)

const minExpectedSegments = 10

type Validation struct {
	Valid        bool     `json:"valid"`
	Errors       []string `json:"errors"`
	Warnings     []string `json:"warnings"`
	SegmentCount int      `json:"segment_count"`
}

// Validate performs a structural check on SubRip text. It counts timing
// markers rather than parsed cues.
func Validate(text string) Validation {
	v := Validation{Errors: []string{}, Warnings: []string{}}

	if strings.TrimSpace(text) == "" {
		v.Errors = append(v.Errors, "subtitle text is empty")
		return v
	}

	v.SegmentCount = strings.Count(text, "-->")
	if v.SegmentCount == 0 {
		v.Errors = append(v.Errors, "no timing markers found")
		return v
	}
	if v.SegmentCount < minExpectedSegments {
		v.Warnings = append(v.Warnings, fmt.Sprintf("only %d segments found", v.SegmentCount))
	}

	v.Valid = true
	return v
}
