package srt

import (
	"math"
	"strings"
)

const (
	DefaultMaxWords = 20

	minCueDuration = 0.1
	minCueGap      = 0.05
)

// Reindex returns a copy of cues numbered 1..n in order.
func Reindex(cues []Cue) []Cue {
	out := make([]Cue, len(cues))
	for i, c := range cues {
		c.Index = i + 1
		out[i] = c
	}
	return out
}

// SplitLong breaks cues with more than maxWords words into consecutive cues.
// Each piece gets a share of the original duration proportional to its word
// count and never ends after the original cue.
func SplitLong(cues []Cue, maxWords int) []Cue {
	if maxWords < 1 {
		maxWords = DefaultMaxWords
	}

	out := make([]Cue, 0, len(cues))
	for _, c := range cues {
		words := strings.Fields(c.Text)
		if len(words) <= maxWords || c.Duration() <= 0 {
			out = append(out, c)
			continue
		}

		wordsPerSecond := float64(len(words)) / c.Duration()
		cursor := c.Start
		for i := 0; i < len(words); i += maxWords {
			piece := words[i:min(i+maxWords, len(words))]
			end := math.Min(cursor+float64(len(piece))/wordsPerSecond, c.End)
			out = append(out, Cue{
				Start: cursor,
				End:   end,
				Text:  strings.Join(piece, " "),
			})
			cursor = end
		}
	}
	return Reindex(out)
}

// ResolveOverlaps pulls a cue's end back when the next cue starts before it.
func ResolveOverlaps(cues []Cue) []Cue {
	out := append([]Cue(nil), cues...)
	for i := 0; i+1 < len(out); i++ {
		prev, next := &out[i], out[i+1]
		if next.Start < prev.End {
			prev.End = math.Max(prev.Start+minCueDuration, next.Start-minCueGap)
		}
	}
	return out
}

// NormalizeCues parses, renumbers, splits long cues and resolves overlaps.
func NormalizeCues(text string) []Cue {
	cues := Reindex(Parse(text))
	cues = SplitLong(cues, DefaultMaxWords)
	cues = ResolveOverlaps(cues)
	return Reindex(cues)
}

// Normalize returns the repaired SubRip text. Input with no valid cue yields "".
func Normalize(text string) string {
	return Serialize(NormalizeCues(text))
}
