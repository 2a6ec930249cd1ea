// Package section finds and rewrites titled sections of markdown notes.
//
// A section starts at a header line whose text begins with a title (case-insensitive,
// any depth from 1 to 6) and runs up to the next header of the same or a shallower
// depth, or to the end of the document. Only the first matching header is recognised.
package section

import (
	"regexp"
	"strings"
)

// Section is a line range of a document. EndLine is exclusive.
type Section struct {
	StartLine int
	EndLine   int
	Depth     int
}

// SplitLines splits text on "\n". "a\n" yields ["a", ""].
func SplitLines(text string) []string {
	return strings.Split(text, "\n")
}

// Locate returns the first section titled title. The match is a prefix match on the
// header text, so "Timing Tracking Extended" is found when looking for "Timing Tracking".
func Locate(text, title string) (Section, bool) {
	return locateLines(SplitLines(text), title)
}

func titlePattern(title string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^(#{1,6})\s*` + regexp.QuoteMeta(title))
}

func locateLines(lines []string, title string) (Section, bool) {
	re := titlePattern(title)
	for i, line := range lines {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		depth := len(m[1])
		return Section{
			StartLine: i,
			EndLine:   sectionEnd(lines, i+1, len(lines), depth),
			Depth:     depth,
		}, true
	}
	return Section{}, false
}

// sectionEnd returns the first index in [from, limit) holding a header of depth <= depth,
// or limit.
func sectionEnd(lines []string, from, limit, depth int) int {
	for i := from; i < limit; i++ {
		if d := headerDepth(lines[i]); d > 0 && d <= depth {
			return i
		}
	}
	return limit
}

// headerDepth counts the leading '#' characters of a line.
func headerDepth(line string) int {
	n := 0
	for n < len(line) && line[n] == '#' {
		n++
	}
	return n
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

func trimLeadingBlank(lines []string) []string {
	for len(lines) > 0 && isBlank(lines[0]) {
		lines = lines[1:]
	}
	return lines
}

func trimTrailingBlank(lines []string) []string {
	for len(lines) > 0 && isBlank(lines[len(lines)-1]) {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func trimBlankLines(lines []string) []string {
	return trimTrailingBlank(trimLeadingBlank(lines))
}
