package section

import (
	"strings"
)

// DefaultPreserveTitle names the user-owned sub-section kept across rewrites.
const DefaultPreserveTitle = "Reflection"

type PlacementKind int

const (
	PlaceBottom PlacementKind = iota
	PlaceTop
	PlaceAfterHeader
)

// Placement decides where a section goes when the document does not have it yet.
type Placement struct {
	Kind   PlacementKind
	Header string // used by PlaceAfterHeader
}

func Top() Placement    { return Placement{Kind: PlaceTop} }
func Bottom() Placement { return Placement{Kind: PlaceBottom} }

// AfterHeader places a new section after the whole section of the named header,
// or at the bottom when no such header exists.
func AfterHeader(name string) Placement {
	return Placement{Kind: PlaceAfterHeader, Header: name}
}

func (p Placement) String() string {
	switch p.Kind {
	case PlaceTop:
		return "top"
	case PlaceAfterHeader:
		return "after:" + p.Header
	default:
		return "bottom"
	}
}

// Synchronizer rewrites a titled section of a document.
//
// An existing section is overwritten as a whole: only the text under the preserve
// sub-header survives, every other manual edit inside the section is discarded.
type Synchronizer struct {
	PreserveTitle string
}

func New(preserveTitle string) *Synchronizer {
	return &Synchronizer{PreserveTitle: preserveTitle}
}

// Synchronize is Synchronizer.Synchronize with the default preserve title.
func Synchronize(text, title, body string, placement Placement) string {
	return New(DefaultPreserveTitle).Synchronize(text, title, body, placement)
}

// Synchronize returns text with the section titled title replaced by body, or with
// body inserted according to placement when the section is missing. body should start
// with the section header; a "## title" header is added when it does not.
// The returned document keeps exactly one blank line around the section.
func (s *Synchronizer) Synchronize(text, title, body string, placement Placement) string {
	lines := SplitLines(text)
	trailingNewline := strings.HasSuffix(text, "\n") ||
		(isBlank(text) && strings.HasSuffix(body, "\n"))

	bodyLines := normalizeBody(title, body)

	var out []string
	if sec, ok := locateLines(lines, title); ok {
		bodyLines = relevel(bodyLines, sec.Depth)
		if preserved := s.extractPreserved(lines, sec); len(preserved) > 0 {
			bodyLines = s.injectPreserved(bodyLines, preserved)
		}
		out = splice(lines, sec.StartLine, sec.EndLine, bodyLines)
	} else {
		at := insertionPoint(lines, placement, headerDepth(bodyLines[0]))
		out = splice(lines, at, at, bodyLines)
	}

	result := strings.Join(out, "\n")
	if trailingNewline && !strings.HasSuffix(result, "\n") {
		result += "\n"
	}
	return result
}

// Preserved returns the text under the preserve sub-header of the section titled
// title, with surrounding blank lines removed.
func (s *Synchronizer) Preserved(text, title string) string {
	lines := SplitLines(text)
	sec, ok := locateLines(lines, title)
	if !ok {
		return ""
	}
	return strings.Join(s.extractPreserved(lines, sec), "\n")
}

func normalizeBody(title, body string) []string {
	lines := trimBlankLines(SplitLines(body))
	if len(lines) > 0 && titlePattern(title).MatchString(lines[0]) {
		return lines
	}
	out := make([]string, 0, len(lines)+2)
	out = append(out, "## "+title)
	if len(lines) > 0 {
		out = append(out, "")
		out = append(out, lines...)
	}
	return out
}

// relevel shifts every header of body so that its first line sits at depth, keeping
// the relative depth of sub-headers. Depths are clamped to 1-6.
func relevel(body []string, depth int) []string {
	shift := depth - headerDepth(body[0])
	if shift == 0 {
		return body
	}
	out := make([]string, len(body))
	for i, line := range body {
		d := headerDepth(line)
		if d == 0 || d > 6 || (d < len(line) && line[d] != ' ' && line[d] != '\t') {
			out[i] = line
			continue
		}
		nd := min(max(d+shift, 1), 6)
		out[i] = strings.Repeat("#", nd) + line[d:]
	}
	return out
}

func (s *Synchronizer) extractPreserved(lines []string, sec Section) []string {
	if s.PreserveTitle == "" {
		return nil
	}
	re := titlePattern(s.PreserveTitle)
	for i := sec.StartLine + 1; i < sec.EndLine; i++ {
		m := re.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		end := sectionEnd(lines, i+1, sec.EndLine, len(m[1]))
		return trimBlankLines(lines[i+1 : end])
	}
	return nil
}

// injectPreserved puts preserved under the body's preserve sub-header, replacing the
// rendered placeholder. A sub-header one level below the section is appended when the
// body has none.
func (s *Synchronizer) injectPreserved(body, preserved []string) []string {
	out := make([]string, 0, len(body)+len(preserved)+4)

	re := titlePattern(s.PreserveTitle)
	for i := 1; i < len(body); i++ {
		m := re.FindStringSubmatch(body[i])
		if m == nil {
			continue
		}
		end := sectionEnd(body, i+1, len(body), len(m[1]))
		out = append(out, body[:i+1]...)
		out = append(out, "")
		out = append(out, preserved...)
		if end < len(body) {
			out = append(out, "")
			out = append(out, body[end:]...)
		}
		return out
	}

	out = append(out, body...)
	out = append(out, "")
	if depth := headerDepth(body[0]); depth < 6 {
		out = append(out, strings.Repeat("#", depth+1)+" "+s.PreserveTitle, "")
	}
	return append(out, preserved...)
}

// insertionPoint picks the line index a new section of the given depth is inserted at.
// The index is always moved forward to a header that would end the new section, so
// the following prose is never swallowed by it on the next synchronization.
func insertionPoint(lines []string, placement Placement, depth int) int {
	switch placement.Kind {
	case PlaceTop:
		i := skipFrontmatter(lines)
		for i < len(lines) && isBlank(lines[i]) {
			i++
		}
		if i < len(lines) && isTitleLine(lines[i]) {
			i++
			for i < len(lines) && isBlank(lines[i]) {
				i++
			}
		}
		return sectionEnd(lines, i, len(lines), depth)
	case PlaceAfterHeader:
		if sec, ok := locateLines(lines, placement.Header); ok {
			return sectionEnd(lines, sec.EndLine, len(lines), depth)
		}
	}
	return len(lines)
}

// isTitleLine reports a level-1 header such as "# 2024-01-15".
func isTitleLine(line string) bool {
	return headerDepth(line) == 1 && (len(line) == 1 || line[1] == ' ' || line[1] == '\t')
}

// skipFrontmatter returns the index after a leading "---" YAML block, or 0.
func skipFrontmatter(lines []string) int {
	if len(lines) == 0 || strings.TrimRight(lines[0], " \t\r") != "---" {
		return 0
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], " \t\r") == "---" {
			return i + 1
		}
	}
	return 0
}

func splice(lines []string, from, to int, body []string) []string {
	before := trimTrailingBlank(lines[:from])
	after := trimLeadingBlank(lines[to:])

	out := make([]string, 0, len(before)+len(body)+len(after)+2)
	out = append(out, before...)
	if len(before) > 0 {
		out = append(out, "")
	}
	out = append(out, body...)
	if len(after) > 0 {
		out = append(out, "")
		out = append(out, after...)
	}
	return out
}
