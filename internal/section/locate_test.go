package section

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitLines_TrailingNewline(t *testing.T) {
	assert.Equal(t, []string{"a", ""}, SplitLines("a\n"))
	assert.Equal(t, []string{""}, SplitLines(""))
	assert.Equal(t, []string{"a", "b"}, SplitLines("a\nb"))
}

func TestLocate_DepthBoundary(t *testing.T) {
	text := "## Timing Tracking\nfoo\n## Other\nbar"

	sec, ok := Locate(text, "Timing Tracking")
	require.True(t, ok)
	assert.Equal(t, Section{StartLine: 0, EndLine: 2, Depth: 2}, sec)
	assert.Equal(t, "## Timing Tracking\nfoo", content(text, sec))
}

func TestLocate(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		title string
		want  Section
		found bool
	}{
		{
			name:  "not found",
			text:  "# Day\n\n## Tasks\n- a",
			title: "Timing Tracking",
			found: false,
		},
		{
			name:  "case insensitive",
			text:  "# Day\n### timing TRACKING\nx",
			title: "Timing Tracking",
			want:  Section{StartLine: 1, EndLine: 3, Depth: 3},
			found: true,
		},
		{
			name:  "prefix match on header text",
			text:  "## Timing Tracking Extended\nx\n## Next",
			title: "Timing Tracking",
			want:  Section{StartLine: 0, EndLine: 2, Depth: 2},
			found: true,
		},
		{
			name:  "no space after hashes",
			text:  "##Timing Tracking\nx",
			title: "Timing Tracking",
			want:  Section{StartLine: 0, EndLine: 2, Depth: 2},
			found: true,
		},
		{
			name:  "deeper headers stay inside",
			text:  "# Day\n## Timing Tracking\n### Apps\nx\n#### Detail\n# Next",
			title: "Timing Tracking",
			want:  Section{StartLine: 1, EndLine: 5, Depth: 2},
			found: true,
		},
		{
			name:  "shallower header ends the section",
			text:  "### Timing Tracking\nx\n# Top",
			title: "Timing Tracking",
			want:  Section{StartLine: 0, EndLine: 2, Depth: 3},
			found: true,
		},
		{
			name:  "empty body followed by header",
			text:  "## Timing Tracking\n## Other",
			title: "Timing Tracking",
			want:  Section{StartLine: 0, EndLine: 1, Depth: 2},
			found: true,
		},
		{
			name:  "empty body at end of document",
			text:  "## Timing Tracking",
			title: "Timing Tracking",
			want:  Section{StartLine: 0, EndLine: 1, Depth: 2},
			found: true,
		},
		{
			name:  "first match wins, deeper duplicate is trailing content",
			text:  "## Timing Tracking\na\n### Timing Tracking\nb",
			title: "Timing Tracking",
			want:  Section{StartLine: 0, EndLine: 4, Depth: 2},
			found: true,
		},
		{
			name:  "first match wins, equal-depth duplicate ends it",
			text:  "## Timing Tracking\na\n## Timing Tracking\nb",
			title: "Timing Tracking",
			want:  Section{StartLine: 0, EndLine: 2, Depth: 2},
			found: true,
		},
		{
			name:  "any line starting with a hash counts as a header",
			text:  "## Timing Tracking\nx\n#tag\ny",
			title: "Timing Tracking",
			want:  Section{StartLine: 0, EndLine: 2, Depth: 2},
			found: true,
		},
		{
			name:  "seven hashes is not a title header",
			text:  "####### Timing Tracking\nx",
			title: "Timing Tracking",
			found: false,
		},
		{
			name:  "title must follow the hashes",
			text:  "## My Timing Tracking\nx",
			title: "Timing Tracking",
			found: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sec, ok := Locate(tt.text, tt.title)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, sec)
			}
		})
	}
}

func TestLocate_RegexMetacharactersInTitle(t *testing.T) {
	sec, ok := Locate("## Time (h) + notes?\nx", "Time (h) + notes?")
	require.True(t, ok)
	assert.Equal(t, 2, sec.Depth)

	_, ok = Locate("## Time h notes\nx", "Time (h)")
	assert.False(t, ok)
}

// content returns the lines of sec within text.
func content(text string, sec Section) string {
	return strings.Join(SplitLines(text)[sec.StartLine:sec.EndLine], "\n")
}
