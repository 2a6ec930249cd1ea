package vault

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindCreateReadWrite(t *testing.T) {
	root := t.TempDir()
	v := New(root)
	assert.Equal(t, root, v.Root())

	n, err := v.Find("Daily/2024-01-15")
	require.NoError(t, err)
	assert.Nil(t, n)

	n, err = v.Create("Daily/2024-01-15", "# 2024-01-15\n")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "Daily", "2024-01-15.md"), n.Path)

	found, err := v.Find("Daily/2024-01-15")
	require.NoError(t, err)
	require.NotNil(t, found)

	text, err := v.Read(found)
	require.NoError(t, err)
	assert.Equal(t, "# 2024-01-15\n", text)

	require.NoError(t, v.Write(found, "# 2024-01-15\n\n## Timing Tracking\n"))
	text, err = v.Read(found)
	require.NoError(t, err)
	assert.Equal(t, "# 2024-01-15\n\n## Timing Tracking\n", text)

	entries, err := os.ReadDir(filepath.Join(root, "Daily"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files are left behind")
}

func TestCreate_Existing(t *testing.T) {
	v := New(t.TempDir())
	_, err := v.Create("note", "a")
	require.NoError(t, err)
	_, err = v.Create("note", "b")
	assert.Error(t, err)
}

func TestWrite_KeepsPermissions(t *testing.T) {
	v := New(t.TempDir())
	n, err := v.Create("note", "a")
	require.NoError(t, err)
	require.NoError(t, os.Chmod(n.Path, 0o600))

	require.NoError(t, v.Write(n, "b"))
	info, err := os.Stat(n.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestInvalidIDs(t *testing.T) {
	v := New(t.TempDir())
	for _, id := range []string{"", "../escape", "/abs/path", "a/../../b"} {
		_, err := v.Find(id)
		assert.Error(t, err, id)
		_, err = v.Create(id, "")
		assert.Error(t, err, id)
	}
}

func TestNoteIDs(t *testing.T) {
	day := time.Date(2024, 1, 17, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "Daily/2024-01-17", DailyNoteID("Daily", "2006-01-02", day))
	assert.Equal(t, "Journal/2024/01/17", DailyNoteID("/Journal/", "2006/01/02", day))
	assert.Equal(t, "2024-01-17", DailyNoteID("", "2006-01-02", day))

	assert.Equal(t, "Weekly/2024-W03", WeeklyNoteID("Weekly", day))
	// ISO week years differ from calendar years around New Year.
	assert.Equal(t, "Weekly/2025-W01", WeeklyNoteID("Weekly", time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC)))
}

func TestExpandTemplate(t *testing.T) {
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "# 2024-01-15\n\nWeek of 2024-01-15\n",
		ExpandTemplate("# {{title}}\n\nWeek of {{date}}\n", "2024-01-15", day))
}

func TestOptedOut(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"---\ntiming: false\n---\n# Note\n", true},
		{"---\r\ntiming: false\r\n---\r\n", true},
		{"---\ntags: [a]\ntiming: false\n---", true},
		{"---\ntiming: true\n---\n", false},
		{"---\ntags: [a]\n---\n", false},
		{"---\n---\n", false},
		{"# Note\ntiming: false\n", false},
		{"---\ntiming: [unclosed\n---\n", false},
		{"---\ntiming: false\n", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OptedOut(tt.text), "%q", tt.text)
	}
}
