// Package vault stores notes as markdown files below a root directory.
package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const ext = ".md"

// Note identifies a markdown file. ID is the slash separated path below the vault
// root without the extension.
type Note struct {
	ID   string
	Path string
}

type Vault struct {
	root string
}

func New(root string) *Vault {
	return &Vault{root: root}
}

// Root is the vault directory notes are resolved against.
func (v *Vault) Root() string { return v.root }

func (v *Vault) path(id string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimSuffix(id, ext)))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid note id %q", id)
	}
	return filepath.Join(v.root, clean) + ext, nil
}

// Find returns the note, or nil when it does not exist.
func (v *Vault) Find(id string) (*Note, error) {
	path, err := v.path(id)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vault error finding %s: %w", id, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("vault error: %s is a directory", path)
	}
	return &Note{ID: id, Path: path}, nil
}

// Create writes a new note with initial text, creating missing folders. It fails if
// the note already exists.
func (v *Vault) Create(id, text string) (*Note, error) {
	path, err := v.path(id)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("vault error creating folders for %s: %w", id, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("vault error creating %s: %w", id, err)
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return nil, fmt.Errorf("vault error writing %s: %w", id, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("vault error closing %s: %w", id, err)
	}
	return &Note{ID: id, Path: path}, nil
}

func (v *Vault) Read(n *Note) (string, error) {
	data, err := os.ReadFile(n.Path)
	if err != nil {
		return "", fmt.Errorf("vault error reading %s: %w", n.ID, err)
	}
	return string(data), nil
}

// Write atomically replaces the content of a note.
func (v *Vault) Write(n *Note, text string) error {
	f, err := os.CreateTemp(filepath.Dir(n.Path), "."+filepath.Base(n.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("vault error writing temp file for %s: %w", n.ID, err)
	}
	tmpPath := f.Name()

	_, err = f.WriteString(text)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("vault error writing temp file for %s: %w", n.ID, err)
	}

	// Keep the permissions of the existing file.
	if info, err := os.Stat(n.Path); err == nil {
		_ = os.Chmod(tmpPath, info.Mode().Perm())
	} else {
		_ = os.Chmod(tmpPath, 0o644)
	}

	if err := os.Rename(tmpPath, n.Path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("vault error renaming temp file for %s: %w", n.ID, err)
	}
	return nil
}

// DailyNoteID names the daily note of day using a Go time layout.
func DailyNoteID(folder, layout string, day time.Time) string {
	return joinID(folder, day.Format(layout))
}

// WeeklyNoteID names the note of the week containing day by its ISO week, e.g. 2024-W03.
func WeeklyNoteID(folder string, day time.Time) string {
	year, week := day.ISOWeek()
	return joinID(folder, fmt.Sprintf("%d-W%02d", year, week))
}

func joinID(folder, name string) string {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

// ExpandTemplate fills {{date}} and {{title}} in a new note template.
func ExpandTemplate(tmpl, title string, day time.Time) string {
	r := strings.NewReplacer("{{date}}", day.Format("2006-01-02"), "{{title}}", title)
	return r.Replace(tmpl)
}

// OptedOut reports whether the note frontmatter disables syncing with "timing: false".
// Unparseable frontmatter does not opt out.
func OptedOut(text string) bool {
	fm, ok := frontmatter(text)
	if !ok {
		return false
	}
	var meta struct {
		Timing *bool `yaml:"timing"`
	}
	if err := yaml.Unmarshal([]byte(fm), &meta); err != nil {
		return false
	}
	return meta.Timing != nil && !*meta.Timing
}

func frontmatter(text string) (string, bool) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if !strings.HasPrefix(text, "---\n") {
		return "", false
	}
	rest := text[len("---\n"):]
	if strings.HasPrefix(rest, "---\n") || rest == "---" {
		return "", true
	}
	end := strings.Index(rest, "\n---\n")
	if end < 0 {
		if !strings.HasSuffix(rest, "\n---") {
			return "", false
		}
		end = len(rest) - len("\n---")
	}
	return rest[:end], true
}
