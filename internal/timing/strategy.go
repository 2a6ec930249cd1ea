package timing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const dayLayout = "2006-01-02"

// Runner executes external commands.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Strategy is one way of obtaining the raw payload of a day. The payload is an
// object with "date" and "entries" as accepted by transform.Transform.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, day time.Time) (map[string]any, error)
}

// ReportExport asks the Timing helper to export a JSON report of the day through
// AppleScript and reads the exported file.
type ReportExport struct {
	Runner  Runner
	AppName string
	TempDir string
}

func (s *ReportExport) Name() string { return "report-export" }

func (s *ReportExport) Fetch(ctx context.Context, day time.Time) (map[string]any, error) {
	if err := s.checkRunning(ctx); err != nil {
		return nil, err
	}

	f, err := os.CreateTemp(s.TempDir, "timing-report-*.json")
	if err != nil {
		return nil, &FetchError{Kind: KindExecution, Strategy: s.Name(), Err: err}
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	_, stderr, err := s.Runner.Run(ctx, "osascript", "-e", reportScript(day, path))
	if err != nil {
		return nil, classify(s.Name(), stderr, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FetchError{Kind: KindExecution, Strategy: s.Name(), Err: fmt.Errorf("read exported report: %w", err)}
	}
	payload, err := decodePayload(data, day)
	if err != nil {
		return nil, &FetchError{Kind: KindParsing, Strategy: s.Name(), Err: err}
	}
	return payload, nil
}

func (s *ReportExport) checkRunning(ctx context.Context) error {
	script := fmt.Sprintf("application %s is running", appleScriptString(s.AppName))
	stdout, stderr, err := s.Runner.Run(ctx, "osascript", "-e", script)
	if err != nil {
		return classify(s.Name(), stderr, err)
	}
	if strings.TrimSpace(string(stdout)) != "true" {
		return &FetchError{Kind: KindAppNotRunning, Strategy: s.Name(), Err: fmt.Errorf("%s is not running", s.AppName)}
	}
	return nil
}

// reportScript builds the date from components so it does not depend on the
// system locale.
func reportScript(day time.Time, path string) string {
	return fmt.Sprintf(`set startDate to current date
set day of startDate to 1
set year of startDate to %d
set month of startDate to %d
set day of startDate to %d
set time of startDate to 0
set endDate to startDate + (1 * days) - 1
tell application "TimingHelper"
	set reportSettings to make report settings
	set exportSettings to make export settings
	tell reportSettings
		set first grouping mode to raw
		set time entries included to false
		set app usage included to true
	end tell
	tell exportSettings
		set file format to JSON
		set duration format to seconds
		set short entries included to true
	end tell
	save report with report settings reportSettings export settings exportSettings between startDate and endDate to POSIX file %s
	delete reportSettings
	delete exportSettings
end tell`, day.Year(), int(day.Month()), day.Day(), appleScriptString(path))
}

func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// ExportFile reads <Dir>/YYYY-MM-DD.json files written by an external export job.
type ExportFile struct {
	Dir string
}

func (s *ExportFile) Name() string { return "export-file" }

func (s *ExportFile) Fetch(_ context.Context, day time.Time) (map[string]any, error) {
	path := filepath.Join(s.Dir, day.Format(dayLayout)+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &FetchError{Kind: KindAppNotFound, Strategy: s.Name(), Err: fmt.Errorf("no export at %s", path)}
		}
		return nil, &FetchError{Kind: KindExecution, Strategy: s.Name(), Err: err}
	}
	payload, err := decodePayload(data, day)
	if err != nil {
		return nil, &FetchError{Kind: KindParsing, Strategy: s.Name(), Err: err}
	}
	return payload, nil
}

// decodePayload accepts either a payload object or a Timing report, which is a list
// of records with ISO start and end dates.
func decodePayload(data []byte, day time.Time) (map[string]any, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}

	switch v := raw.(type) {
	case map[string]any:
		if _, ok := v["date"]; !ok {
			v["date"] = day.Format(dayLayout)
		}
		return v, nil
	case []any:
		entries := make([]any, 0, len(v))
		for _, r := range v {
			rec, ok := r.(map[string]any)
			if !ok {
				// Left for the transformer to drop and report.
				entries = append(entries, r)
				continue
			}
			entries = append(entries, reportEntry(rec, day.Location()))
		}
		return map[string]any{"date": day.Format(dayLayout), "entries": entries}, nil
	default:
		return nil, fmt.Errorf("unexpected JSON %T", raw)
	}
}

func reportEntry(rec map[string]any, loc *time.Location) map[string]any {
	return map[string]any{
		"startTime":    clockTime(first(rec, "startTime", "startDate"), loc),
		"endTime":      clockTime(first(rec, "endTime", "endDate"), loc),
		"duration":     rec["duration"],
		"application":  first(rec, "application", "applicationName", "app"),
		"category":     first(rec, "category", "project"),
		"title":        first(rec, "title", "activityTitle"),
		"productivity": first(rec, "productivity", "productivityScore"),
	}
}

func first(rec map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := rec[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// clockTime converts an ISO timestamp to HH:MM:SS in loc. Other values pass through.
func clockTime(v any, loc *time.Location) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return v
	}
	return t.In(loc).Format("15:04:05")
}
