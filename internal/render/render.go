// Package render builds the markdown bodies synchronized into notes.
package render

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/charlie0129/timing-notes-sync/internal/format"
	"github.com/charlie0129/timing-notes-sync/internal/models"
)

const reflectionPrompt = "_What went well? What would you change?_"

// Options controls what a rendered section contains.
type Options struct {
	Title           string
	ReflectionTitle string
	Use24HourTime   bool
	ShowTimeline    bool
	TopApplications int
}

type ranked struct {
	Name    string
	Seconds int
}

// rank orders a breakdown by time, then by name for a stable output.
func rank(m map[string]int) []ranked {
	out := make([]ranked, 0, len(m))
	for name, secs := range m {
		out = append(out, ranked{Name: name, Seconds: secs})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seconds != out[j].Seconds {
			return out[i].Seconds > out[j].Seconds
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Daily renders the daily section. The output only depends on data and opts.
func Daily(data *models.DailyTimeData, opts Options) string {
	var b strings.Builder
	s := data.Summary

	fmt.Fprintf(&b, "## %s\n\n", opts.Title)
	if data.Degraded {
		b.WriteString("> [!warning] Placeholder data: Timing could not be reached, these numbers are not real.\n\n")
	}

	apps := rank(s.ByApplication)
	cats := rank(s.ByCategory)

	b.WriteString("### Summary\n\n")
	fmt.Fprintf(&b, "- **Total time:** %s\n", format.Duration(s.TotalTime))
	fmt.Fprintf(&b, "- **Entries:** %s\n", humanize.Comma(int64(len(data.Entries))))
	if len(apps) > 0 {
		fmt.Fprintf(&b, "- **Top application:** %s (%s, %d%%)\n",
			apps[0].Name, format.Duration(apps[0].Seconds), format.Percentage(apps[0].Seconds, s.TotalTime))
	}
	if len(cats) > 0 {
		fmt.Fprintf(&b, "- **Top category:** %s (%s, %d%%)\n",
			cats[0].Name, format.Duration(cats[0].Seconds), format.Percentage(cats[0].Seconds, s.TotalTime))
	}

	if len(apps) > 0 {
		b.WriteString("\n### Applications\n\n")
		writeTable(&b, "Application", limit(apps, opts.TopApplications), s.TotalTime)
	}
	if len(cats) > 0 {
		b.WriteString("\n### Categories\n\n")
		writeTable(&b, "Category", cats, s.TotalTime)
	}

	if len(s.ByHour) > 0 {
		b.WriteString("\n### Hourly Breakdown\n\n")
		b.WriteString("| Hour | Time |\n|---|---|\n")
		hours := make([]int, 0, len(s.ByHour))
		for h := range s.ByHour {
			hours = append(hours, h)
		}
		sort.Ints(hours)
		for _, h := range hours {
			fmt.Fprintf(&b, "| %s | %s |\n", format.Hour(h), format.Duration(s.ByHour[h]))
		}
	}

	if opts.ShowTimeline && len(data.Entries) > 0 {
		b.WriteString("\n### Timeline\n\n")
		for _, e := range data.Entries {
			fmt.Fprintf(&b, "- %s - %s %s",
				format.ClockTime(e.StartTime, opts.Use24HourTime),
				format.ClockTime(e.EndTime, opts.Use24HourTime),
				e.Application)
			if e.Title != "" {
				fmt.Fprintf(&b, ": %s", e.Title)
			}
			fmt.Fprintf(&b, " (%s)\n", format.Duration(e.Duration))
		}
	}

	writeReflection(&b, opts.ReflectionTitle)
	return b.String()
}

// Weekly renders the weekly summary section.
func Weekly(data *models.WeeklyTimeData, opts Options) string {
	var b strings.Builder
	s := data.Summary

	fmt.Fprintf(&b, "## %s\n\n", opts.Title)
	fmt.Fprintf(&b, "_%s to %s_\n\n", data.StartDate, data.EndDate)

	b.WriteString("### Overview\n\n")
	fmt.Fprintf(&b, "- **Total time:** %s\n", format.Duration(s.TotalTime))
	fmt.Fprintf(&b, "- **Daily average:** %s\n", format.Duration(s.AverageTime))
	fmt.Fprintf(&b, "- **Days tracked:** %d of 7\n", s.DaysTracked)

	b.WriteString("\n### Daily Breakdown\n\n")
	b.WriteString("| Day | Time |\n|---|---|\n")
	start, err := time.Parse("2006-01-02", data.StartDate)
	if err == nil {
		for i := 0; i < 7; i++ {
			d := start.AddDate(0, 0, i)
			label := d.Weekday().String()
			if _, ok := data.Days[d.Format("2006-01-02")]; !ok {
				fmt.Fprintf(&b, "| %s | - |\n", label)
				continue
			}
			fmt.Fprintf(&b, "| %s | %s |\n", label, format.Duration(s.ByWeekday[label]))
		}
	}

	b.WriteString("\n### Time Split\n\n")
	b.WriteString("| Kind | Time | Share |\n|---|---|---|\n")
	for _, row := range []ranked{{"Focus", s.FocusTime}, {"Meetings", s.MeetingTime}, {"Other", s.BreakTime}} {
		fmt.Fprintf(&b, "| %s | %s | %d%% |\n", row.Name, format.Duration(row.Seconds), format.Percentage(row.Seconds, s.TotalTime))
	}

	if apps := rank(s.ByApplication); len(apps) > 0 {
		b.WriteString("\n### Top Applications\n\n")
		writeTable(&b, "Application", limit(apps, opts.TopApplications), s.TotalTime)
	}
	if cats := rank(s.ByCategory); len(cats) > 0 {
		b.WriteString("\n### Categories\n\n")
		writeTable(&b, "Category", cats, s.TotalTime)
	}

	writeReflection(&b, opts.ReflectionTitle)
	return b.String()
}

func writeTable(b *strings.Builder, label string, rows []ranked, total int) {
	fmt.Fprintf(b, "| %s | Time | Share |\n|---|---|---|\n", label)
	for _, r := range rows {
		fmt.Fprintf(b, "| %s | %s | %d%% |\n", escapeCell(r.Name), format.Duration(r.Seconds), format.Percentage(r.Seconds, total))
	}
}

func writeReflection(b *strings.Builder, title string) {
	if title == "" {
		return
	}
	fmt.Fprintf(b, "\n### %s\n\n%s\n", title, reflectionPrompt)
}

func limit(rows []ranked, n int) []ranked {
	if n > 0 && len(rows) > n {
		return rows[:n]
	}
	return rows
}

// escapeCell keeps table layout intact for names containing pipes.
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
