package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/vinnividivicci/openingbim-cicd/internal/events"
)

// JobRow is the tracked state of one job, assembled from lifecycle events.
type JobRow struct {
	ID        string
	Status    string
	Progress  int
	Reason    string
	UpdatedAt time.Time
}

// applyJobEvent folds a hub event into the job table.
func applyJobEvent(rows map[string]*JobRow, e events.Event) {
	if !strings.HasPrefix(e.Type, "job.") {
		return
	}

	var data struct {
		JobID    string `json:"job_id"`
		Progress int    `json:"progress"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal(e.Data, &data); err != nil || data.JobID == "" {
		return
	}

	row, ok := rows[data.JobID]
	if !ok {
		row = &JobRow{ID: data.JobID}
		rows[data.JobID] = row
	}
	row.UpdatedAt = e.At

	switch e.Type {
	case "job.created":
		row.Status = "in-progress"
	case "job.progress":
		row.Status = "in-progress"
		row.Progress = data.Progress
	case "job.completed":
		row.Status = "completed"
		row.Progress = 100
	case "job.failed":
		row.Status = "failed"
		row.Reason = data.Reason
	}
}

func renderJobs(rows map[string]*JobRow, theme Theme, width int) string {
	ids := make([]string, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	// Most recently updated first.
	sort.Slice(ids, func(i, j int) bool {
		return rows[ids[i]].UpdatedAt.After(rows[ids[j]].UpdatedAt)
	})
	if len(ids) > 15 {
		ids = ids[:15]
	}

	var b strings.Builder
	b.WriteString(theme.SectionTitle.Render("Jobs"))
	b.WriteString("\n")

	if len(ids) == 0 {
		b.WriteString(theme.Muted.Render("  no jobs yet"))
		return b.String()
	}

	for _, id := range ids {
		row := rows[id]
		var status string
		switch row.Status {
		case "completed":
			status = theme.StatusOK.Render("completed ")
		case "failed":
			status = theme.StatusFailed.Render("failed    ")
		default:
			status = theme.StatusBusy.Render("running   ")
		}

		line := fmt.Sprintf("  %s %s %s %s",
			shortID(id), status, progressBar(row.Progress, 20), row.Reason)
		if width > 0 && len(line) > width {
			line = line[:width]
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func progressBar(pct, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := pct * width / 100
	return fmt.Sprintf("[%s%s] %3d%%",
		strings.Repeat("█", filled), strings.Repeat("░", width-filled), pct)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Theme holds the lipgloss styles for the watch UI.
type Theme struct {
	SectionTitle lipgloss.Style
	StatusOK     lipgloss.Style
	StatusFailed lipgloss.Style
	StatusBusy   lipgloss.Style
	Muted        lipgloss.Style
}

func NewDefaultTheme() Theme {
	return Theme{
		SectionTitle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		StatusOK:     lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		StatusFailed: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		StatusBusy:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Muted:        lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}
