package cli

import (
	"fmt"
	"strings"

	"github.com/raphaelgruber/sitesnap/internal/models"
)

// summary is what the run and status commands print when they finish.
type summary struct {
	Title      string
	Batch      string
	Records    []models.Record
	ReportPath string
	Skipped    int
}

// render builds the styled summary text.
func (s summary) render(t Theme) string {
	counts := make(map[models.Status]int, len(models.Statuses))
	var failed []models.Record
	for _, rec := range s.Records {
		counts[rec.Status]++
		if rec.Status == models.StatusFailed {
			failed = append(failed, rec)
		}
	}

	var b strings.Builder

	title := s.Title
	if s.Batch != "" {
		title += fmt.Sprintf(" (batch %s)", s.Batch)
	}
	switch {
	case len(s.Records) > 0 && counts[models.StatusComplete] == len(s.Records):
		b.WriteString(t.completedStyle().Render("✓ "+title) + "\n\n")
	case len(failed) > 0:
		b.WriteString(t.errorStyle().Render("✗ "+title) + "\n\n")
	default:
		b.WriteString(t.warnStyle().Render("• "+title) + "\n\n")
	}

	fmt.Fprintf(&b, "  Projects:     %d\n", len(s.Records))
	for _, st := range models.Statuses {
		if counts[st] == 0 {
			continue
		}
		fmt.Fprintf(&b, "  %-13s %d\n", string(st)+":", counts[st])
	}
	if s.Skipped > 0 {
		fmt.Fprintf(&b, "  %-13s %d\n", "skipped:", s.Skipped)
	}

	if len(failed) > 0 {
		b.WriteString(t.errorStyle().Render(fmt.Sprintf("\nFailed (%d):", len(failed))) + "\n")
		for _, rec := range failed {
			fmt.Fprintf(&b, "  • %s", projectName(rec))
			if rec.Message != "" {
				fmt.Fprintf(&b, ": %s", rec.Message)
			}
			b.WriteString("\n")
		}
	}

	if s.ReportPath != "" {
		b.WriteString("\n" + t.hintStyle().Render("Report written to "+s.ReportPath) + "\n")
	}
	return b.String()
}

func projectName(rec models.Record) string {
	name := rec.ProjectLabel
	if rec.GroupLabel != "" && name != "" {
		name = rec.GroupLabel + "/" + name
	}
	switch {
	case name == "":
		return rec.ProjectID
	case rec.ProjectID == "" || rec.ProjectID == name:
		return name
	}
	return fmt.Sprintf("%s (%s)", name, rec.ProjectID)
}
