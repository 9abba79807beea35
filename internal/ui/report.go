package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"github.com/lakshaymaurya-felt/gitlab-cleaner/internal/artifacts"
	"github.com/lakshaymaurya-felt/gitlab-cleaner/internal/core"
)

var statusColors = map[artifacts.Status]lipgloss.TerminalColor{
	artifacts.StatusCleaned: ColorGreen,
	artifacts.StatusDryRun:  ColorCyan,
	artifacts.StatusSkipped: ColorMuted,
	artifacts.StatusFailed:  ColorRed,
}

// RenderReport writes one line per project, in report order.
// Colors are only used when styled is true.
func RenderReport(w io.Writer, report artifacts.Report, styled bool) error {
	statusWidth := lo.Max(lo.Map(report.Projects, func(p artifacts.ProjectReport, _ int) int { return len(p.Status) }))
	pathWidth := lo.Max(lo.Map(report.Projects, func(p artifacts.ProjectReport, _ int) int { return len(p.PathWithNamespace) }))

	for _, p := range report.Projects {
		status := fmt.Sprintf("%-*s", statusWidth, p.Status)
		path := fmt.Sprintf("%-*s", pathWidth, p.PathWithNamespace)
		details := projectDetails(p)

		if styled {
			status = lipgloss.NewStyle().Bold(true).Foreground(statusColors[p.Status]).Render(status)
			details = lipgloss.NewStyle().Foreground(ColorMuted).Render(details)
		}

		line := strings.TrimRight(strings.Join([]string{status, path, details}, "  "), " ")
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	return nil
}

func projectDetails(p artifacts.ProjectReport) string {
	if p.Status == artifacts.StatusSkipped {
		return ""
	}

	label := "freed"
	if p.Status == artifacts.StatusDryRun {
		label = "reclaimable"
	}
	details := fmt.Sprintf("jobs=%d/%d %s=%s", p.JobsCleaned, p.JobsMatched, label, core.FormatSize(p.Bytes))
	if p.Failures > 0 {
		details += fmt.Sprintf(" failures=%d", p.Failures)
	}
	if p.Err != nil {
		details += fmt.Sprintf(" error=%q", p.Err.Error())
	}
	return details
}

// Summary is a single line describing the report totals.
func Summary(report artifacts.Report) string {
	t := report.Totals()
	verb := "freed"
	if report.DryRun {
		verb = "reclaimable"
	}
	return fmt.Sprintf("%d project(s), %d skipped, %d/%d job(s) cleaned, %s %s, %d failure(s) in %s",
		t.Projects, t.Skipped, t.JobsCleaned, t.JobsMatched, core.FormatSize(t.Bytes), verb, t.Failures, report.Duration.Round(time.Millisecond))
}
