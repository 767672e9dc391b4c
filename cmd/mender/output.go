package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/huangang/codemender/internal/models"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

var (
	successPrefix = color.New(color.FgHiGreen).Sprint("✓")
	errorPrefix   = color.New(color.FgHiRed).Sprint("✗")
	infoPrefix    = color.New(color.FgHiBlue).Sprint("i")

	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	red    = color.New(color.FgHiRed).SprintFunc()
	cyan   = color.New(color.FgHiCyan).SprintFunc()
)

func success(w io.Writer, format string, a ...any) {
	fmt.Fprintf(w, "%s %s\n", successPrefix, fmt.Sprintf(format, a...))
}

func info(w io.Writer, format string, a ...any) {
	fmt.Fprintf(w, "%s %s\n", infoPrefix, fmt.Sprintf(format, a...))
}

func newTable(w io.Writer, headers ...string) *tablewriter.Table {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

func severityColor(s models.Severity) string {
	switch s {
	case models.SeverityCritical, models.SeverityHigh:
		return red(string(s))
	case models.SeverityMedium:
		return yellow(string(s))
	case models.SeverityLow:
		return cyan(string(s))
	default:
		return string(s)
	}
}

func statusColor(s models.IssueStatus) string {
	switch s {
	case models.IssueOpen:
		return yellow(string(s))
	case models.IssueInProgress:
		return cyan(string(s))
	case models.IssueFixed, models.IssueResolved:
		return green(string(s))
	default:
		return string(s)
	}
}

func healthColor(score int) string {
	s := fmt.Sprintf("%d", score)
	switch {
	case score >= 80:
		return green(s)
	case score >= 50:
		return yellow(s)
	default:
		return red(s)
	}
}

func location(issue *models.Issue) string {
	if issue.Line() == 0 {
		return issue.FilePath
	}
	return fmt.Sprintf("%s:%d", issue.FilePath, issue.Line())
}

func ellipsize(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
