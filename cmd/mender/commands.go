package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/huangang/codemender/internal/models"
	"github.com/huangang/codemender/internal/services"
	"github.com/spf13/cobra"
)

var (
	issueStatus   string
	issueSeverity string
	issueLimit    int
)

var projectsCmd = &cobra.Command{
	Use:     "projects",
	Aliases: []string{"ls"},
	Short:   "List connected projects",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := app.projects.List(cmd.Context(), &services.ProjectListRequest{PageSize: 100}, 0, true)
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			info(cmd.OutOrStdout(), "No projects connected")
			return nil
		}

		table := newTable(cmd.OutOrStdout(), "ID", "REPOSITORY", "BRANCH", "LANGUAGE", "HEALTH", "LAST ANALYZED")
		for _, p := range resp.Items {
			analyzed := "never"
			if p.LastAnalyzedAt != nil {
				analyzed = p.LastAnalyzedAt.Local().Format(time.DateTime)
			}
			_ = table.Append([]string{
				strconv.FormatUint(uint64(p.ID), 10),
				p.Owner + "/" + p.Repo,
				p.Branch,
				p.Language,
				healthColor(p.HealthScore),
				analyzed,
			})
		}
		return table.Render()
	},
}

var issuesCmd = &cobra.Command{
	Use:   "issues <project-id>",
	Short: "List a project's issues, most severe first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseProjectID(args[0])
		if err != nil {
			return err
		}
		if issueStatus != "" && !models.IssueStatus(issueStatus).Valid() {
			return fmt.Errorf("invalid status %q", issueStatus)
		}
		severity := ""
		if issueSeverity != "" {
			s, ok := models.ParseSeverity(issueSeverity)
			if !ok {
				return fmt.Errorf("invalid severity %q", issueSeverity)
			}
			severity = string(s)
		}

		resp, err := app.issues.List(cmd.Context(), projectID, &services.IssueListRequest{
			Status:   issueStatus,
			Severity: severity,
			PageSize: issueLimit,
		})
		if err != nil {
			return err
		}

		table := newTable(cmd.OutOrStdout(), "ID", "SEVERITY", "STATUS", "LOCATION", "TITLE")
		for i := range resp.Items {
			issue := &resp.Items[i]
			_ = table.Append([]string{
				issue.ShortID(),
				severityColor(issue.Severity),
				statusColor(issue.Status),
				location(issue),
				ellipsize(issue.Title, 60),
			})
		}
		if err := table.Render(); err != nil {
			return err
		}
		info(cmd.OutOrStdout(), "%d of %d issues", len(resp.Items), resp.Total)
		return nil
	},
}

var ignoreCmd = &cobra.Command{
	Use:   "ignore <issue-id>",
	Short: "Mark an issue as ignored",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transition(cmd, args[0], models.IssueIgnored)
	},
}

var reopenCmd = &cobra.Command{
	Use:   "reopen <issue-id>",
	Short: "Re-open an ignored or in-progress issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transition(cmd, args[0], models.IssueOpen)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <project-id>",
	Short: "Sync the repository snapshot and reconcile the issue ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseProjectID(args[0])
		if err != nil {
			return err
		}
		res, err := app.analysis.Analyze(cmd.Context(), projectID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		success(out, "%s", res.Message)
		fmt.Fprintf(out, "  files analyzed  %d/%d (%d failed)\n", res.FilesAnalyzed, res.TotalFiles, res.FilesFailed)
		fmt.Fprintf(out, "  issues          +%d ~%d -%d (%d active)\n", res.IssuesCreated, res.IssuesUpdated, res.IssuesResolved, res.TotalActiveIssues)
		fmt.Fprintf(out, "  health score    %s\n", healthColor(res.HealthScore))
		return nil
	},
}

var fixCmd = &cobra.Command{
	Use:   "fix <issue-id>",
	Short: "Generate a fix for an issue and open a pull request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		issue, err := app.issues.GetByPrefix(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		res, err := app.fixer.AutoFix(cmd.Context(), issue.ID, nil)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		success(out, "Opened PR #%d on %s", res.PRNumber, res.Branch)
		fmt.Fprintf(out, "  %s\n", res.PRURL)
		if res.Tests != nil {
			tests := green("passed")
			if !res.TestsPassed {
				tests = red("failed")
			}
			fmt.Fprintf(out, "  tests %s (%d/%d)\n", tests, res.Tests.Passed, res.Tests.Total)
		}
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health <project-id>",
	Short: "Print the health score and active issues by severity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseProjectID(args[0])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		score, active, err := app.issues.ProjectHealth(ctx, projectID)
		if err != nil {
			return err
		}
		counts, err := app.issues.SeverityCounts(ctx, projectID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Health %s  (%d active issues)\n", healthColor(score), active)
		table := newTable(out, "SEVERITY", "ACTIVE")
		for _, s := range []models.Severity{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow, models.SeverityInfo} {
			_ = table.Append([]string{severityColor(s), strconv.FormatInt(counts[s], 10)})
		}
		return table.Render()
	},
}

func init() {
	issuesCmd.Flags().StringVarP(&issueStatus, "status", "s", "", "Filter by status (open, in_progress, fixed, ignored, resolved)")
	issuesCmd.Flags().StringVar(&issueSeverity, "severity", "", "Filter by severity")
	issuesCmd.Flags().IntVarP(&issueLimit, "limit", "n", 50, "Maximum issues to show")
	issuesCmd.AddCommand(ignoreCmd, reopenCmd)
}

func transition(cmd *cobra.Command, prefix string, to models.IssueStatus) error {
	issue, err := app.issues.GetByPrefix(cmd.Context(), prefix)
	if err != nil {
		return err
	}
	updated, err := app.issues.Transition(cmd.Context(), issue.ID, to, "")
	if err != nil {
		return err
	}
	success(cmd.OutOrStdout(), "%s %s -> %s", updated.ShortID(), issue.Status, statusColor(updated.Status))
	return nil
}

func parseProjectID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid project id %q", s)
	}
	return uint(id), nil
}
