package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	gh "github.com/google/go-github/v82/github"
	"github.com/huangang/codemender/internal/models"
	"github.com/huangang/codemender/internal/services"
	"github.com/waigani/diffparser"
)

// VerifyGitHubSignature checks an X-Hub-Signature-256 header against the
// raw body. Legacy sha1 signatures are refused.
func VerifyGitHubSignature(secret string, body []byte, signature string) bool {
	if secret == "" || !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	return gh.ValidateSignature(signature, body, []byte(secret)) == nil
}

// SignGitHubPayload returns the header value GitHub would send for body.
func SignGitHubPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// ParseDiffStats counts touched files and changed lines. Deleted files are
// listed under their original name.
func ParseDiffStats(diff string) (DiffStats, error) {
	var stats DiffStats
	if strings.TrimSpace(diff) == "" {
		return stats, nil
	}
	if !strings.HasPrefix(strings.TrimLeft(diff, "\n"), "diff ") {
		return stats, fmt.Errorf("parse diff: missing diff header")
	}
	parsed, err := diffparser.Parse(diff)
	if err != nil {
		return stats, fmt.Errorf("parse diff: %w", err)
	}

	seen := make(map[string]bool)
	for _, f := range parsed.Files {
		name := cleanDiffName(f.NewName)
		if name == "" {
			name = cleanDiffName(f.OrigName)
		}
		if name != "" && !seen[name] {
			seen[name] = true
			stats.Files = append(stats.Files, name)
		}
		for _, h := range f.Hunks {
			for _, l := range h.NewRange.Lines {
				if l.Mode == diffparser.ADDED {
					stats.Additions++
				}
			}
			for _, l := range h.OrigRange.Lines {
				if l.Mode == diffparser.REMOVED {
					stats.Deletions++
				}
			}
		}
	}
	stats.FilesChanged = len(stats.Files)
	return stats, nil
}

func cleanDiffName(name string) string {
	name = strings.TrimSpace(name)
	if name == "/dev/null" {
		return ""
	}
	name = strings.TrimPrefix(name, "a/")
	return strings.TrimPrefix(name, "b/")
}

// Grade maps a 0..100 code quality score to a letter.
func Grade(score int) string {
	switch {
	case score >= 95:
		return "A+"
	case score >= 90:
		return "A"
	case score >= 85:
		return "A-"
	case score >= 80:
		return "B+"
	case score >= 75:
		return "B"
	case score >= 70:
		return "B-"
	case score >= 65:
		return "C+"
	case score >= 60:
		return "C"
	default:
		return "D"
	}
}

func statusLine(action models.PRAction, reason string) string {
	switch action {
	case models.PRActionMerged:
		return "✅ **Auto-merged**: " + reason
	case models.PRActionRejected:
		return "❌ **Closed**: " + reason
	case models.PRActionPending:
		return "⏳ **Merge pending**: the merge call failed and will be retried"
	default:
		return "👀 **Needs human review**: " + reason
	}
}

func bulletList(title string, items []string) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\n### %s\n", title)
	for _, it := range items {
		fmt.Fprintf(&b, "- %s\n", it)
	}
	return b.String()
}

// FormatReviewComment renders the PR comment posted after a review cycle.
func FormatReviewComment(review *services.AIReviewResult, action models.PRAction, reason string, stats DiffStats) string {
	var b strings.Builder
	b.WriteString("## 🤖 AI Code Review\n\n")
	fmt.Fprintf(&b, "**Recommendation:** %s · **Confidence:** %d%% · **Quality:** %s (%d/100)\n\n",
		review.Recommendation, review.Confidence, Grade(review.CodeQualityScore), review.CodeQualityScore)
	fmt.Fprintf(&b, "%s\n\n", statusLine(action, reason))
	fmt.Fprintf(&b, "### Summary\n%s\n", review.Summary)
	b.WriteString(bulletList("Issues", review.Issues))
	b.WriteString(bulletList("Security concerns", review.SecurityConcerns))
	b.WriteString(bulletList("Performance concerns", review.PerformanceConcerns))
	fmt.Fprintf(&b, "\n_%d files changed, +%d -%d_\n", stats.FilesChanged, stats.Additions, stats.Deletions)
	b.WriteString("\n---\n*Posted by CodeMender*")
	return b.String()
}
