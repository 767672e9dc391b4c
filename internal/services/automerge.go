package services

import (
	"fmt"

	"github.com/huangang/codemender/internal/models"
)

// ShouldAutoMerge is the deterministic merge gate. Checks run in order and
// the first failure returns false: confidence threshold, MERGE
// recommendation, then the severity's auto-merge flag. Unknown severities
// never merge.
func ShouldAutoMerge(review AIReviewResult, severity models.Severity, settings models.AIReviewSettings) bool {
	if review.Confidence < settings.ConfidenceThreshold {
		return false
	}
	if review.Recommendation != RecommendMerge {
		return false
	}
	switch severity {
	case models.SeverityLow:
		return settings.AutoMergeLow
	case models.SeverityMedium:
		return settings.AutoMergeMedium
	case models.SeverityHigh:
		return settings.AutoMergeHigh
	case models.SeverityCritical:
		return settings.AutoMergeCritical
	}
	return false
}

// MergeDecision is the governance outcome for one review cycle.
type MergeDecision string

const (
	DecisionMerge  MergeDecision = "merge"
	DecisionReject MergeDecision = "reject"
	DecisionHold   MergeDecision = "hold"
)

// Decide composes the recommendation with the merge gate. REJECT always
// closes; an allowed MERGE merges; everything else is held for a human.
func Decide(review AIReviewResult, severity models.Severity, settings models.AIReviewSettings) (MergeDecision, string) {
	if review.Recommendation == RecommendReject {
		return DecisionReject, "reviewer recommended REJECT"
	}
	if ShouldAutoMerge(review, severity, settings) {
		return DecisionMerge, fmt.Sprintf("confidence %d >= %d and %s auto-merge enabled",
			review.Confidence, settings.ConfidenceThreshold, severity)
	}
	switch {
	case review.Recommendation != RecommendMerge:
		return DecisionHold, fmt.Sprintf("reviewer recommended %s", review.Recommendation)
	case review.Confidence < settings.ConfidenceThreshold:
		return DecisionHold, fmt.Sprintf("confidence %d below threshold %d", review.Confidence, settings.ConfidenceThreshold)
	default:
		return DecisionHold, fmt.Sprintf("auto-merge disabled for %s severity", severity)
	}
}

// CycleOutcome is the final state of a review cycle after side effects ran.
type CycleOutcome struct {
	Action      models.PRAction
	IssueStatus models.IssueStatus
}

// ResolveOutcome maps a decision and the result of the merge call (only
// meaningful for DecisionMerge) to the recorded action and the issue status.
// A failed merge stays pending so it can be retried.
func ResolveOutcome(decision MergeDecision, mergeErr error) CycleOutcome {
	switch decision {
	case DecisionReject:
		return CycleOutcome{Action: models.PRActionRejected, IssueStatus: models.IssueOpen}
	case DecisionMerge:
		if mergeErr != nil {
			return CycleOutcome{Action: models.PRActionPending, IssueStatus: models.IssueInProgress}
		}
		return CycleOutcome{Action: models.PRActionMerged, IssueStatus: models.IssueFixed}
	default:
		return CycleOutcome{Action: models.PRActionChangesRequested, IssueStatus: models.IssueInProgress}
	}
}

// MergeCommitMessage is the squash/merge commit body used for auto-merged fixes.
func MergeCommitMessage(issue *models.Issue, confidence int) string {
	return fmt.Sprintf("AI auto-merge: %s\n\nReview confidence: %d%%\nFixes issue #%s", issue.Title, confidence, issue.ShortID())
}
