package services

import (
	"errors"
	"testing"

	"github.com/huangang/codemender/internal/models"
)

func TestShouldAutoMerge(t *testing.T) {
	base := models.AIReviewSettings{
		ConfidenceThreshold: 80,
		AutoMergeLow:        true,
		AutoMergeMedium:     true,
		AutoMergeHigh:       true,
		AutoMergeCritical:   false,
	}
	withCritical := base
	withCritical.AutoMergeCritical = true
	noMedium := base
	noMedium.AutoMergeMedium = false

	tests := []struct {
		name     string
		review   AIReviewResult
		severity models.Severity
		settings models.AIReviewSettings
		expected bool
	}{
		{"below threshold", AIReviewResult{Confidence: 70, Recommendation: RecommendMerge}, models.SeverityHigh, base, false},
		{"at threshold", AIReviewResult{Confidence: 80, Recommendation: RecommendMerge}, models.SeverityHigh, base, true},
		{"critical disabled", AIReviewResult{Confidence: 95, Recommendation: RecommendMerge}, models.SeverityCritical, base, false},
		{"critical enabled", AIReviewResult{Confidence: 95, Recommendation: RecommendMerge}, models.SeverityCritical, withCritical, true},
		{"request changes", AIReviewResult{Confidence: 99, Recommendation: RecommendRequestChanges}, models.SeverityLow, base, false},
		{"reject", AIReviewResult{Confidence: 99, Recommendation: RecommendReject}, models.SeverityLow, base, false},
		{"medium disabled", AIReviewResult{Confidence: 90, Recommendation: RecommendMerge}, models.SeverityMedium, noMedium, false},
		{"info never merges", AIReviewResult{Confidence: 100, Recommendation: RecommendMerge}, models.SeverityInfo, withCritical, false},
		{"unknown severity", AIReviewResult{Confidence: 100, Recommendation: RecommendMerge}, models.Severity("SEVERE"), withCritical, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldAutoMerge(tt.review, tt.severity, tt.settings); got != tt.expected {
				t.Errorf("ShouldAutoMerge() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestDecide(t *testing.T) {
	settings := models.DefaultAIReviewSettings(1)

	tests := []struct {
		name     string
		review   AIReviewResult
		severity models.Severity
		expected MergeDecision
	}{
		{"merge", AIReviewResult{Confidence: 90, Recommendation: RecommendMerge}, models.SeverityLow, DecisionMerge},
		{"reject ignores gate", AIReviewResult{Confidence: 100, Recommendation: RecommendReject}, models.SeverityLow, DecisionReject},
		{"reject with low confidence", AIReviewResult{Confidence: 10, Recommendation: RecommendReject}, models.SeverityCritical, DecisionReject},
		{"merge blocked by severity", AIReviewResult{Confidence: 95, Recommendation: RecommendMerge}, models.SeverityCritical, DecisionHold},
		{"merge blocked by confidence", AIReviewResult{Confidence: 50, Recommendation: RecommendMerge}, models.SeverityLow, DecisionHold},
		{"request changes", AIReviewResult{Confidence: 95, Recommendation: RecommendRequestChanges}, models.SeverityLow, DecisionHold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := Decide(tt.review, tt.severity, settings)
			if got != tt.expected {
				t.Errorf("Decide() = %v (%s), expected %v", got, reason, tt.expected)
			}
			if reason == "" {
				t.Error("Decide() should explain itself")
			}
		})
	}
}

func TestResolveOutcome(t *testing.T) {
	tests := []struct {
		name     string
		decision MergeDecision
		mergeErr error
		action   models.PRAction
		status   models.IssueStatus
	}{
		{"merged", DecisionMerge, nil, models.PRActionMerged, models.IssueFixed},
		{"merge call failed", DecisionMerge, errors.New("409 conflict"), models.PRActionPending, models.IssueInProgress},
		{"rejected", DecisionReject, nil, models.PRActionRejected, models.IssueOpen},
		{"held", DecisionHold, nil, models.PRActionChangesRequested, models.IssueInProgress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveOutcome(tt.decision, tt.mergeErr)
			if got.Action != tt.action || got.IssueStatus != tt.status {
				t.Errorf("ResolveOutcome() = %+v, expected %s/%s", got, tt.action, tt.status)
			}
		})
	}
}
