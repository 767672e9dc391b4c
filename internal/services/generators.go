package services

import (
	"context"

	"github.com/huangang/codemender/internal/models"
)

// Finding is one candidate problem reported for a file before reconciliation.
type Finding struct {
	Severity     models.Severity `json:"severity"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	LineNumber   *int            `json:"lineNumber,omitempty"`
	SuggestedFix string          `json:"suggestedFix,omitempty"`
}

type AnalyzeFileRequest struct {
	ProjectID uint
	Path      string
	Content   string
	Language  string
}

// FindingGenerator inspects one file and returns candidate findings.
type FindingGenerator interface {
	Analyze(ctx context.Context, req AnalyzeFileRequest) ([]Finding, error)
}

type FixProposal struct {
	FixedCode   string   `json:"fixedCode"`
	Explanation string   `json:"explanation"`
	Changes     []string `json:"changes"`
}

type FixRequest struct {
	ProjectID        uint
	Path             string
	Content          string
	IssueDescription string
	Language         string
}

// FixGenerator rewrites a file to address one issue.
type FixGenerator interface {
	Fix(ctx context.Context, req FixRequest) (*FixProposal, error)
}

type Recommendation string

const (
	RecommendMerge          Recommendation = "MERGE"
	RecommendRequestChanges Recommendation = "REQUEST_CHANGES"
	RecommendReject         Recommendation = "REJECT"
)

// AIReviewResult is a normalized review verdict. Scores are always within 0..100.
type AIReviewResult struct {
	Approved              bool           `json:"approved"`
	Confidence            int            `json:"confidence"`
	Recommendation        Recommendation `json:"recommendation"`
	Summary               string         `json:"summary"`
	Issues                []string       `json:"issues"`
	CodeQualityScore      int            `json:"code_quality_score"`
	SecurityConcerns      []string       `json:"security_concerns"`
	PerformanceConcerns   []string       `json:"performance_concerns"`
	BestPracticesFollowed bool           `json:"best_practices_followed"`
}

// IssueContext is the slice of an issue a reviewer needs.
type IssueContext struct {
	Title       string
	Severity    models.Severity
	Description string
	FilePath    string
}

type ReviewRequest struct {
	ProjectID    uint
	Diff         string
	Issue        IssueContext
	ChangedFiles []string
	Tests        *TestSummary
}

// ReviewEvaluator produces a verdict for a fix diff.
type ReviewEvaluator interface {
	Review(ctx context.Context, req ReviewRequest) (*AIReviewResult, error)
}

// TestSummary is the count view of a test pass.
type TestSummary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}
