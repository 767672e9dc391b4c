package services

import (
	"context"
	"errors"
	"testing"

	"github.com/huangang/codemender/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	reply string
	err   error
	last  CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req CompletionRequest) (*Completion, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &Completion{Content: f.reply}, nil
}

func TestLLMFindingGenerator(t *testing.T) {
	fc := &fakeCompleter{reply: `{"issues":[{"severity":"HIGH","title":"SQL Injection","lineNumber":3}]}`}
	gen := NewLLMFindingGenerator(fc)

	findings, err := gen.Analyze(context.Background(), AnalyzeFileRequest{
		ProjectID: 7, Path: "db/query.py", Content: "SELECT 100%", Language: "Python",
	})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, models.SeverityHigh, findings[0].Severity)

	assert.Equal(t, "analyze", fc.last.Purpose)
	assert.Equal(t, uint(7), fc.last.ProjectID)
	assert.Contains(t, fc.last.Prompt, "db/query.py")
	assert.Contains(t, fc.last.Prompt, "SELECT 100%")
	assert.Contains(t, fc.last.Prompt, "Python-specific checks")
	assert.NotContains(t, fc.last.Prompt, "%!")
}

func TestLLMFindingGenerator_UpstreamError(t *testing.T) {
	gen := NewLLMFindingGenerator(&fakeCompleter{err: errors.New("rate limited")})
	_, err := gen.Analyze(context.Background(), AnalyzeFileRequest{Path: "a.go"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestLLMFixGenerator(t *testing.T) {
	fc := &fakeCompleter{reply: "```json\n{\"fixedCode\":\"fixed\",\"explanation\":\"why\",\"changes\":[\"c1\"]}\n```"}
	gen := NewLLMFixGenerator(fc)

	p, err := gen.Fix(context.Background(), FixRequest{Path: "a.go", Content: "orig", IssueDescription: "bad"})
	require.NoError(t, err)
	assert.Equal(t, "fixed", p.FixedCode)
	assert.Equal(t, []string{"c1"}, p.Changes)
	assert.Equal(t, "fix", fc.last.Purpose)
	assert.Contains(t, fc.last.Prompt, "auto-detect")
	assert.NotContains(t, fc.last.Prompt, "%!")
}

func TestLLMReviewEvaluator(t *testing.T) {
	fc := &fakeCompleter{reply: `{"confidence":150,"recommendation":"MERGE"}`}
	gen := NewLLMReviewEvaluator(fc)

	verdict, err := gen.Review(context.Background(), ReviewRequest{
		Diff:         "diff --git a/x.go b/x.go",
		Issue:        IssueContext{Title: "Nil deref", Severity: models.SeverityHigh},
		ChangedFiles: []string{"x.go"},
		Tests:        &TestSummary{Total: 4, Passed: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, 100, verdict.Confidence)
	assert.Equal(t, RecommendMerge, verdict.Recommendation)

	assert.Equal(t, "review", fc.last.Purpose)
	assert.Contains(t, fc.last.Prompt, "Description: N/A")
	assert.Contains(t, fc.last.Prompt, "Passed: 4")
	assert.NotContains(t, fc.last.Prompt, "%!")
}
