package services

import (
	"context"
	"fmt"
	"strings"
)

// Completer is the prompt-in, text-out view of AIService.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

const analyzePrompt = `You are reviewing a source file for defects. Report bugs, security vulnerabilities, performance problems and maintainability issues in the %s file below.

File: %s

` + "```%s\n%s\n```" + `

Severity scale:
- CRITICAL: crashes, security holes, data loss
- HIGH: broken major features, auth or payment faults
- MEDIUM: broken minor features, missing validation
- LOW: cosmetic problems, typos, rare edge cases
- INFO: style and best-practice suggestions
%s
Reply with a single JSON object and nothing else:
{"issues": [{"severity": "HIGH", "title": "short title", "description": "what is wrong and why it matters", "lineNumber": 10, "suggestedFix": "how to fix it"}]}
Omit lineNumber when the problem is not tied to one line. Omit suggestedFix when no clear fix exists.
If the file has no problems reply {"issues": []}.`

const fixPrompt = `Fix the problem described below in %s.

Problem:
%s

Language: %s
%s
Current file content:
` + "```\n%s\n```" + `

Change only what the fix requires and keep the existing style.
Reply with a single JSON object and nothing else:
{"fixedCode": "the complete corrected file", "explanation": "what was wrong and how the change fixes it", "changes": ["one line per change"]}`

const reviewPrompt = `You are a senior reviewer deciding whether an automatically generated fix can be merged.

Original issue:
- Title: %s
- Severity: %s
- Description: %s
- File: %s

Changed files: %s

Diff:
` + "```diff\n%s\n```" + `
%s%s
Judge whether the change solves the issue, whether it introduces bugs, security or performance regressions, and whether it follows the conventions of the language.

Recommendation rules:
- MERGE: correct, safe and clean (confidence above 80)
- REQUEST_CHANGES: mostly right with concerns (confidence 50 to 80)
- REJECT: wrong, unsafe or does not address the issue (confidence below 50)

Reply with a single JSON object and nothing else:
{"approved": true, "confidence": 85, "recommendation": "MERGE", "summary": "overall assessment", "issues": [], "code_quality_score": 90, "security_concerns": [], "performance_concerns": [], "best_practices_followed": true}`

// LLMFindingGenerator asks the model for findings and parses its reply.
type LLMFindingGenerator struct {
	ai Completer
}

func NewLLMFindingGenerator(ai Completer) *LLMFindingGenerator {
	return &LLMFindingGenerator{ai: ai}
}

func (g *LLMFindingGenerator) Analyze(ctx context.Context, req AnalyzeFileRequest) ([]Finding, error) {
	lang := req.Language
	if lang == "" {
		lang = "source"
	}
	prompt := fmt.Sprintf(analyzePrompt, lang, req.Path, strings.ToLower(req.Language), req.Content, GenerateLanguageHints(req.Path))

	out, err := g.ai.Complete(ctx, CompletionRequest{
		ProjectID: req.ProjectID,
		Purpose:   "analyze",
		Prompt:    prompt,
		MaxTokens: 4000,
	})
	if err != nil {
		return nil, fmt.Errorf("code analysis failed: %w", err)
	}
	return ParseFindings(out.Content)
}

// LLMFixGenerator asks the model to rewrite a file.
type LLMFixGenerator struct {
	ai Completer
}

func NewLLMFixGenerator(ai Completer) *LLMFixGenerator {
	return &LLMFixGenerator{ai: ai}
}

func (g *LLMFixGenerator) Fix(ctx context.Context, req FixRequest) (*FixProposal, error) {
	lang := req.Language
	if lang == "" {
		lang = "auto-detect"
	}
	prompt := fmt.Sprintf(fixPrompt, req.Path, req.IssueDescription, lang, GenerateLanguageHints(req.Path), req.Content)

	out, err := g.ai.Complete(ctx, CompletionRequest{
		ProjectID: req.ProjectID,
		Purpose:   "fix",
		Prompt:    prompt,
		MaxTokens: 8000,
	})
	if err != nil {
		return nil, fmt.Errorf("fix generation failed: %w", err)
	}
	return ParseFix(out.Content, req.Content)
}

// LLMReviewEvaluator asks the model for a verdict on a fix diff.
type LLMReviewEvaluator struct {
	ai Completer
}

func NewLLMReviewEvaluator(ai Completer) *LLMReviewEvaluator {
	return &LLMReviewEvaluator{ai: ai}
}

func (g *LLMReviewEvaluator) Review(ctx context.Context, req ReviewRequest) (*AIReviewResult, error) {
	var tests string
	if req.Tests != nil {
		tests = fmt.Sprintf("\nTest results:\n- Total: %d\n- Passed: %d\n- Failed: %d\n",
			req.Tests.Total, req.Tests.Passed, req.Tests.Failed)
	}
	files := "unknown"
	if len(req.ChangedFiles) > 0 {
		files = strings.Join(req.ChangedFiles, ", ")
	}
	prompt := fmt.Sprintf(reviewPrompt,
		req.Issue.Title,
		req.Issue.Severity,
		orNA(req.Issue.Description),
		orNA(req.Issue.FilePath),
		files,
		req.Diff,
		tests,
		GenerateLanguageHints(req.ChangedFiles...),
	)

	out, err := g.ai.Complete(ctx, CompletionRequest{
		ProjectID: req.ProjectID,
		Purpose:   "review",
		Prompt:    prompt,
		MaxTokens: 3000,
	})
	if err != nil {
		return nil, fmt.Errorf("AI code review failed: %w", err)
	}
	return ParseReview(out.Content)
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
