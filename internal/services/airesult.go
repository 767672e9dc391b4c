package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/huangang/codemender/internal/models"
)

// ParseError reports model output that could not be turned into structured data.
type ParseError struct {
	Kind string // findings, fix, review
	Raw  string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s output: %v", e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var explanationPattern = regexp.MustCompile(`"explanation"\s*:\s*"((?:[^"\\]|\\.)*)"`)

// stripCodeFence removes a surrounding markdown fence such as ```json ... ```.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if nl := strings.IndexByte(text, '\n'); nl != -1 {
		text = text[nl+1:]
	} else {
		text = strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// decodeObject unmarshals the first JSON object found in raw model output.
func decodeObject(raw string, out interface{}) error {
	text := stripCodeFence(raw)
	err := json.Unmarshal([]byte(text), out)
	if err == nil {
		return nil
	}
	start, end := strings.IndexByte(text, '{'), strings.LastIndexByte(text, '}')
	if start == -1 || end <= start {
		return err
	}
	return json.Unmarshal([]byte(text[start:end+1]), out)
}

// flexNumber accepts 85, 85.5, "85" and null.
type flexNumber struct {
	Value float64
	Set   bool
}

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		n.Value, n.Set = f, true
		return nil
	}
	if json.Unmarshal(data, &n.Value) == nil {
		n.Set = true
	}
	return nil
}

// flexBool accepts true, "true", "yes" and null.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v interface{}
	if json.Unmarshal(data, &v) != nil {
		return nil
	}
	switch t := v.(type) {
	case bool:
		*b = flexBool(t)
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes":
			*b = true
		}
	}
	return nil
}

// stringList accepts an array of strings, a single string, or mixed arrays.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s = strings.TrimSpace(s); s != "" {
			*l = stringList{s}
		}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	out := make(stringList, 0, len(items))
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}
		var compact bytes.Buffer
		if json.Compact(&compact, item) == nil && compact.String() != "null" {
			out = append(out, compact.String())
		}
	}
	*l = out
	return nil
}

// looseText accepts a string or any JSON value, rendered as compact JSON.
type looseText string

func (t *looseText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	var s string
	if json.Unmarshal(data, &s) == nil {
		*t = looseText(s)
		return nil
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return err
	}
	*t = looseText(compact.String())
	return nil
}

type rawFinding struct {
	Severity     string     `json:"severity"`
	Title        looseText  `json:"title"`
	Description  looseText  `json:"description"`
	LineNumber   flexNumber `json:"lineNumber"`
	Line         flexNumber `json:"line"`
	SuggestedFix looseText  `json:"suggestedFix"`
}

// ParseFindings converts analyzer output into findings. Unknown severities
// become INFO, non-positive line numbers are dropped, untitled entries are skipped.
func ParseFindings(raw string) ([]Finding, error) {
	var payload struct {
		Issues []rawFinding `json:"issues"`
	}
	if err := decodeObject(raw, &payload); err != nil {
		return nil, &ParseError{Kind: "findings", Raw: raw, Err: err}
	}

	findings := make([]Finding, 0, len(payload.Issues))
	for _, rf := range payload.Issues {
		title := strings.TrimSpace(string(rf.Title))
		if title == "" {
			continue
		}
		severity, ok := models.ParseSeverity(rf.Severity)
		if !ok {
			severity = models.SeverityInfo
		}
		f := Finding{
			Severity:     severity,
			Title:        title,
			Description:  strings.TrimSpace(string(rf.Description)),
			SuggestedFix: strings.TrimSpace(string(rf.SuggestedFix)),
		}
		line := rf.LineNumber
		if !line.Set {
			line = rf.Line
		}
		if line.Set && line.Value >= 1 {
			n := int(line.Value)
			f.LineNumber = &n
		}
		findings = append(findings, f)
	}
	return findings, nil
}

// ParseFix converts fixer output into a proposal. When the JSON is unusable
// the explanation is recovered by pattern and the original code is kept, which
// callers treat as "no change".
func ParseFix(raw, originalCode string) (*FixProposal, error) {
	var payload struct {
		FixedCode   looseText  `json:"fixedCode"`
		Explanation looseText  `json:"explanation"`
		Changes     stringList `json:"changes"`
	}
	if err := decodeObject(raw, &payload); err != nil {
		m := explanationPattern.FindStringSubmatch(raw)
		if m == nil {
			return nil, &ParseError{Kind: "fix", Raw: raw, Err: err}
		}
		explanation, uerr := strconv.Unquote(`"` + m[1] + `"`)
		if uerr != nil {
			explanation = m[1]
		}
		return &FixProposal{FixedCode: originalCode, Explanation: explanation, Changes: []string{}}, nil
	}

	p := &FixProposal{
		FixedCode:   string(payload.FixedCode),
		Explanation: strings.TrimSpace(string(payload.Explanation)),
		Changes:     []string(payload.Changes),
	}
	if p.FixedCode == "" {
		p.FixedCode = originalCode
	}
	if p.Changes == nil {
		p.Changes = []string{}
	}
	return p, nil
}

type rawReview struct {
	Approved              flexBool   `json:"approved"`
	Confidence            flexNumber `json:"confidence"`
	Recommendation        string     `json:"recommendation"`
	Summary               looseText  `json:"summary"`
	Issues                stringList `json:"issues"`
	CodeQualityScore      flexNumber `json:"code_quality_score"`
	SecurityConcerns      stringList `json:"security_concerns"`
	PerformanceConcerns   stringList `json:"performance_concerns"`
	BestPracticesFollowed flexBool   `json:"best_practices_followed"`
}

// ParseReview decodes and normalizes reviewer output. Only undecodable text
// is an error; every missing or out-of-range field is repaired fail-closed.
func ParseReview(raw string) (*AIReviewResult, error) {
	var r rawReview
	if err := decodeObject(raw, &r); err != nil {
		return nil, &ParseError{Kind: "review", Raw: raw, Err: err}
	}
	result := normalizeReview(r)
	return &result, nil
}

// normalizeReview clamps scores and applies fail-closed defaults.
func normalizeReview(r rawReview) AIReviewResult {
	out := AIReviewResult{
		Approved:              bool(r.Approved),
		Confidence:            clampScore(r.Confidence),
		Recommendation:        normalizeRecommendation(r.Recommendation),
		Summary:               strings.TrimSpace(string(r.Summary)),
		Issues:                nonNil(r.Issues),
		CodeQualityScore:      clampScore(r.CodeQualityScore),
		SecurityConcerns:      nonNil(r.SecurityConcerns),
		PerformanceConcerns:   nonNil(r.PerformanceConcerns),
		BestPracticesFollowed: bool(r.BestPracticesFollowed),
	}
	if out.Summary == "" {
		out.Summary = "No summary provided"
	}
	return out
}

func normalizeRecommendation(v string) Recommendation {
	v = strings.ToUpper(strings.TrimSpace(v))
	v = strings.NewReplacer(" ", "_", "-", "_").Replace(v)
	switch Recommendation(v) {
	case RecommendMerge, RecommendRequestChanges, RecommendReject:
		return Recommendation(v)
	}
	return RecommendReject
}

func clampScore(n flexNumber) int {
	if !n.Set || math.IsNaN(n.Value) {
		return 0
	}
	v := math.Round(n.Value)
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v)
}

func nonNil(l stringList) []string {
	if l == nil {
		return []string{}
	}
	return []string(l)
}
