package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Severity is the ordinal impact class of an issue.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// Rank orders severities from INFO (1) to CRITICAL (5); unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

func (s Severity) Valid() bool { return s.Rank() > 0 }

// ParseSeverity normalizes free-form severity text. ok is false when the
// value is not one of the five known classes.
func ParseSeverity(v string) (Severity, bool) {
	s := Severity(strings.ToUpper(strings.TrimSpace(v)))
	return s, s.Valid()
}

// IssueStatus is the lifecycle state of an issue.
type IssueStatus string

const (
	IssueOpen       IssueStatus = "open"
	IssueInProgress IssueStatus = "in_progress"
	IssueFixed      IssueStatus = "fixed"
	IssueIgnored    IssueStatus = "ignored"
	IssueResolved   IssueStatus = "resolved"
)

// ActiveIssueStatuses are the statuses reconciliation and health scoring look at.
var ActiveIssueStatuses = []IssueStatus{IssueOpen, IssueInProgress}

var issueTransitions = map[IssueStatus][]IssueStatus{
	IssueOpen:       {IssueInProgress, IssueIgnored, IssueResolved},
	IssueInProgress: {IssueOpen, IssueFixed, IssueIgnored, IssueResolved},
	IssueIgnored:    {IssueOpen},
}

func (s IssueStatus) Valid() bool {
	switch s {
	case IssueOpen, IssueInProgress, IssueFixed, IssueIgnored, IssueResolved:
		return true
	}
	return false
}

func (s IssueStatus) IsActive() bool {
	return s == IssueOpen || s == IssueInProgress
}

// CanTransitionTo reports whether from -> to is an allowed edge.
// fixed and resolved are terminal.
func (s IssueStatus) CanTransitionTo(to IssueStatus) bool {
	for _, next := range issueTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

const (
	ResolvedByExternal  = "external"
	ResolvedByAutoMerge = "auto_merge"
)

// Issue is one tracked finding in a project's ledger.
type Issue struct {
	ID               string      `gorm:"primaryKey;size:32" json:"id"`
	ProjectID        uint        `gorm:"not null;index:idx_issue_project_key;index:idx_issue_project_file" json:"project_id"`
	IssueKey         string      `gorm:"size:700;not null;index:idx_issue_project_key" json:"issue_key"`
	Severity         Severity    `gorm:"size:20;not null;index" json:"severity"`
	Title            string      `gorm:"size:500;not null" json:"title"`
	Description      string      `gorm:"type:text" json:"description"`
	FilePath         string      `gorm:"size:500;not null;index:idx_issue_project_file" json:"file_path"`
	LineNumber       *int        `json:"line_number"`
	Status           IssueStatus `gorm:"size:20;not null;index" json:"status"`
	AutoFixAvailable bool        `json:"auto_fix_available"`
	SuggestedFix     string      `gorm:"type:text" json:"suggested_fix,omitempty"`
	OriginalCode     string      `gorm:"type:text" json:"-"`
	FixCode          string      `gorm:"type:text" json:"fix_code,omitempty"`
	IsNew            bool        `json:"is_new"`
	ResolvedAt       *time.Time  `json:"resolved_at"`
	ResolvedBy       string      `gorm:"size:50" json:"resolved_by,omitempty"`
	CreatedAt        time.Time   `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

func (Issue) TableName() string { return "issues" }

// ShortID is the 8-character prefix embedded in fix branch names.
func (i *Issue) ShortID() string {
	if len(i.ID) <= 8 {
		return i.ID
	}
	return i.ID[:8]
}

// Line returns the line number or 0 for file-level issues.
func (i *Issue) Line() int {
	if i.LineNumber == nil {
		return 0
	}
	return *i.LineNumber
}

// BeforeCreate assigns an id whose 8-character prefix is unique among issues,
// so a fix branch name always resolves to exactly one issue.
func (i *Issue) BeforeCreate(tx *gorm.DB) error {
	if i.ID != "" {
		return nil
	}
	for attempt := 0; attempt < 16; attempt++ {
		id := NewIssueID()
		var n int64
		if err := tx.Session(&gorm.Session{NewDB: true}).
			Model(&Issue{}).Where("id LIKE ?", id[:8]+"%").Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			i.ID = id
			return nil
		}
	}
	return fmt.Errorf("could not allocate a unique issue id prefix")
}

// NewIssueID returns 32 lowercase hex characters.
func NewIssueID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// BuildIssueKey derives the identity used to correlate findings across runs:
// path, line (0 when absent) and the lower-cased trimmed title.
// File-level findings with equal titles share bucket 0 and collapse into one issue.
func BuildIssueKey(filePath string, line int, title string) string {
	return fmt.Sprintf("%s:%d:%s", filePath, line, strings.ToLower(strings.TrimSpace(title)))
}
