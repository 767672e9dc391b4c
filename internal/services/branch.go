package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FixBranchPrefix marks branches opened by the auto-fix pipeline. The webhook
// router recognizes fix pull requests by it.
const FixBranchPrefix = "ai-fix-issue-"

const fixBranchIDLen = 8

// FixBranchName returns ai-fix-issue-{first 8 chars of id}-{epoch millis}.
func FixBranchName(issueID string, at time.Time) string {
	short := issueID
	if len(short) > fixBranchIDLen {
		short = short[:fixBranchIDLen]
	}
	return fmt.Sprintf("%s%s-%d", FixBranchPrefix, short, at.UnixMilli())
}

// FixBranch is the parsed form of a fix branch name.
type FixBranch struct {
	IssuePrefix string
	CreatedAt   time.Time
}

// ParseFixBranch reads the fixed-width segments of a fix branch name. A
// leading refs/heads/ is ignored.
func ParseFixBranch(ref string) (FixBranch, bool) {
	name := strings.TrimPrefix(ref, "refs/heads/")
	if !strings.HasPrefix(name, FixBranchPrefix) {
		return FixBranch{}, false
	}
	rest := name[len(FixBranchPrefix):]
	if len(rest) < fixBranchIDLen+2 || rest[fixBranchIDLen] != '-' {
		return FixBranch{}, false
	}

	prefix := rest[:fixBranchIDLen]
	for _, r := range prefix {
		if !isIDChar(r) {
			return FixBranch{}, false
		}
	}

	digits := rest[fixBranchIDLen+1:]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return FixBranch{}, false
		}
	}
	millis, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return FixBranch{}, false
	}
	return FixBranch{IssuePrefix: prefix, CreatedAt: time.UnixMilli(millis)}, true
}

// isIDChar accepts the lowercase hex that NewIssueID produces.
func isIDChar(r rune) bool {
	return r >= '0' && r <= '9' || r >= 'a' && r <= 'f'
}
