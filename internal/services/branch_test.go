package services

import (
	"testing"
	"time"
)

func TestFixBranchName(t *testing.T) {
	at := time.UnixMilli(1712345678901)
	if got := FixBranchName("abcdef1234567890", at); got != "ai-fix-issue-abcdef12-1712345678901" {
		t.Errorf("FixBranchName() = %q", got)
	}
}

func TestParseFixBranch(t *testing.T) {
	tests := []struct {
		name   string
		ref    string
		ok     bool
		prefix string
		millis int64
	}{
		{"plain", "ai-fix-issue-abcdef12-1712345678901", true, "abcdef12", 1712345678901},
		{"full ref", "refs/heads/ai-fix-issue-0a1b2c3d-5", true, "0a1b2c3d", 5},
		{"other branch", "feature/login", false, "", 0},
		{"short id", "ai-fix-issue-abc-1712345678901", false, "", 0},
		{"hyphen inside id", "ai-fix-issue-abc-ef12-1712345678901", false, "", 0},
		{"missing timestamp", "ai-fix-issue-abcdef12-", false, "", 0},
		{"non numeric timestamp", "ai-fix-issue-abcdef12-later", false, "", 0},
		{"trailing segment", "ai-fix-issue-abcdef12-17-retry", false, "", 0},
		{"uppercase id", "ai-fix-issue-ABCDEF12-1712345678901", false, "", 0},
		{"non hex id", "ai-fix-issue-ghijklmn-1712345678901", false, "", 0},
		{"signed timestamp", "ai-fix-issue-abcdef12-+123", false, "", 0},
		{"negative timestamp", "ai-fix-issue-abcdef12--123", false, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseFixBranch(tt.ref)
			if ok != tt.ok {
				t.Fatalf("ParseFixBranch(%q) ok = %v, expected %v", tt.ref, ok, tt.ok)
			}
			if !ok {
				return
			}
			if got.IssuePrefix != tt.prefix {
				t.Errorf("prefix = %q, expected %q", got.IssuePrefix, tt.prefix)
			}
			if got.CreatedAt.UnixMilli() != tt.millis {
				t.Errorf("millis = %d, expected %d", got.CreatedAt.UnixMilli(), tt.millis)
			}
		})
	}
}

func TestFixBranchRoundTrip(t *testing.T) {
	id := "abcdef1234567890"
	at := time.Now()
	parsed, ok := ParseFixBranch(FixBranchName(id, at))
	if !ok {
		t.Fatal("round trip failed to parse")
	}
	if parsed.IssuePrefix != id[:8] {
		t.Errorf("prefix = %q", parsed.IssuePrefix)
	}
	if parsed.CreatedAt.UnixMilli() != at.UnixMilli() {
		t.Errorf("timestamp drifted: %v vs %v", parsed.CreatedAt, at)
	}
}
