package middleware

import (
	"strings"
	"testing"
)

func TestParseRouteInfo(t *testing.T) {
	tests := []struct {
		path, method   string
		module, action string
	}{
		{"/api/projects/:id", "PUT", "Projects", "Update"},
		{"/api/projects/:id/analyze", "POST", "Projects", "Analyze"},
		{"/api/projects/connect", "POST", "Projects", "Connect"},
		{"/api/issues/:id/ignore", "POST", "Issues", "Ignore"},
		{"/api/projects/:id/review-settings", "PUT", "Projects", "Review Settings"},
		{"/api/llm-configs", "POST", "Llm Configs", "Create"},
		{"/api/im-bots/:id", "DELETE", "Im Bots", "Delete"},
		{"", "PATCH", "unknown", "PATCH"},
	}
	for _, tt := range tests {
		module, action := parseRouteInfo(tt.path, tt.method)
		if module != tt.module || action != tt.action {
			t.Errorf("parseRouteInfo(%q, %q) = %q, %q; want %q, %q", tt.path, tt.method, module, action, tt.module, tt.action)
		}
	}
}

func TestRedactBody(t *testing.T) {
	got := redactBody([]byte(`{"repo_url":"https://github.com/acme/demo","access_token": "ghp_abc","bot":{"Secret":"s3"}}`))
	if strings.Contains(got, "ghp_abc") || strings.Contains(got, "s3") {
		t.Errorf("credential not redacted: %s", got)
	}
	if !strings.Contains(got, `"access_token":"***"`) {
		t.Errorf("unexpected redaction format: %s", got)
	}
	if !strings.Contains(got, "https://github.com/acme/demo") {
		t.Errorf("non-sensitive field changed: %s", got)
	}

	if got := redactBody([]byte("password=hunter2")); strings.Contains(got, "hunter2") {
		t.Errorf("form body leaked: %s", got)
	}
	if got := redactBody(nil); got != "" {
		t.Errorf("empty body = %q", got)
	}
}

func TestRedactBody_Truncates(t *testing.T) {
	got := redactBody([]byte(`{"description":"` + strings.Repeat("x", 3000) + `"}`))
	if !strings.HasSuffix(got, "...[truncated]") {
		t.Errorf("long body not truncated: %d chars", len(got))
	}
}

func TestFormatAuditMessage(t *testing.T) {
	if got := formatAuditMessage("alice", "POST", "/api/projects/connect", 201); got != "[Audit] alice POST /api/projects/connect → OK" {
		t.Errorf("got %q", got)
	}
	if got := formatAuditMessage("bob", "DELETE", "/api/projects/1", 403); !strings.HasSuffix(got, "Failed") {
		t.Errorf("got %q", got)
	}
}
