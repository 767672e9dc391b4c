package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/codemender/internal/services"
)

const auditBodyLimit = 2000

var redactedKeys = map[string]bool{
	"password":       true,
	"old_password":   true,
	"new_password":   true,
	"api_key":        true,
	"apikey":         true,
	"secret":         true,
	"webhook_secret": true,
	"token":          true,
	"access_token":   true,
	"refresh_token":  true,
	"webhook":        true,
}

// AuditLog writes one system log row for every mutating request that
// reaches a handler. Credentials in the body are redacted.
func AuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method != http.MethodPost && method != http.MethodPut && method != http.MethodDelete {
			c.Next()
			return
		}

		var body string
		if c.Request.Body != nil {
			raw, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(raw))
			body = redactBody(raw)
		}

		c.Next()

		module, action := parseRouteInfo(c.FullPath(), method)
		status := c.Writer.Status()

		var uid *uint
		if id := GetUserID(c); id > 0 {
			uid = &id
		}

		services.LogInfo(module, action, formatAuditMessage(GetUsername(c), method, c.Request.URL.Path, status),
			uid, c.ClientIP(), c.Request.UserAgent(), map[string]interface{}{
				"method": method,
				"path":   c.Request.URL.Path,
				"status": status,
				"body":   body,
				"audit":  true,
			})
	}
}

// parseRouteInfo turns "/api/projects/:id/analyze" + POST into
// ("Projects", "Analyze"). Plain collection writes map to Create, Update, Delete.
func parseRouteInfo(fullPath, method string) (module, action string) {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(fullPath, "/api"), "/"), "/")

	module = "unknown"
	if segments[0] != "" {
		module = titleWords(strings.ReplaceAll(segments[0], "-", " "))
	}

	if last := segments[len(segments)-1]; len(segments) > 1 && !strings.HasPrefix(last, ":") {
		return module, titleWords(strings.ReplaceAll(last, "-", " "))
	}

	switch method {
	case http.MethodPost:
		action = "Create"
	case http.MethodPut:
		action = "Update"
	case http.MethodDelete:
		action = "Delete"
	default:
		action = method
	}
	return module, action
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func formatAuditMessage(username, method, path string, status int) string {
	outcome := "Failed"
	if status >= 200 && status < 300 {
		outcome = "OK"
	}
	return fmt.Sprintf("[Audit] %s %s %s → %s", username, method, path, outcome)
}

// redactBody masks credential fields of a JSON body at any depth and
// truncates the result. Non-JSON bodies are dropped.
func redactBody(raw []byte) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ""
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "[non-json body omitted]"
	}
	out, err := json.Marshal(redact(v))
	if err != nil {
		return ""
	}
	s := string(out)
	if len(s) > auditBodyLimit {
		s = s[:auditBodyLimit] + "...[truncated]"
	}
	return s
}

func redact(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, val := range t {
			if redactedKeys[strings.ToLower(k)] {
				if _, isString := val.(string); isString {
					t[k] = "***"
				}
				continue
			}
			t[k] = redact(val)
		}
		return t
	case []interface{}:
		for i := range t {
			t[i] = redact(t[i])
		}
		return t
	default:
		return v
	}
}
