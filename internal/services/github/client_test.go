package github

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c, err := NewClientWithHTTPClient(srv.Client(), srv.URL)
	require.NoError(t, err)
	return c
}

func TestCreateBranchAndCommit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/demo/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ref":"refs/heads/main","object":{"sha":"base123","type":"commit"}}`)
	})
	var createdRef map[string]string
	mux.HandleFunc("POST /repos/acme/demo/git/refs", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&createdRef))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"ref":"refs/heads/fix"}`)
	})
	mux.HandleFunc("GET /repos/acme/demo/contents/app/main.go", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "fix", r.URL.Query().Get("ref"))
		_, _ = io.WriteString(w, `{"type":"file","sha":"blob1","encoding":"base64","content":"`+base64.StdEncoding.EncodeToString([]byte("old"))+`"}`)
	})
	var put map[string]interface{}
	mux.HandleFunc("PUT /repos/acme/demo/contents/app/main.go", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&put))
		_, _ = io.WriteString(w, `{"commit":{"sha":"commit456"}}`)
	})

	c := newTestClient(t, mux)
	ctx := t.Context()

	sha, err := c.CreateBranch(ctx, "acme", "demo", "fix", "main")
	require.NoError(t, err)
	assert.Equal(t, "base123", sha)
	assert.Equal(t, map[string]string{"ref": "refs/heads/fix", "sha": "base123"}, createdRef)

	commit, err := c.CommitFile(ctx, "acme", "demo", "fix", "app/main.go", "new", "msg")
	require.NoError(t, err)
	assert.Equal(t, "commit456", commit)
	assert.Equal(t, "blob1", put["sha"], "update must carry the blob sha")
	assert.Equal(t, "fix", put["branch"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("new")), put["content"])
}

func TestGetFileContent_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/demo/contents/missing.go", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"Not Found"}`)
	})
	c := newTestClient(t, mux)

	_, err := c.GetFileContent(t.Context(), "acme", "demo", "missing.go", "main")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPullRequestLifecycle(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/acme/demo/pulls", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ai-fix-issue-abcdef12-1", body["head"])
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"number":7,"html_url":"https://github.com/acme/demo/pull/7","head":{"ref":"ai-fix-issue-abcdef12-1","sha":"h1"},"base":{"ref":"main"}}`)
	})
	mux.HandleFunc("GET /repos/acme/demo/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.github.v3.diff", r.Header.Get("Accept"))
		_, _ = io.WriteString(w, "diff --git a/x b/x\n")
	})
	mux.HandleFunc("PUT /repos/acme/demo/pulls/7/merge", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "squash", body["merge_method"])
		assert.Equal(t, "h1", body["sha"])
		_, _ = io.WriteString(w, `{"merged":true,"sha":"m1"}`)
	})
	mux.HandleFunc("PATCH /repos/acme/demo/pulls/8", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "closed", body["state"])
		_, _ = io.WriteString(w, `{"number":8,"state":"closed"}`)
	})
	mux.HandleFunc("PUT /repos/acme/demo/pulls/9/merge", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = io.WriteString(w, `{"message":"Pull Request is not mergeable"}`)
	})

	c := newTestClient(t, mux)
	ctx := t.Context()

	pr, err := c.OpenPullRequest(ctx, "acme", "demo", NewPullRequest{Title: "t", Body: "b", Head: "ai-fix-issue-abcdef12-1", Base: "main"})
	require.NoError(t, err)
	assert.Equal(t, 7, pr.Number)
	assert.Equal(t, "h1", pr.HeadSHA)

	diff, err := c.GetPullRequestDiff(ctx, "acme", "demo", 7)
	require.NoError(t, err)
	assert.Contains(t, diff, "diff --git")

	require.NoError(t, c.MergePullRequest(ctx, "acme", "demo", 7, "squash", "", pr.HeadSHA))
	require.NoError(t, c.ClosePullRequest(ctx, "acme", "demo", 8))
	assert.Error(t, c.MergePullRequest(ctx, "acme", "demo", 9, "squash", "", ""))
}

func TestListComments_FlagsBots(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/demo/issues/3/comments", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[
			{"id":1,"body":"LGTM","user":{"login":"alice","type":"User"}},
			{"id":2,"body":"coverage 90%","user":{"login":"codecov[bot]","type":"Bot"}}
		]`)
	})
	c := newTestClient(t, mux)

	comments, err := c.ListComments(t.Context(), "acme", "demo", 3)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.False(t, comments[0].IsBot)
	assert.True(t, comments[1].IsBot)
}

func TestRateLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rate_limit", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"resources":{"core":{"limit":5000,"remaining":4990,"reset":1893456000}}}`)
	})
	c := newTestClient(t, mux)

	rl, err := c.RateLimit(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 5000, rl.Limit)
	assert.Equal(t, 4990, rl.Remaining)
	assert.Equal(t, int64(1893456000), rl.Reset.Unix())
}

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		in          string
		owner, repo string
		wantErr     bool
	}{
		{in: "https://github.com/acme/demo", owner: "acme", repo: "demo"},
		{in: "https://github.com/acme/demo.git", owner: "acme", repo: "demo"},
		{in: "https://github.com/acme/demo/", owner: "acme", repo: "demo"},
		{in: "git@github.com:acme/demo.git", owner: "acme", repo: "demo"},
		{in: "https://gitlab.com/acme/demo", wantErr: true},
		{in: "https://github.com/acme", wantErr: true},
		{in: "not a url", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			owner, repo, err := ParseRepoURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.repo, repo)
		})
	}
}

func TestFormatTimeUntilReset(t *testing.T) {
	assert.Equal(t, "0 minutes", FormatTimeUntilReset(-time.Minute))
	assert.Equal(t, "42 minutes", FormatTimeUntilReset(42*time.Minute))
	assert.Equal(t, "1 hour 5 minutes", FormatTimeUntilReset(65*time.Minute))
	assert.Equal(t, "2 hours 0 minutes", FormatTimeUntilReset(2*time.Hour))
}
