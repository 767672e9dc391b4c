package webhook

import "errors"

// PullRequestEvent is the subset of a GitHub pull_request delivery the router reads.
type PullRequestEvent struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		State  string `json:"state"`
		Merged bool   `json:"merged"`
		Head   struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		} `json:"head"`
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
		User struct {
			Login string `json:"login"`
		} `json:"user"`
		HTMLURL string `json:"html_url"`
	} `json:"pull_request"`
	Repository struct {
		Name     string `json:"name"`
		FullName string `json:"full_name"`
		Owner    struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
	Sender struct {
		Login string `json:"login"`
	} `json:"sender"`
}

// PRNumber prefers the top-level number GitHub sends with every PR event.
func (e *PullRequestEvent) PRNumber() int {
	if e.Number != 0 {
		return e.Number
	}
	return e.PullRequest.Number
}

// Outcome is the router's reply for one delivery. Skipped is set when the
// event was acknowledged without running a review cycle.
type Outcome struct {
	Skipped        string `json:"skipped,omitempty"`
	Action         string `json:"action,omitempty"`
	Confidence     int    `json:"confidence,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
	PRReviewID     uint   `json:"pr_review_id,omitempty"`
}

func skipped(reason string) *Outcome {
	return &Outcome{Skipped: reason}
}

// DiffStats summarizes a unified diff.
type DiffStats struct {
	Files        []string
	Additions    int
	Deletions    int
	FilesChanged int
}

// ErrBadPayload marks a delivery whose body could not be decoded.
var ErrBadPayload = errors.New("malformed webhook payload")
