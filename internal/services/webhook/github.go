package webhook

import (
	"context"
	"encoding/json"
	"fmt"
)

// HandleGitHubWebhook dispatches a verified GitHub delivery. Only
// pull_request events run a review cycle.
func (r *Router) HandleGitHubWebhook(ctx context.Context, eventType string, body []byte) (*Outcome, error) {
	switch eventType {
	case "pull_request":
		var event PullRequestEvent
		if err := json.Unmarshal(body, &event); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		return r.HandlePullRequest(ctx, &event)
	case "ping":
		return skipped("ping"), nil
	default:
		return skipped(fmt.Sprintf("event %q is not handled", eventType)), nil
	}
}
