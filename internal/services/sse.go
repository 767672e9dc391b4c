package services

import (
	"sync"
	"time"
)

// Ledger event types.
const (
	EventAnalysisStarted   = "analysis.started"
	EventAnalysisCompleted = "analysis.completed"
	EventAnalysisFailed    = "analysis.failed"
	EventFixOpened         = "fix.opened"
	EventFixFailed         = "fix.failed"
	EventReviewDecided     = "review.decided"
	EventMergeRetried      = "review.merge_retried"
)

// LedgerEvent is a real-time update about analysis, fix and review activity.
type LedgerEvent struct {
	Type        string    `json:"type"`
	ProjectID   uint      `json:"project_id"`
	IssueID     string    `json:"issue_id,omitempty"`
	PRNumber    int       `json:"pr_number,omitempty"`
	Status      string    `json:"status,omitempty"`
	HealthScore *int      `json:"health_score,omitempty"`
	Message     string    `json:"message,omitempty"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

// SSEHub manages SSE client connections and event broadcasting
type SSEHub struct {
	clients map[string]chan LedgerEvent
	mu      sync.RWMutex
}

func NewSSEHub() *SSEHub {
	return &SSEHub{
		clients: make(map[string]chan LedgerEvent),
	}
}

// Subscribe registers a client and returns its event channel.
func (h *SSEHub) Subscribe(clientID string) <-chan LedgerEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan LedgerEvent, 100)
	h.clients[clientID] = ch
	return ch
}

func (h *SSEHub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.clients[clientID]; ok {
		close(ch)
		delete(h.clients, clientID)
	}
}

// Publish broadcasts to all clients. Slow clients miss events rather than
// block the publisher.
func (h *SSEHub) Publish(event LedgerEvent) {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.clients {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *SSEHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var globalSSEHub *SSEHub
var sseHubOnce sync.Once

// GetSSEHub returns the process-wide hub.
func GetSSEHub() *SSEHub {
	sseHubOnce.Do(func() {
		globalSSEHub = NewSSEHub()
	})
	return globalSSEHub
}

// PublishLedgerEvent publishes to the process-wide hub.
func PublishLedgerEvent(event LedgerEvent) {
	GetSSEHub().Publish(event)
}
