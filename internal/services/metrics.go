package services

import (
	"strconv"

	"github.com/huangang/codemender/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconcileCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codemender_reconcile_operations_total",
			Help: "Issue ledger operations produced by reconciliation",
		},
		[]string{"operation"}, // created, updated, resolved
	)

	healthGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "codemender_project_health_score",
			Help: "Most recent health score per project (0-100)",
		},
		[]string{"project_id"},
	)

	analysisCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codemender_analysis_runs_total",
			Help: "Analysis runs by outcome",
		},
		[]string{"status"},
	)

	fixCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codemender_fix_attempts_total",
			Help: "Auto-fix attempts by outcome",
		},
		[]string{"status"},
	)

	autoMergeCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codemender_pr_review_actions_total",
			Help: "Governance actions taken on AI fix pull requests",
		},
		[]string{"action"},
	)

	llmCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codemender_llm_requests_total",
			Help: "LLM calls by provider, purpose and outcome",
		},
		[]string{"provider", "purpose", "status"},
	)

	llmLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codemender_llm_request_duration_seconds",
			Help:    "LLM call latency",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"provider"},
	)

	_ = promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "codemender_sse_active_clients",
			Help: "Number of active SSE connections",
		},
		func() float64 {
			if hub := GetSSEHub(); hub != nil {
				return float64(hub.ClientCount())
			}
			return 0
		},
	)
)

func recordReconcile(r ReconcileResult) {
	reconcileCounter.WithLabelValues("created").Add(float64(r.Created))
	reconcileCounter.WithLabelValues("updated").Add(float64(r.Updated))
	reconcileCounter.WithLabelValues("resolved").Add(float64(r.Resolved))
}

func recordHealth(projectID uint, score int) {
	healthGauge.WithLabelValues(strconv.FormatUint(uint64(projectID), 10)).Set(float64(score))
}

// RecordReviewAction counts one governance action on a fix pull request.
func RecordReviewAction(action models.PRAction) {
	autoMergeCounter.WithLabelValues(string(action)).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
