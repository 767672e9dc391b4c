package services

import (
	"math"

	"github.com/huangang/codemender/internal/models"
)

var severityWeights = map[models.Severity]float64{
	models.SeverityCritical: 15,
	models.SeverityHigh:     8,
	models.SeverityMedium:   3,
	models.SeverityLow:      1,
	models.SeverityInfo:     0.5,
}

// HealthScore maps the severities of a project's active issues to 0..100.
// Unknown severities weigh nothing.
func HealthScore(severities ...models.Severity) int {
	score := 100.0
	for _, s := range severities {
		score -= severityWeights[s]
	}
	return int(math.Round(math.Max(0, math.Min(100, score))))
}
