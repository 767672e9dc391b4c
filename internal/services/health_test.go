package services

import (
	"math/rand"
	"testing"

	"github.com/huangang/codemender/internal/models"
)

func TestHealthScore(t *testing.T) {
	tests := []struct {
		name       string
		severities []models.Severity
		expected   int
	}{
		{"no issues", nil, 100},
		{"critical and low", []models.Severity{models.SeverityCritical, models.SeverityLow}, 84},
		{"single info rounds half up", []models.Severity{models.SeverityInfo}, 100},
		{"three info", []models.Severity{models.SeverityInfo, models.SeverityInfo, models.SeverityInfo}, 99},
		{"mixed", []models.Severity{models.SeverityHigh, models.SeverityMedium, models.SeverityMedium}, 86},
		{"clamped at zero", repeatSeverity(models.SeverityCritical, 10), 0},
		{"unknown severity ignored", []models.Severity{"BOGUS"}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HealthScore(tt.severities...); got != tt.expected {
				t.Errorf("HealthScore() = %d, expected %d", got, tt.expected)
			}
		})
	}
}

func TestHealthScore_Monotonic(t *testing.T) {
	all := []models.Severity{
		models.SeverityCritical, models.SeverityHigh, models.SeverityMedium,
		models.SeverityLow, models.SeverityInfo,
	}
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		var set []models.Severity
		for i := rng.Intn(20); i > 0; i-- {
			set = append(set, all[rng.Intn(len(all))])
		}
		before := HealthScore(set...)
		after := HealthScore(append(set, all[rng.Intn(len(all))])...)
		if after > before {
			t.Fatalf("adding an issue raised the score: %v -> %d, %d", set, before, after)
		}
	}
}

func repeatSeverity(s models.Severity, n int) []models.Severity {
	out := make([]models.Severity, n)
	for i := range out {
		out[i] = s
	}
	return out
}
