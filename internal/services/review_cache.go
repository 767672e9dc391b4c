package services

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/huangang/codemender/internal/models"
	"github.com/huangang/codemender/pkg/logger"
	"gorm.io/gorm"
)

// VerdictCache returns an earlier verdict recorded for the same fix diff at
// the same head commit.
type VerdictCache struct {
	db *gorm.DB
}

func NewVerdictCache(db *gorm.DB) *VerdictCache {
	return &VerdictCache{db: db}
}

// ComputeDiffHash returns the SHA-256 hex digest of the given diff string.
func ComputeDiffHash(diff string) string {
	h := sha256.Sum256([]byte(diff))
	return fmt.Sprintf("%x", h)
}

// Find returns nil on a miss or when the stored verdict no longer decodes.
func (c *VerdictCache) Find(ctx context.Context, issueID, headSHA, diffHash string) *AIReviewResult {
	if diffHash == "" || headSHA == "" {
		return nil
	}

	var existing models.PRReview
	err := c.db.WithContext(ctx).
		Where("issue_id = ? AND head_sha = ? AND diff_hash = ?", issueID, headSHA, diffHash).
		Order("id DESC").
		First(&existing).Error
	if err != nil {
		return nil
	}

	var verdict AIReviewResult
	if err := json.Unmarshal([]byte(existing.ReviewResult), &verdict); err != nil {
		logger.Warnf("[VerdictCache] review %d has an unreadable verdict: %v", existing.ID, err)
		return nil
	}

	logger.Infof("[VerdictCache] Cache HIT: issue=%s, hash=%s..., source_review=%d, confidence=%d",
		issueID, diffHash[:8], existing.ID, verdict.Confidence)
	return &verdict
}
