package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/huangang/codemender/internal/models"
	"gorm.io/gorm"
)

const (
	analysisLockName = "analysis"
	analysisLockTTL  = 30 * time.Minute
)

// LeaseManager hands out named leases stored in scheduler_locks. A lease is
// a row keyed by (name, key); an expired row may be taken over.
type LeaseManager struct {
	db     *gorm.DB
	holder string
	now    func() time.Time
}

func NewLeaseManager(db *gorm.DB) *LeaseManager {
	host, _ := os.Hostname()
	return &LeaseManager{
		db:     db,
		holder: fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
		now:    time.Now,
	}
}

// Lease is a held lock. Release is safe to call more than once.
type Lease struct {
	m        *LeaseManager
	name     string
	key      string
	token    string
	released bool
}

// Acquire takes the lease or returns ErrLeaseHeld.
func (m *LeaseManager) Acquire(ctx context.Context, name, key string, ttl time.Duration) (*Lease, error) {
	now := m.now()
	token := m.holder + "/" + uuid.NewString()[:8]
	db := m.db.WithContext(ctx)

	lock := models.SchedulerLock{
		LockName:  name,
		LockKey:   key,
		LockedBy:  token,
		LockedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.Create(&lock).Error; err == nil {
		return &Lease{m: m, name: name, key: key, token: token}, nil
	}

	// Row exists: take it over only if it has expired.
	res := db.Model(&models.SchedulerLock{}).
		Where("lock_name = ? AND lock_key = ? AND expires_at <= ?", name, key, now).
		Updates(map[string]interface{}{
			"locked_by":  token,
			"locked_at":  now,
			"expires_at": now.Add(ttl),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("acquire lease %s/%s: %w", name, key, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrLeaseHeld
	}
	return &Lease{m: m, name: name, key: key, token: token}, nil
}

var ErrLeaseHeld = errors.New("lease held by another worker")

func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.released {
		return nil
	}
	l.released = true
	return l.m.db.WithContext(ctx).
		Where("lock_name = ? AND lock_key = ? AND locked_by = ?", l.name, l.key, l.token).
		Delete(&models.SchedulerLock{}).Error
}

// AcquireAnalysis fences analysis runs of one project.
func (m *LeaseManager) AcquireAnalysis(ctx context.Context, projectID uint) (*Lease, error) {
	lease, err := m.Acquire(ctx, analysisLockName, fmt.Sprint(projectID), analysisLockTTL)
	if errors.Is(err, ErrLeaseHeld) {
		return nil, ErrAnalysisInProgress
	}
	return lease, err
}
