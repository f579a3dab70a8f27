package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pscheid92/contestpulse/internal/domain"
)

const leaderLockTTL = 30 * time.Second

var ErrLeadershipLost = errors.New("leader lock lost")

// LeaderElector elects one instance through a TTL lock so only that instance sweeps queues.
type LeaderElector struct {
	locker     domain.Locker
	instanceID string
	lockKey    string
	lockTTL    time.Duration
}

// NewLeaderElector creates a leader election coordinator.
// instanceID should be unique per instance (e.g., hostname-PID).
func NewLeaderElector(locker domain.Locker, instanceID string) *LeaderElector {
	return &LeaderElector{
		locker:     locker,
		instanceID: instanceID,
		lockKey:    domain.ReconcilerLeaderKey,
		lockTTL:    leaderLockTTL,
	}
}

// TryAcquire returns true if this instance is the leader after the call, renewing an
// existing lease.
func (l *LeaderElector) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.locker.TryLock(ctx, l.lockKey, l.instanceID, l.lockTTL)
	if err != nil {
		return false, fmt.Errorf("failed to acquire leader lock: %w", err)
	}
	if ok {
		return true, nil
	}
	ok, err = l.locker.Refresh(ctx, l.lockKey, l.instanceID, l.lockTTL)
	if err != nil {
		return false, fmt.Errorf("failed to renew leader lock: %w", err)
	}
	return ok, nil
}

// Renew extends the lease. It fails with ErrLeadershipLost if another instance owns it.
func (l *LeaderElector) Renew(ctx context.Context) error {
	ok, err := l.locker.Refresh(ctx, l.lockKey, l.instanceID, l.lockTTL)
	if err != nil {
		return fmt.Errorf("failed to renew leader lock: %w", err)
	}
	if !ok {
		return ErrLeadershipLost
	}
	return nil
}

// Release voluntarily releases leadership, called on graceful shutdown.
func (l *LeaderElector) Release(ctx context.Context) error {
	_, err := l.locker.Unlock(ctx, l.lockKey, l.instanceID)
	return err
}
