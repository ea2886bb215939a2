package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
)

const defaultHousekeepingInterval = time.Minute

// HousekeepingService periodically settles stale rows: pending approval
// requests past their deadline become expired and lapsed refresh tokens are
// cleared. Neither is required for correctness since reads apply the same
// rules, it only keeps stored state honest.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration
	Now      func() time.Time

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewHousekeepingService creates a housekeeping service. A non-positive
// interval defaults to one minute.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = defaultHousekeepingInterval
	}

	return &HousekeepingService{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background worker. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress sweep has finished. It is a no-op when
// the service was never started.
func (s *HousekeepingService) Stop() {
	if !s.started.Load() {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
		s.Logger.Info("housekeeping service stopped")
	})
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Sweep(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Sweep runs one cleanup pass. Each step is independent; a failure in one
// does not stop the other.
func (s *HousekeepingService) Sweep(ctx context.Context) {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}

	expired, err := s.Store.ApprovalRequests().ExpirePendingApprovalRequests(ctx, now)
	if err != nil {
		s.Logger.Error("failed to expire pending approval requests", "error", err)
	}

	cleared, err := s.Store.Users().ClearExpiredRefreshTokens(ctx, now)
	if err != nil {
		s.Logger.Error("failed to clear expired refresh tokens", "error", err)
	}

	if expired > 0 || cleared > 0 {
		s.Logger.Info("housekeeping sweep completed",
			"approvals_expired", expired,
			"refresh_tokens_cleared", cleared,
		)
	}
}
