// Package resync keeps mailboxes converged when push notifications are not
// enough: periodic catch-up sweeps and Gmail watch renewal, which expires
// after roughly seven days.
package resync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sajagshrestha/autofin-BE/internal/common"
	"github.com/sajagshrestha/autofin-BE/internal/ingest"
	"github.com/sajagshrestha/autofin-BE/internal/model"
	"github.com/sajagshrestha/autofin-BE/internal/service"
)

// watchRenewalWindow renews watches expiring within this horizon. Gmail
// grants about seven days per registration, so a daily sweep with a one-day
// window never lets a watch lapse.
const watchRenewalWindow = 24 * time.Hour

// Resyncer runs one catch-up pass for a mailbox.
type Resyncer interface {
	ResyncMailbox(ctx context.Context, userID string) (*ingest.BatchResult, error)
}

// Scheduler owns the periodic resync loops, one per mailbox, and the watch
// renewal sweep.
type Scheduler struct {
	store     service.Storage
	providers service.MailProviderFactory
	resyncer  Resyncer
	topic     string
	interval  time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler. topic is the Pub/Sub topic watches
// publish to; interval is the per-mailbox resync period.
func NewScheduler(store service.Storage, providers service.MailProviderFactory, resyncer Resyncer, topic string, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Scheduler{
		store:     store,
		providers: providers,
		resyncer:  resyncer,
		topic:     topic,
		interval:  interval,
		logger:    logger,
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Start launches (or restarts) the resync loop for one mailbox. A prior
// loop for the same user is superseded: its context is canceled before the
// replacement starts, so at most one loop per mailbox ever runs.
func (s *Scheduler) Start(ctx context.Context, userID string) {
	s.mu.Lock()
	if cancel, ok := s.cancels[userID]; ok {
		cancel()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancels[userID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(loopCtx, userID)
	}()
}

// StartAll launches resync loops for every active mailbox.
func (s *Scheduler) StartAll(ctx context.Context) error {
	mailboxes, err := s.store.ListMailboxes(ctx)
	if err != nil {
		return err
	}
	for _, mb := range mailboxes {
		if mb.Status != model.MailboxActive {
			continue
		}
		s.Start(ctx, mb.UserID)
	}
	s.logger.Info("resync loops started", "mailboxes", len(mailboxes))
	return nil
}

// Stop cancels the loop for one mailbox, typically after revocation.
func (s *Scheduler) Stop(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.cancels[userID]; ok {
		cancel()
		delete(s.cancels, userID)
	}
}

// Shutdown cancels every loop and waits for them to drain.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	for userID, cancel := range s.cancels {
		cancel()
		delete(s.cancels, userID)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, userID string) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, userID)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, userID string) {
	result, err := s.resyncer.ResyncMailbox(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.logger.Info("mailbox removed, stopping resync loop", "user_id", userID)
			s.Stop(userID)
			return
		}
		s.logger.Error("resync pass failed", "user_id", userID, "error", err)
		return
	}
	if result.ProcessedCount > 0 || result.FailedCount > 0 {
		s.logger.Info("resync pass complete",
			"user_id", userID,
			"processed", result.ProcessedCount,
			"skipped", result.SkippedCount,
			"failed", result.FailedCount)
	}
}

// RenewExpiringWatches re-registers every watch expiring within the renewal
// window. For mailboxes that have never processed a notification the watch
// response seeds the history cursor, anchoring the first delta.
func (s *Scheduler) RenewExpiringWatches(ctx context.Context) error {
	mailboxes, err := s.store.ListMailboxesWithWatchExpiringBefore(ctx, time.Now().Add(watchRenewalWindow))
	if err != nil {
		return err
	}

	for i := range mailboxes {
		mb := &mailboxes[i]
		if err := s.renewWatch(ctx, mb); err != nil {
			s.logger.Error("failed to renew watch", "user_id", mb.UserID, "error", err)
		}
	}

	return nil
}

func (s *Scheduler) renewWatch(ctx context.Context, mb *model.MailboxSync) error {
	provider, err := s.providers(ctx, mb)
	if err != nil {
		return err
	}

	registration, err := provider.RegisterWatch(ctx, s.topic, mb.LabelIDs)
	if err != nil {
		if errors.Is(err, common.ErrAuthRevoked) {
			s.logger.Error("watch renewal hit revoked credentials", "user_id", mb.UserID)
			if statusErr := s.store.UpdateMailboxStatus(ctx, mb.UserID, model.MailboxRevoked); statusErr != nil {
				s.logger.Error("failed to mark mailbox revoked", "user_id", mb.UserID, "error", statusErr)
			}
			s.Stop(mb.UserID)
			return nil
		}
		return err
	}

	if err := s.store.UpdateMailboxWatch(ctx, mb.UserID, registration.Expiry); err != nil {
		return err
	}

	if mb.HistoryID == 0 && registration.HistoryID > 0 {
		if err := s.store.UpdateMailboxCursor(ctx, mb.UserID, registration.HistoryID); err != nil {
			return err
		}
	}

	s.logger.Info("watch renewed", "user_id", mb.UserID, "expiry", registration.Expiry)
	return nil
}

// RunWatchRenewalLoop sweeps for expiring watches on the given period until
// the context ends. Blocks; callers run it in a goroutine.
func (s *Scheduler) RunWatchRenewalLoop(ctx context.Context, period time.Duration) {
	if period <= 0 {
		period = 12 * time.Hour
	}

	// One sweep up front so a restart never misses an imminent expiry.
	if err := s.RenewExpiringWatches(ctx); err != nil {
		s.logger.Error("watch renewal sweep failed", "error", err)
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RenewExpiringWatches(ctx); err != nil {
				s.logger.Error("watch renewal sweep failed", "error", err)
			}
		}
	}
}
