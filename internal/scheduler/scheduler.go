// Package scheduler advances auctions through time: pending auctions whose
// start time has passed go active, active auctions whose end time has passed
// are closed. It is one of the two writers of the auction aggregate and uses
// the same state guards and version checks as the bid consumer.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/openbid/auction-pipeline/internal/auction"
	"github.com/openbid/auction-pipeline/internal/event"
)

// DefaultInterval matches the reference sweep cadence.
const DefaultInterval = 30 * time.Second

// maxTransitionAttempts bounds the reload-and-retry loop on version
// conflicts with the bid consumer.
const maxTransitionAttempts = 3

// Scheduler runs the periodic auction sweep.
type Scheduler struct {
	store     auction.Store
	publisher event.Publisher
	logger    *zap.Logger
	interval  time.Duration
	cron      *cron.Cron
	now       func() time.Time
}

// New creates a scheduler sweeping at the given interval.
func New(store auction.Store, publisher event.Publisher, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		store:     store,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		now:       time.Now,
	}
}

// Start begins the sweep loop in the background.
func (s *Scheduler) Start() error {
	s.cron = cron.New()
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() {
		s.Tick(context.Background())
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("auction scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop halts the sweep loop and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("auction scheduler stopped")
}

// Tick runs one sweep. Each auction is processed independently: a failure on
// one must not block the others in the same tick.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now().UTC()

	pending, err := s.store.DuePending(ctx, now)
	if err != nil {
		s.logger.Error("failed to query due pending auctions", zap.Error(err))
	} else {
		for _, a := range pending {
			if err := s.activate(ctx, a, now); err != nil {
				s.logger.Error("failed to activate auction",
					zap.String("auction_id", a.ID),
					zap.Error(err))
			}
		}
	}

	active, err := s.store.DueActive(ctx, now)
	if err != nil {
		s.logger.Error("failed to query due active auctions", zap.Error(err))
		return
	}
	for _, a := range active {
		if err := s.close(ctx, a, now); err != nil {
			s.logger.Error("failed to close auction",
				zap.String("auction_id", a.ID),
				zap.Error(err))
		}
	}
}

// activate transitions one due auction to active and emits AUCTION_STARTED.
func (s *Scheduler) activate(ctx context.Context, a *auction.Auction, now time.Time) error {
	transitioned, err := s.transition(ctx, a, func(a *auction.Auction) error {
		return a.Activate(now)
	})
	if err != nil || !transitioned {
		return err
	}

	started := &event.AuctionStarted{
		AuctionID: a.ID,
		Title:     a.Title,
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
		Timestamp: now,
	}
	if err := s.publisher.Publish(ctx, event.TopicAuctions, a.ID, started); err != nil {
		// The transition is already persisted; the consumer-facing event is
		// lost until something else re-announces the auction, so log loudly.
		s.logger.Error("failed to publish auction started event",
			zap.String("auction_id", a.ID),
			zap.Error(err))
		return nil
	}
	s.logger.Info("auction activated", zap.String("auction_id", a.ID))
	return nil
}

// close transitions one due auction to ended and emits AUCTION_ENDED with
// the final outcome.
func (s *Scheduler) close(ctx context.Context, a *auction.Auction, now time.Time) error {
	transitioned, err := s.transition(ctx, a, func(a *auction.Auction) error {
		return a.Close(now)
	})
	if err != nil || !transitioned {
		return err
	}

	ended := &event.AuctionEnded{
		AuctionID:  a.ID,
		Title:      a.Title,
		WinnerID:   a.WinnerID,
		FinalPrice: a.CurrentPrice,
		TotalBids:  a.TotalBids,
		EndTime:    a.EndTime,
		Timestamp:  now,
	}
	if err := s.publisher.Publish(ctx, event.TopicAuctions, a.ID, ended); err != nil {
		// Swallow with a log: the next tick will not re-close the auction,
		// but downstream read models catch up from the aggregate store.
		s.logger.Error("failed to publish auction ended event",
			zap.String("auction_id", a.ID),
			zap.Error(err))
		return nil
	}
	s.logger.Info("auction closed",
		zap.String("auction_id", a.ID),
		zap.String("winner_id", a.WinnerID),
		zap.Float64("final_price", a.CurrentPrice),
		zap.Int("total_bids", a.TotalBids))
	return nil
}

// transition applies fn to the aggregate and persists it, re-checking the
// state guard at write time. On a version conflict it reloads and retries;
// a guard rejection means another writer got there first and is not an
// error, only a skipped auction.
func (s *Scheduler) transition(ctx context.Context, a *auction.Auction, fn func(*auction.Auction) error) (bool, error) {
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		if err := fn(a); err != nil {
			var guard *auction.StateGuardError
			if errors.As(err, &guard) {
				s.logger.Warn("transition rejected by state guard", zap.Error(err))
				return false, nil
			}
			return false, err
		}

		err := s.store.Update(ctx, a)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, auction.ErrVersionConflict) {
			return false, err
		}

		fresh, err := s.store.Get(ctx, a.ID)
		if err != nil {
			return false, fmt.Errorf("reload auction %s after conflict: %w", a.ID, err)
		}
		*a = *fresh
	}
	return false, fmt.Errorf("transition auction %s: %w", a.ID, auction.ErrVersionConflict)
}
