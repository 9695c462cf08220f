package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openbid/auction-pipeline/internal/event"
)

// maxApplyAttempts bounds the optimistic-concurrency retry loop. Conflicts
// only come from the scheduler racing the same auction, so they resolve
// within a reload or two.
const maxApplyAttempts = 3

// BidHandler applies BID_PLACED events to the auction aggregate. It is the
// second writer of the aggregate, alongside the scheduler.
type BidHandler struct {
	store     Store
	bids      BidStore
	publisher event.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewBidHandler wires the bid-application consumer handler.
func NewBidHandler(store Store, bids BidStore, publisher event.Publisher, logger *zap.Logger) *BidHandler {
	return &BidHandler{
		store:     store,
		bids:      bids,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// HandleEvent processes one deduplicated event from the bids topic.
// Returning a non-nil error keeps the offset uncommitted so the broker
// redelivers the message.
func (h *BidHandler) HandleEvent(ctx context.Context, ev event.Event) error {
	bid, ok := ev.(*event.BidPlaced)
	if !ok {
		h.logger.Warn("unexpected event on bids topic",
			zap.String("event_type", string(ev.Type())))
		return nil
	}

	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		done, err := h.apply(ctx, bid)
		if err != nil {
			if errors.Is(err, ErrVersionConflict) {
				h.logger.Debug("bid apply lost version race, retrying",
					zap.String("auction_id", bid.AuctionID),
					zap.String("bid_id", bid.BidID))
				continue
			}
			return err
		}
		if done {
			return nil
		}
	}
	return fmt.Errorf("apply bid %s to auction %s: %w", bid.BidID, bid.AuctionID, ErrVersionConflict)
}

// apply runs one attempt of the bid-application algorithm against a fresh
// snapshot of the aggregate. It reports done=true when the event reached a
// final disposition (applied or dropped).
func (h *BidHandler) apply(ctx context.Context, bid *event.BidPlaced) (done bool, err error) {
	a, err := h.store.Get(ctx, bid.AuctionID)
	if errors.Is(err, ErrNotFound) {
		// The auction projection may not exist yet or was deleted; drop.
		h.logger.Warn("bid for unknown auction dropped",
			zap.String("auction_id", bid.AuctionID),
			zap.String("bid_id", bid.BidID))
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("load auction %s: %w", bid.AuctionID, err)
	}

	now := h.now().UTC()

	// Lazy close: the event arrived after the logical end of the auction.
	// Close it here with the same guard the scheduler uses and reject the
	// bid that triggered the observation.
	if a.Status == StatusActive && a.Expired(now) {
		if err := a.Close(now); err != nil {
			var guard *StateGuardError
			if errors.As(err, &guard) {
				h.logger.Warn("lazy close rejected by state guard", zap.Error(err))
				return true, nil
			}
			return false, err
		}
		if err := h.store.Update(ctx, a); err != nil {
			return false, err
		}
		h.archiveBid(ctx, bid, BidStatusRejected)
		h.publishEnded(ctx, a, now)
		h.logger.Info("auction lazily closed, late bid rejected",
			zap.String("auction_id", a.ID),
			zap.String("bid_id", bid.BidID))
		return true, nil
	}

	if a.Status != StatusActive {
		h.logger.Info("bid for non-active auction dropped",
			zap.String("auction_id", a.ID),
			zap.String("bid_id", bid.BidID),
			zap.String("status", string(a.Status)))
		return true, nil
	}

	if err := a.ApplyBid(bid.BidderID, bid.Amount, now); err != nil {
		var guard *StateGuardError
		if errors.As(err, &guard) {
			h.logger.Warn("bid rejected by state guard", zap.Error(err))
			return true, nil
		}
		return false, err
	}
	if err := h.store.Update(ctx, a); err != nil {
		return false, err
	}

	h.archiveBid(ctx, bid, BidStatusAccepted)
	h.logger.Debug("bid applied",
		zap.String("auction_id", a.ID),
		zap.String("bid_id", bid.BidID),
		zap.Float64("amount", bid.Amount),
		zap.Int("total_bids", a.TotalBids))
	return true, nil
}

// archiveBid writes the bid record. Archival is best effort: the aggregate
// update already committed, so a failure here is logged, not rolled back.
func (h *BidHandler) archiveBid(ctx context.Context, bid *event.BidPlaced, status string) {
	if h.bids == nil {
		return
	}
	record := &BidRecord{
		ID:        bid.BidID,
		AuctionID: bid.AuctionID,
		BidderID:  bid.BidderID,
		Amount:    bid.Amount,
		Timestamp: bid.Timestamp,
		Status:    status,
	}
	if err := h.bids.Insert(ctx, record); err != nil {
		h.logger.Error("failed to archive bid record",
			zap.String("bid_id", bid.BidID),
			zap.Error(err))
	}
}

// publishEnded emits AUCTION_ENDED after a lazy close. Publish failure
// degrades to logging: the auction is already persisted as ended.
func (h *BidHandler) publishEnded(ctx context.Context, a *Auction, now time.Time) {
	ended := &event.AuctionEnded{
		AuctionID:  a.ID,
		Title:      a.Title,
		WinnerID:   a.WinnerID,
		FinalPrice: a.CurrentPrice,
		TotalBids:  a.TotalBids,
		EndTime:    a.EndTime,
		Timestamp:  now,
	}
	if err := h.publisher.Publish(ctx, event.TopicAuctions, a.ID, ended); err != nil {
		h.logger.Error("failed to publish auction ended event",
			zap.String("auction_id", a.ID),
			zap.Error(err))
	}
}
