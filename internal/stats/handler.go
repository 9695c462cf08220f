package stats

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openbid/auction-pipeline/internal/event"
)

// Handler is the projection consumer: it folds BID_PLACED and AUCTION_ENDED
// events into UserStats rows and emits ACHIEVEMENT_UNLOCKED events for newly
// crossed thresholds.
type Handler struct {
	store     Store
	publisher event.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewHandler wires the stats projection handler.
func NewHandler(store Store, publisher event.Publisher, logger *zap.Logger) *Handler {
	return &Handler{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// HandleEvent processes one deduplicated event. AUCTION_STARTED is consumed
// and ignored: the projection only reacts to bids and outcomes.
func (h *Handler) HandleEvent(ctx context.Context, ev event.Event) error {
	switch e := ev.(type) {
	case *event.BidPlaced:
		return h.handleBid(ctx, e)
	case *event.AuctionEnded:
		return h.handleEnded(ctx, e)
	case *event.AuctionStarted:
		return nil
	default:
		h.logger.Warn("unexpected event in stats projection",
			zap.String("event_type", string(ev.Type())))
		return nil
	}
}

func (h *Handler) handleBid(ctx context.Context, e *event.BidPlaced) error {
	s, err := h.store.Get(ctx, e.BidderID)
	if err != nil {
		return fmt.Errorf("load stats for %s: %w", e.BidderID, err)
	}

	s.FoldBid(e.AuctionID, e.Timestamp)
	if err := h.store.Save(ctx, s); err != nil {
		return fmt.Errorf("save stats for %s: %w", e.BidderID, err)
	}

	h.grant(ctx, e.BidderID, bidAchievements(s.TotalBids))
	return nil
}

func (h *Handler) handleEnded(ctx context.Context, e *event.AuctionEnded) error {
	if err := h.store.ClearActiveAuction(ctx, e.AuctionID); err != nil {
		return fmt.Errorf("clear active auction %s: %w", e.AuctionID, err)
	}
	if e.WinnerID == "" {
		return nil
	}

	s, err := h.store.Get(ctx, e.WinnerID)
	if err != nil {
		return fmt.Errorf("load stats for %s: %w", e.WinnerID, err)
	}

	prevSpent := s.TotalSpent
	s.FoldWin(e.FinalPrice)
	if err := h.store.Save(ctx, s); err != nil {
		return fmt.Errorf("save stats for %s: %w", e.WinnerID, err)
	}

	h.grant(ctx, e.WinnerID, winAchievements(s.AuctionsWon, prevSpent, s.TotalSpent))
	return nil
}

// grant records and announces newly unlocked achievements. The unlocked
// ledger keeps grants exactly-once even if a threshold check re-fires;
// publish failure degrades to logging since the grant itself is persisted.
func (h *Handler) grant(ctx context.Context, userID string, unlocked []Achievement) {
	for _, a := range unlocked {
		fresh, err := h.store.MarkUnlocked(ctx, userID, a.ID)
		if err != nil {
			h.logger.Error("failed to record achievement",
				zap.String("user_id", userID),
				zap.String("achievement_id", a.ID),
				zap.Error(err))
			continue
		}
		if !fresh {
			continue
		}

		ev := &event.AchievementUnlocked{
			UserID:                 userID,
			AchievementID:          a.ID,
			AchievementName:        a.Name,
			AchievementDescription: a.Description,
			AchievementIcon:        a.Icon,
			AchievementPoints:      a.Points,
			Timestamp:              h.now().UTC(),
		}
		if err := h.publisher.Publish(ctx, event.TopicAchievements, "", ev); err != nil {
			h.logger.Error("failed to publish achievement event",
				zap.String("user_id", userID),
				zap.String("achievement_id", a.ID),
				zap.Error(err))
			continue
		}
		h.logger.Info("achievement unlocked",
			zap.String("user_id", userID),
			zap.String("achievement_id", a.ID))
	}
}
