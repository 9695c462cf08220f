// Package stats folds bid and auction events into per-user aggregates and
// awards achievements when fixed thresholds are crossed.
package stats

import (
	"context"
	"time"
)

// UserStats is the read-optimized per-user aggregate maintained by the
// projection consumer. It is mutated by that consumer only.
type UserStats struct {
	UserID           string
	TotalBids        int
	TotalSpent       float64
	AuctionsWon      int
	BiggestWin       float64
	BidsToday        int
	LastBidDate      time.Time
	ActiveAuctionIDs map[string]struct{}
}

// NewUserStats returns an empty aggregate for a user.
func NewUserStats(userID string) *UserStats {
	return &UserStats{
		UserID:           userID,
		ActiveAuctionIDs: make(map[string]struct{}),
	}
}

// FoldBid applies one bid placement by this user. BidsToday resets when the
// calendar day (UTC) changed since the last bid.
func (s *UserStats) FoldBid(auctionID string, at time.Time) {
	s.TotalBids++
	if sameDay(s.LastBidDate, at) {
		s.BidsToday++
	} else {
		s.BidsToday = 1
	}
	s.LastBidDate = at
	if s.ActiveAuctionIDs == nil {
		s.ActiveAuctionIDs = make(map[string]struct{})
	}
	s.ActiveAuctionIDs[auctionID] = struct{}{}
}

// FoldWin applies a won auction's final price.
func (s *UserStats) FoldWin(finalPrice float64) {
	s.AuctionsWon++
	s.TotalSpent += finalPrice
	if finalPrice > s.BiggestWin {
		s.BiggestWin = finalPrice
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// Store persists user stats. Get returns a fresh empty aggregate when the
// user has no row yet.
type Store interface {
	Get(ctx context.Context, userID string) (*UserStats, error)
	Save(ctx context.Context, s *UserStats) error

	// ClearActiveAuction removes the auction from every user's active set.
	ClearActiveAuction(ctx context.Context, auctionID string) error

	// MarkUnlocked records an achievement grant. It returns false when the
	// user already holds the achievement, which keeps grants exactly-once
	// across restarts.
	MarkUnlocked(ctx context.Context, userID, achievementID string) (bool, error)
}
