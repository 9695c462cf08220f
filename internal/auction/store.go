package auction

import (
	"context"
	"time"
)

// Store persists auction aggregates. Update performs the optimistic
// concurrency check: it only succeeds when the stored version matches the
// aggregate's version, and bumps the version on success. A stale write
// returns ErrVersionConflict.
type Store interface {
	Get(ctx context.Context, id string) (*Auction, error)
	Create(ctx context.Context, a *Auction) error
	Update(ctx context.Context, a *Auction) error

	// DuePending returns pending auctions whose start time has passed.
	DuePending(ctx context.Context, now time.Time) ([]*Auction, error)
	// DueActive returns active auctions whose end time has passed.
	DueActive(ctx context.Context, now time.Time) ([]*Auction, error)
}

// BidRecord statuses.
const (
	BidStatusPending  = "pending"
	BidStatusAccepted = "accepted"
	BidStatusRejected = "rejected"
)

// BidRecord is the persisted form of a single bid. The pipeline writes each
// record at most once and never mutates it; state changes land on the
// aggregate instead.
type BidRecord struct {
	ID        string
	AuctionID string
	BidderID  string
	Amount    float64
	Timestamp time.Time
	Status    string
}

// BidStore archives bid records. Insert must be idempotent on the bid ID.
type BidStore interface {
	Insert(ctx context.Context, bid *BidRecord) error
}
