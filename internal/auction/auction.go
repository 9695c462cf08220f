// Package auction holds the auction aggregate, its state machine and the
// bid-application logic. The aggregate is mutated by exactly two actors, the
// scheduler and the bid consumer, and every write goes through an optimistic
// concurrency check on the Version field.
package auction

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of an auction.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusEnded     Status = "ended"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are legal.
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusCancelled
}

// ErrNotFound is returned by stores when no auction exists for an ID.
var ErrNotFound = errors.New("auction not found")

// ErrVersionConflict is returned when a write lost the optimistic
// concurrency race. Callers reload the aggregate and retry.
var ErrVersionConflict = errors.New("auction version conflict")

// StateGuardError reports an illegal transition attempt. It is expected
// under races between the scheduler and the bid consumer, so callers log it
// instead of propagating it as a hard failure.
type StateGuardError struct {
	AuctionID string
	From      Status
	To        Status
}

func (e *StateGuardError) Error() string {
	return fmt.Sprintf("auction %s: illegal transition %s -> %s", e.AuctionID, e.From, e.To)
}

// Auction is the authoritative mutable state for one auction.
type Auction struct {
	ID                string
	Title             string
	Status            Status
	StartingPrice     float64
	CurrentPrice      float64
	MinIncrement      float64
	ReservePrice      float64 // 0 means no reserve
	StartTime         time.Time
	EndTime           time.Time
	OriginalEndTime   time.Time
	AutoExtendSeconds int
	TotalBids         int
	UniqueBidders     map[string]struct{}
	WinnerID          string
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// New creates a draft auction.
func New(id, title string, startingPrice, minIncrement float64, start, end time.Time) *Auction {
	now := time.Now().UTC()
	return &Auction{
		ID:              id,
		Title:           title,
		Status:          StatusDraft,
		StartingPrice:   startingPrice,
		CurrentPrice:    startingPrice,
		MinIncrement:    minIncrement,
		StartTime:       start,
		EndTime:         end,
		OriginalEndTime: end,
		UniqueBidders:   make(map[string]struct{}),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Publish moves a draft auction to pending, making it visible to the
// scheduler.
func (a *Auction) Publish() error {
	if a.Status != StatusDraft {
		return &StateGuardError{AuctionID: a.ID, From: a.Status, To: StatusPending}
	}
	a.Status = StatusPending
	return nil
}

// Activate moves a pending auction to active. Only pending may become
// active; the guard is re-checked here at write time because a concurrent
// writer may have advanced the auction since it was queried.
func (a *Auction) Activate(now time.Time) error {
	if a.Status != StatusPending {
		return &StateGuardError{AuctionID: a.ID, From: a.Status, To: StatusActive}
	}
	a.Status = StatusActive
	a.UpdatedAt = now
	return nil
}

// Close moves an active auction to ended. Both the scheduler sweep and the
// bid consumer's lazy close go through this guard, so the transition happens
// exactly once no matter which writer observes the deadline first.
func (a *Auction) Close(now time.Time) error {
	if a.Status != StatusActive {
		return &StateGuardError{AuctionID: a.ID, From: a.Status, To: StatusEnded}
	}
	a.Status = StatusEnded
	a.UpdatedAt = now
	return nil
}

// Cancel moves a draft or pending auction to cancelled.
func (a *Auction) Cancel() error {
	if a.Status != StatusDraft && a.Status != StatusPending {
		return &StateGuardError{AuctionID: a.ID, From: a.Status, To: StatusCancelled}
	}
	a.Status = StatusCancelled
	return nil
}

// Expired reports whether the auction's end time has passed.
func (a *Auction) Expired(now time.Time) bool {
	return now.After(a.EndTime)
}

// ReserveMet reports whether the current price satisfies the reserve.
func (a *Auction) ReserveMet() bool {
	return a.ReservePrice == 0 || a.CurrentPrice >= a.ReservePrice
}

// ApplyBid folds an accepted bid event into the aggregate. The amount is
// applied as-is: validation against the price at placement time already
// happened on the producer side. A bid landing inside the auto-extend window
// pushes the end time out to keep the auction open.
func (a *Auction) ApplyBid(bidderID string, amount float64, at time.Time) error {
	if a.Status != StatusActive {
		return &StateGuardError{AuctionID: a.ID, From: a.Status, To: StatusActive}
	}

	a.CurrentPrice = amount
	a.WinnerID = bidderID
	a.TotalBids++
	if a.UniqueBidders == nil {
		a.UniqueBidders = make(map[string]struct{})
	}
	a.UniqueBidders[bidderID] = struct{}{}

	if a.AutoExtendSeconds > 0 {
		window := time.Duration(a.AutoExtendSeconds) * time.Second
		if remaining := a.EndTime.Sub(at); remaining >= 0 && remaining < window {
			a.EndTime = at.Add(window)
		}
	}

	a.UpdatedAt = at
	return nil
}
