package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openbid/auction-pipeline/internal/auction"
	"github.com/openbid/auction-pipeline/internal/event"
)

type memStore struct {
	mu       sync.Mutex
	auctions map[string]*auction.Auction
}

func newMemStore() *memStore {
	return &memStore{auctions: make(map[string]*auction.Auction)}
}

func clone(a *auction.Auction) *auction.Auction {
	c := *a
	c.UniqueBidders = make(map[string]struct{}, len(a.UniqueBidders))
	for id := range a.UniqueBidders {
		c.UniqueBidders[id] = struct{}{}
	}
	return &c
}

func (s *memStore) Get(_ context.Context, id string) (*auction.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return nil, auction.ErrNotFound
	}
	return clone(a), nil
}

func (s *memStore) Create(_ context.Context, a *auction.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auctions[a.ID] = clone(a)
	return nil
}

func (s *memStore) Update(_ context.Context, a *auction.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.auctions[a.ID]
	if !ok {
		return auction.ErrNotFound
	}
	if current.Version != a.Version {
		return auction.ErrVersionConflict
	}
	a.Version++
	s.auctions[a.ID] = clone(a)
	return nil
}

func (s *memStore) DuePending(_ context.Context, now time.Time) ([]*auction.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*auction.Auction
	for _, a := range s.auctions {
		if a.Status == auction.StatusPending && a.StartTime.Before(now) {
			due = append(due, clone(a))
		}
	}
	return due, nil
}

func (s *memStore) DueActive(_ context.Context, now time.Time) ([]*auction.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*auction.Auction
	for _, a := range s.auctions {
		if a.Status == auction.StatusActive && a.EndTime.Before(now) {
			due = append(due, clone(a))
		}
	}
	return due, nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []event.Event
	failKeys  map[string]bool
}

func (p *recordingPublisher) Publish(_ context.Context, _, key string, ev event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failKeys[key] {
		return assert.AnError
	}
	p.published = append(p.published, ev)
	return nil
}

func (p *recordingPublisher) events() []event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]event.Event(nil), p.published...)
}

func newTestScheduler(store auction.Store, pub event.Publisher, now time.Time) *Scheduler {
	s := New(store, pub, DefaultInterval, zap.NewNop())
	s.now = func() time.Time { return now }
	return s
}

func seedPending(t *testing.T, store *memStore, id string, start, end time.Time) {
	t.Helper()
	a := auction.New(id, "Vintage clock", 100, 10, start, end)
	require.NoError(t, a.Publish())
	require.NoError(t, store.Create(context.Background(), a))
}

func seedActive(t *testing.T, store *memStore, id string, end time.Time, bids int) {
	t.Helper()
	now := time.Now().UTC()
	a := auction.New(id, "Vintage clock", 100, 10, now.Add(-2*time.Hour), end)
	require.NoError(t, a.Publish())
	require.NoError(t, a.Activate(now.Add(-time.Hour)))
	for i := 0; i < bids; i++ {
		require.NoError(t, a.ApplyBid("B1", 100+float64(i+1)*10, now.Add(-time.Minute)))
	}
	require.NoError(t, store.Create(context.Background(), a))
}

func TestTickActivatesDuePendingAuction(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	pub := &recordingPublisher{}
	now := time.Now().UTC()
	seedPending(t, store, "auction-1", now.Add(-time.Second), now.Add(time.Hour))

	newTestScheduler(store, pub, now).Tick(ctx)

	a, err := store.Get(ctx, "auction-1")
	require.NoError(t, err)
	assert.Equal(t, auction.StatusActive, a.Status)

	events := pub.events()
	require.Len(t, events, 1)
	started, ok := events[0].(*event.AuctionStarted)
	require.True(t, ok)
	assert.Equal(t, "auction-1", started.AuctionID)
}

func TestTickLeavesFuturePendingAlone(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	pub := &recordingPublisher{}
	now := time.Now().UTC()
	seedPending(t, store, "auction-1", now.Add(time.Hour), now.Add(2*time.Hour))

	newTestScheduler(store, pub, now).Tick(ctx)

	a, err := store.Get(ctx, "auction-1")
	require.NoError(t, err)
	assert.Equal(t, auction.StatusPending, a.Status)
	assert.Empty(t, pub.events())
}

func TestTickClosesDueActiveAuction(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	pub := &recordingPublisher{}
	now := time.Now().UTC()
	seedActive(t, store, "auction-1", now.Add(-time.Minute), 3)

	newTestScheduler(store, pub, now).Tick(ctx)

	a, err := store.Get(ctx, "auction-1")
	require.NoError(t, err)
	assert.Equal(t, auction.StatusEnded, a.Status)

	events := pub.events()
	require.Len(t, events, 1)
	ended, ok := events[0].(*event.AuctionEnded)
	require.True(t, ok)
	assert.Equal(t, "B1", ended.WinnerID)
	assert.Equal(t, 130.0, ended.FinalPrice)
	assert.Equal(t, 3, ended.TotalBids)
}

func TestTickIsIdempotentAcrossRuns(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	pub := &recordingPublisher{}
	now := time.Now().UTC()
	seedPending(t, store, "auction-1", now.Add(-time.Second), now.Add(time.Hour))

	s := newTestScheduler(store, pub, now)
	s.Tick(ctx)
	s.Tick(ctx)

	assert.Len(t, pub.events(), 1, "already-active auction must not be activated again")
}

func TestTickIsolatesPerAuctionFailures(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	pub := &recordingPublisher{failKeys: map[string]bool{"auction-1": true}}
	now := time.Now().UTC()
	seedPending(t, store, "auction-1", now.Add(-time.Second), now.Add(time.Hour))
	seedPending(t, store, "auction-2", now.Add(-time.Second), now.Add(time.Hour))

	newTestScheduler(store, pub, now).Tick(ctx)

	// Both auctions transition even though publishing for one of them fails.
	for _, id := range []string{"auction-1", "auction-2"} {
		a, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, auction.StatusActive, a.Status)
	}
	events := pub.events()
	require.Len(t, events, 1)
	assert.Equal(t, "auction-2", events[0].(*event.AuctionStarted).AuctionID)
}

func TestTransitionGuardSkipsAlreadyTransitioned(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	pub := &recordingPublisher{}
	now := time.Now().UTC()

	// Seed an auction that looks pending to the sweep query result but has
	// been activated underneath, as if a concurrent writer raced ahead.
	seedPending(t, store, "auction-1", now.Add(-time.Second), now.Add(time.Hour))
	stale, err := store.Get(ctx, "auction-1")
	require.NoError(t, err)

	fresh, err := store.Get(ctx, "auction-1")
	require.NoError(t, err)
	require.NoError(t, fresh.Activate(now))
	require.NoError(t, store.Update(ctx, fresh))

	s := newTestScheduler(store, pub, now)
	err = s.activate(ctx, stale, now)
	require.NoError(t, err)

	// The guard re-check at write time rejects the stale transition: no
	// duplicate AUCTION_STARTED.
	assert.Empty(t, pub.events())
}
