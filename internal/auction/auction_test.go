package auction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newActiveAuction(t *testing.T, price float64) *Auction {
	t.Helper()
	now := time.Now().UTC()
	a := New("auction-1", "Vintage clock", price, 10, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, a.Publish())
	require.NoError(t, a.Activate(now))
	return a
}

func TestLifecycleHappyPath(t *testing.T) {
	now := time.Now().UTC()
	a := New("auction-1", "Vintage clock", 100, 10, now, now.Add(time.Hour))
	assert.Equal(t, StatusDraft, a.Status)
	assert.Equal(t, 100.0, a.CurrentPrice)
	assert.Equal(t, a.EndTime, a.OriginalEndTime)

	require.NoError(t, a.Publish())
	assert.Equal(t, StatusPending, a.Status)

	require.NoError(t, a.Activate(now))
	assert.Equal(t, StatusActive, a.Status)

	require.NoError(t, a.Close(now))
	assert.Equal(t, StatusEnded, a.Status)
	assert.True(t, a.Status.Terminal())
}

func TestIllegalTransitionsAreGuarded(t *testing.T) {
	now := time.Now().UTC()

	cases := []struct {
		name string
		run  func(a *Auction) error
		from Status
	}{
		{"activate draft", func(a *Auction) error { return a.Activate(now) }, StatusDraft},
		{"close draft", func(a *Auction) error { return a.Close(now) }, StatusDraft},
		{"publish twice", func(a *Auction) error {
			if err := a.Publish(); err != nil {
				return err
			}
			if err := a.Publish(); err != nil {
				return err
			}
			return nil
		}, StatusPending},
		{"activate twice", func(a *Auction) error {
			_ = a.Publish()
			if err := a.Activate(now); err != nil {
				return err
			}
			return a.Activate(now)
		}, StatusActive},
		{"close twice", func(a *Auction) error {
			_ = a.Publish()
			_ = a.Activate(now)
			if err := a.Close(now); err != nil {
				return err
			}
			return a.Close(now)
		}, StatusEnded},
		{"cancel active", func(a *Auction) error {
			_ = a.Publish()
			_ = a.Activate(now)
			return a.Cancel()
		}, StatusActive},
		{"cancel ended", func(a *Auction) error {
			_ = a.Publish()
			_ = a.Activate(now)
			_ = a.Close(now)
			return a.Cancel()
		}, StatusEnded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := New("auction-1", "Vintage clock", 100, 10, now, now.Add(time.Hour))
			err := tc.run(a)
			var guard *StateGuardError
			require.ErrorAs(t, err, &guard)
			assert.Equal(t, tc.from, guard.From)
		})
	}
}

func TestCancelFromDraftAndPending(t *testing.T) {
	now := time.Now().UTC()

	a := New("auction-1", "Vintage clock", 100, 10, now, now.Add(time.Hour))
	require.NoError(t, a.Cancel())
	assert.Equal(t, StatusCancelled, a.Status)

	b := New("auction-2", "Vintage clock", 100, 10, now, now.Add(time.Hour))
	require.NoError(t, b.Publish())
	require.NoError(t, b.Cancel())
	assert.Equal(t, StatusCancelled, b.Status)
	assert.True(t, b.Status.Terminal())
}

func TestApplyBidUpdatesPriceWinnerAndCounts(t *testing.T) {
	a := newActiveAuction(t, 100)
	now := time.Now().UTC()

	require.NoError(t, a.ApplyBid("B1", 150, now))

	assert.Equal(t, 150.0, a.CurrentPrice)
	assert.Equal(t, 1, a.TotalBids)
	assert.Equal(t, "B1", a.WinnerID)
	assert.Len(t, a.UniqueBidders, 1)
	assert.Contains(t, a.UniqueBidders, "B1")
}

func TestApplyBidSequenceTracksLastBidder(t *testing.T) {
	a := newActiveAuction(t, 100)
	now := time.Now().UTC()

	require.NoError(t, a.ApplyBid("B1", 110, now))
	require.NoError(t, a.ApplyBid("B2", 120, now))
	require.NoError(t, a.ApplyBid("B1", 130, now))

	assert.Equal(t, 130.0, a.CurrentPrice)
	assert.Equal(t, 3, a.TotalBids)
	assert.Equal(t, "B1", a.WinnerID)
	assert.Len(t, a.UniqueBidders, 2)
	assert.Contains(t, a.UniqueBidders, "B1")
	assert.Contains(t, a.UniqueBidders, "B2")
}

func TestApplyBidRequiresActiveStatus(t *testing.T) {
	now := time.Now().UTC()
	a := New("auction-1", "Vintage clock", 100, 10, now, now.Add(time.Hour))

	err := a.ApplyBid("B1", 150, now)
	var guard *StateGuardError
	require.ErrorAs(t, err, &guard)
	assert.Equal(t, 100.0, a.CurrentPrice)
	assert.Equal(t, 0, a.TotalBids)
}

func TestApplyBidAutoExtendsNearDeadline(t *testing.T) {
	now := time.Now().UTC()
	a := New("auction-1", "Vintage clock", 100, 10, now.Add(-time.Hour), now.Add(30*time.Second))
	a.AutoExtendSeconds = 60
	require.NoError(t, a.Publish())
	require.NoError(t, a.Activate(now))
	originalEnd := a.EndTime

	require.NoError(t, a.ApplyBid("B1", 150, now))

	assert.Equal(t, now.Add(60*time.Second), a.EndTime)
	assert.Equal(t, originalEnd, a.OriginalEndTime)
}

func TestApplyBidDoesNotExtendOutsideWindow(t *testing.T) {
	now := time.Now().UTC()
	end := now.Add(time.Hour)
	a := New("auction-1", "Vintage clock", 100, 10, now.Add(-time.Hour), end)
	a.AutoExtendSeconds = 60
	require.NoError(t, a.Publish())
	require.NoError(t, a.Activate(now))

	require.NoError(t, a.ApplyBid("B1", 150, now))

	assert.Equal(t, end, a.EndTime)
}

func TestExpired(t *testing.T) {
	now := time.Now().UTC()
	a := New("auction-1", "Vintage clock", 100, 10, now.Add(-2*time.Hour), now.Add(-time.Second))
	assert.True(t, a.Expired(now))
	a.EndTime = now.Add(time.Second)
	assert.False(t, a.Expired(now))
}

func TestReserveMet(t *testing.T) {
	a := newActiveAuction(t, 100)
	assert.True(t, a.ReserveMet(), "no reserve means always met")

	a.ReservePrice = 200
	assert.False(t, a.ReserveMet())

	require.NoError(t, a.ApplyBid("B1", 250, time.Now().UTC()))
	assert.True(t, a.ReserveMet())
}
