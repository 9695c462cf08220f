package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreMarksAndChecks(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("auction-processors", DefaultRetention)

	applied, err := store.HasApplied(ctx, "bids", 0, 42)
	require.NoError(t, err)
	assert.False(t, applied)

	require.NoError(t, store.MarkApplied(ctx, "bids", 0, 42))

	applied, err = store.HasApplied(ctx, "bids", 0, 42)
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestMemoryStoreKeysAreDistinct(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("auction-processors", DefaultRetention)

	require.NoError(t, store.MarkApplied(ctx, "bids", 0, 42))

	cases := []struct {
		name      string
		topic     string
		partition int32
		offset    int64
	}{
		{"different offset", "bids", 0, 43},
		{"different partition", "bids", 1, 42},
		{"different topic", "auctions", 0, 42},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			applied, err := store.HasApplied(ctx, tc.topic, tc.partition, tc.offset)
			require.NoError(t, err)
			assert.False(t, applied)
		})
	}
}

func TestMemoryStoreExpiresRecords(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("auction-processors", time.Millisecond)

	require.NoError(t, store.MarkApplied(ctx, "bids", 0, 1))
	time.Sleep(5 * time.Millisecond)

	applied, err := store.HasApplied(ctx, "bids", 0, 1)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestGroupsDoNotShareRecords(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryStore("auction-processors", DefaultRetention)
	b := NewMemoryStore("leaderboard-service-group", DefaultRetention)

	require.NoError(t, a.MarkApplied(ctx, "bids", 0, 7))

	applied, err := b.HasApplied(ctx, "bids", 0, 7)
	require.NoError(t, err)
	assert.False(t, applied)
}
