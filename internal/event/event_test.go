package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapAndDecodeBidPlaced(t *testing.T) {
	placed := &BidPlaced{
		BidID:     "bid-1",
		AuctionID: "auction-1",
		BidderID:  "user-1",
		Amount:    150,
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	env, err := Wrap(placed)
	require.NoError(t, err)
	assert.Equal(t, TypeBidPlaced, env.EventType)
	assert.Equal(t, "auction-1", env.PartitionKey)
	assert.False(t, env.ProducedAt.IsZero())

	data, err := env.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	got, ok := decoded.(*BidPlaced)
	require.True(t, ok)
	assert.Equal(t, placed, got)
}

func TestWrapAuctionEndedCarriesOutcome(t *testing.T) {
	ended := &AuctionEnded{
		AuctionID:  "auction-2",
		Title:      "Vintage clock",
		WinnerID:   "user-9",
		FinalPrice: 420,
		TotalBids:  7,
		EndTime:    time.Date(2025, 6, 2, 18, 0, 0, 0, time.UTC),
		Timestamp:  time.Date(2025, 6, 2, 18, 0, 1, 0, time.UTC),
	}

	env, err := Wrap(ended)
	require.NoError(t, err)
	data, err := env.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, ended, decoded)
}

func TestAchievementUnlockedIsUnkeyed(t *testing.T) {
	env, err := Wrap(&AchievementUnlocked{
		UserID:        "user-3",
		AchievementID: "first-bid",
	})
	require.NoError(t, err)
	assert.Empty(t, env.PartitionKey)
}

func TestDecodeRejectsUnknownEventType(t *testing.T) {
	data := []byte(`{"event_type":"SOMETHING_ELSE","payload":{"x":1},"produced_at":"2025-06-01T00:00:00Z"}`)

	_, err := Decode(data)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestDecodeEnvelopeRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"missing event type", `{"payload":{"x":1}}`},
		{"missing payload", `{"event_type":"BID_PLACED"}`},
		{"not json", `nonsense`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(tc.data))
			assert.Error(t, err)
		})
	}
}
