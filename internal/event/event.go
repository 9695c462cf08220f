package event

import (
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Topic names. Bid and auction events are keyed by auction ID so that all
// events for one auction land on the same partition and arrive in order.
const (
	TopicBids         = "bids"
	TopicAuctions     = "auctions"
	TopicAchievements = "achievements"
)

// Consumer group names. Each downstream service consumes through its own
// group and therefore receives its own full copy of the stream.
const (
	GroupAuctionProcessors = "auction-processors"
	GroupLeaderboard       = "leaderboard-service-group"
	GroupNotifications     = "notification-service-group"
)

// Type identifies the kind of domain event carried in an envelope.
type Type string

const (
	TypeBidPlaced           Type = "BID_PLACED"
	TypeAuctionStarted      Type = "AUCTION_STARTED"
	TypeAuctionEnded        Type = "AUCTION_ENDED"
	TypeAchievementUnlocked Type = "ACHIEVEMENT_UNLOCKED"
)

// ErrUnknownType is returned when an envelope names an event type outside
// the closed set above. Such messages are never dispatched to handlers.
var ErrUnknownType = errors.New("unknown event type")

// Event is a decoded domain event payload.
type Event interface {
	Type() Type
	// Key returns the partition key. Empty means the event is unkeyed.
	Key() string
}

// BidPlaced is published once per accepted bid placement, keyed by auction.
type BidPlaced struct {
	BidID     string    `json:"bid_id"`
	AuctionID string    `json:"auction_id"`
	BidderID  string    `json:"bidder_id"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

func (*BidPlaced) Type() Type    { return TypeBidPlaced }
func (e *BidPlaced) Key() string { return e.AuctionID }

// AuctionStarted is emitted by the scheduler when a pending auction goes live.
type AuctionStarted struct {
	AuctionID string    `json:"auction_id"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Timestamp time.Time `json:"timestamp"`
}

func (*AuctionStarted) Type() Type    { return TypeAuctionStarted }
func (e *AuctionStarted) Key() string { return e.AuctionID }

// AuctionEnded carries the final outcome of a closed auction. WinnerID is
// empty when the auction received no bids.
type AuctionEnded struct {
	AuctionID  string    `json:"auction_id"`
	Title      string    `json:"title"`
	WinnerID   string    `json:"winner_id,omitempty"`
	FinalPrice float64   `json:"final_price"`
	TotalBids  int       `json:"total_bids"`
	EndTime    time.Time `json:"end_time"`
	Timestamp  time.Time `json:"timestamp"`
}

func (*AuctionEnded) Type() Type    { return TypeAuctionEnded }
func (e *AuctionEnded) Key() string { return e.AuctionID }

// AchievementUnlocked is emitted by the stats projection the first time a
// user crosses a rule threshold. The topic is unkeyed.
type AchievementUnlocked struct {
	UserID                 string    `json:"user_id"`
	AchievementID          string    `json:"achievement_id"`
	AchievementName        string    `json:"achievement_name"`
	AchievementDescription string    `json:"achievement_description"`
	AchievementIcon        string    `json:"achievement_icon"`
	AchievementPoints      int       `json:"achievement_points"`
	Timestamp              time.Time `json:"timestamp"`
}

func (*AchievementUnlocked) Type() Type  { return TypeAchievementUnlocked }
func (*AchievementUnlocked) Key() string { return "" }

// Envelope is the wire shape of every message on every topic.
type Envelope struct {
	EventType    Type                `json:"event_type"`
	PartitionKey string              `json:"partition_key,omitempty"`
	Payload      jsoniter.RawMessage `json:"payload"`
	ProducedAt   time.Time           `json:"produced_at"`
}

// Wrap builds an envelope around a domain event.
func Wrap(ev Event) (*Envelope, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", ev.Type(), err)
	}
	return &Envelope{
		EventType:    ev.Type(),
		PartitionKey: ev.Key(),
		Payload:      payload,
		ProducedAt:   time.Now().UTC(),
	}, nil
}

// Encode serializes the envelope for publishing.
func (e *Envelope) Encode() ([]byte, error) {
	if e.EventType == "" {
		return nil, errors.New("event_type is required")
	}
	if len(e.Payload) == 0 {
		return nil, errors.New("payload is required")
	}
	return json.Marshal(e)
}

// DecodeEnvelope parses raw message bytes into an envelope. The payload is
// left opaque; call Decode to get the typed event.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.EventType == "" {
		return nil, errors.New("invalid envelope: event_type is required")
	}
	if len(env.Payload) == 0 {
		return nil, errors.New("invalid envelope: payload is required")
	}
	return &env, nil
}

// Decode turns the envelope payload into one of the closed set of event
// structs. Unknown event types are rejected before dispatch.
func (e *Envelope) Decode() (Event, error) {
	var ev Event
	switch e.EventType {
	case TypeBidPlaced:
		ev = &BidPlaced{}
	case TypeAuctionStarted:
		ev = &AuctionStarted{}
	case TypeAuctionEnded:
		ev = &AuctionEnded{}
	case TypeAchievementUnlocked:
		ev = &AchievementUnlocked{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, e.EventType)
	}
	if err := json.Unmarshal(e.Payload, ev); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", e.EventType, err)
	}
	return ev, nil
}

// Decode is a convenience that parses raw bytes straight to a typed event.
func Decode(data []byte) (Event, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	return env.Decode()
}
