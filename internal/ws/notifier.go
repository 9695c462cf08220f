package ws

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openbid/auction-pipeline/internal/event"
)

// frame is the shape pushed to browsers.
type frame struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Notifier fans consumed pipeline events out to WebSocket clients. Auction
// and bid events go to everyone; achievement unlocks go only to the user who
// earned them.
type Notifier struct {
	manager *Manager
	logger  *zap.Logger
}

// NewNotifier creates a notifier pushing through the given manager.
func NewNotifier(manager *Manager, logger *zap.Logger) *Notifier {
	return &Notifier{manager: manager, logger: logger}
}

// HandleEvent pushes one event to the relevant connections. Delivery is best
// effort: a frame nobody is connected to hear is simply dropped.
func (n *Notifier) HandleEvent(_ context.Context, ev event.Event) error {
	payload, err := n.encode(ev)
	if err != nil {
		return err
	}

	switch e := ev.(type) {
	case *event.AchievementUnlocked:
		n.manager.SendToUser(e.UserID, payload)
		n.logger.Debug("achievement pushed",
			zap.String("user_id", e.UserID),
			zap.String("achievement_id", e.AchievementID))

	default:
		n.manager.Broadcast(payload)
	}
	return nil
}

func (n *Notifier) encode(ev event.Event) ([]byte, error) {
	payload, err := json.Marshal(frame{
		Type:      string(ev.Type()),
		Data:      ev,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s frame: %w", ev.Type(), err)
	}
	return payload, nil
}
