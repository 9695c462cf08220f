package event

import "context"

// Publisher is the producer contract the pipeline components depend on.
// The Kafka implementation lives in internal/kafka; tests substitute fakes.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, ev Event) error
}
