// Package dedup records which (topic, partition, offset) triples a consumer
// group has already applied. Checking the record before a side effect and
// writing it after the side effect commits is what turns the broker's
// at-least-once delivery into effectively-once state mutation.
package dedup

import (
	"context"
	"fmt"
	"time"
)

// DefaultRetention is how long a processed-message record is kept. It is a
// sliding correctness window, not permanent history: redeliveries older than
// this no longer occur in practice.
const DefaultRetention = 7 * 24 * time.Hour

// Store is the dedup ledger shared by all consumer runtimes.
type Store interface {
	HasApplied(ctx context.Context, topic string, partition int32, offset int64) (bool, error)
	MarkApplied(ctx context.Context, topic string, partition int32, offset int64) error
}

// key builds the ledger key. The group name is part of the key because every
// consumer group applies its own copy of the stream.
func key(group, topic string, partition int32, offset int64) string {
	return fmt.Sprintf("processed:%s:%s:%d:%d", group, topic, partition, offset)
}
