package interfaces

import "context"

// EventPublisher delivers domain events after the write that produced them
// has committed. key groups related events (the tenant ID) on one partition.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, event any) error
}
