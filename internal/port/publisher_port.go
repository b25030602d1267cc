package port

import "context"

// Publisher delivers one event envelope to a broker topic. Implementations
// do not retry, the outbox relay owns retry by re-fetching unsent records.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
	Close() error
}
