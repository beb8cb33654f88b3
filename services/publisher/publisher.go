package publisher

import "context"

// Publisher fans alert events out to downstream consumers
type Publisher interface {
	// Publish appends a message under key to one of the streams
	Publish(ctx context.Context, key string, message []byte) error

	// TrimStreams trims all streams to the configured maximum length
	TrimStreams(ctx context.Context) error

	// Close closes the publisher connection
	Close() error
}
