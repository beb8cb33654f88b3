package publisher

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/rand"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher implements Publisher using sharded Redis streams
type RedisPublisher struct {
	client          *redis.Client
	ownsClient      bool
	streamPrefix    string
	streamCount     int
	streamMaxLength int64
}

// NewRedisPublisher creates a new Redis publisher with its own connection
func NewRedisPublisher(addr string, db int, streamPrefix string, streamCount int, streamMaxLength int64) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	p := NewRedisPublisherWithClient(client, streamPrefix, streamCount, streamMaxLength)
	p.ownsClient = true
	return p
}

// NewRedisPublisherWithClient publishes through an existing client, which the
// caller keeps ownership of
func NewRedisPublisherWithClient(client *redis.Client, streamPrefix string, streamCount int, streamMaxLength int64) *RedisPublisher {
	if streamCount <= 0 {
		streamCount = 1
	}

	return &RedisPublisher{
		client:          client,
		streamPrefix:    streamPrefix,
		streamCount:     streamCount,
		streamMaxLength: streamMaxLength,
	}
}

// StreamName returns the name of shard i
func (p *RedisPublisher) StreamName(i int) string {
	return p.streamPrefix + ":" + strconv.Itoa(i)
}

// Publish publishes a message to a Redis stream
// The message is base64 encoded before publishing
func (p *RedisPublisher) Publish(ctx context.Context, key string, message []byte) error {
	encodedMessage := base64.StdEncoding.EncodeToString(message)

	// if streamCount is 4, stream name will be prefix:0 ~ prefix:3
	stream := p.StreamName(rand.Intn(p.streamCount))

	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			key: encodedMessage,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}
	return nil
}

// TrimStreams trims all streams to the configured maximum length
func (p *RedisPublisher) TrimStreams(ctx context.Context) error {
	if p.streamMaxLength <= 0 {
		return nil
	}

	for i := 0; i < p.streamCount; i++ {
		stream := p.StreamName(i)
		if err := p.client.XTrimMaxLen(ctx, stream, p.streamMaxLength).Err(); err != nil {
			return fmt.Errorf("failed to trim %s: %w", stream, err)
		}
	}

	return nil
}

// Close closes the Redis connection if the publisher opened it
func (p *RedisPublisher) Close() error {
	if !p.ownsClient {
		return nil
	}
	return p.client.Close()
}
