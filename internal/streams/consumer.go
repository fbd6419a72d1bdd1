package streams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChangeConsumer consumes row change events from Redis Streams
type ChangeConsumer struct {
	rdb          *redis.Client
	groupName    string
	consumerName string
}

// NewChangeConsumer creates a new ChangeConsumer instance
func NewChangeConsumer(redisURL, consumerName string) (*ChangeConsumer, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	// Read timeout must exceed the XReadGroup Block duration (5s)
	// to avoid spurious i/o timeout errors on idle streams.
	opts.ReadTimeout = 10 * time.Second

	client := redis.NewClient(opts)

	// Create consumer group on the changes stream.
	// Start ID "0" means read from beginning if group is new.
	err = client.XGroupCreateMkStream(context.Background(), StreamChanges, GroupDispatchers, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}
	// Ignore BUSYGROUP error - group already exists

	return &ChangeConsumer{
		rdb:          client,
		groupName:    GroupDispatchers,
		consumerName: consumerName,
	}, nil
}

// ConsumeChanges runs a blocking loop consuming change events from the stream
func (c *ChangeConsumer) ConsumeChanges(ctx context.Context, handler func(ChangeEvent) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.groupName,
			Consumer: c.consumerName,
			Streams:  []string{StreamChanges, ">"},
			Count:    10,
			Block:    5000, // 5 seconds
		}).Result()

		if err == redis.Nil {
			// No messages available, continue loop
			continue
		}

		if err != nil {
			// Blocking reads return a timeout when no messages arrive
			// within the Block duration, which is normal, not an error.
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			slog.Error("Failed to read from stream", "error", err)
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				payloadStr, ok := message.Values["payload"].(string)
				if !ok {
					slog.Error("Invalid message payload", "message_id", message.ID)
					continue
				}

				var evt ChangeEvent
				if err := json.Unmarshal([]byte(payloadStr), &evt); err != nil {
					slog.Error("Failed to unmarshal change event", "error", err, "message_id", message.ID)
					continue
				}

				if err := handler(evt); err != nil {
					slog.Error("Handler failed", "error", err, "table", evt.Table, "event_type", evt.EventType)
					// Message stays in PEL for retry, don't ACK
					continue
				}

				if err := c.rdb.XAck(ctx, StreamChanges, c.groupName, message.ID).Err(); err != nil {
					slog.Error("Failed to ACK message", "error", err, "message_id", message.ID)
				}
			}
		}
	}
}

// Close closes the Redis client connection
func (c *ChangeConsumer) Close() error {
	return c.rdb.Close()
}

// StartChangeConsumer is a convenience function that starts the change
// consumer in a background goroutine and returns a stop function
func StartChangeConsumer(redisURL, consumerName string, handler func(ChangeEvent) error) (stop func(), err error) {
	consumer, err := NewChangeConsumer(redisURL, consumerName)
	if err != nil {
		return nil, fmt.Errorf("failed to create change consumer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		if err := consumer.ConsumeChanges(ctx, handler); err != nil {
			if err != context.Canceled {
				slog.Error("Change consumer stopped with error", "error", err)
			}
		}
	}()

	slog.Info("Change consumer started", "consumer", consumerName)

	return func() {
		cancel()
		consumer.Close()
	}, nil
}
