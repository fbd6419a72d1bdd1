package worker

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	TaskAnnotateMessage = "message:annotate"
	TaskDailyDigest     = "digest:daily"
	TaskSnoozeWake      = "snooze:wake"
)

// Client wraps the Asynq client for task enqueueing. Constructed once
// at startup and injected into the components that enqueue work, so
// ownership and shutdown order stay explicit.
type Client struct {
	asynq *asynq.Client
}

// NewClient creates a task client connected to the given Redis instance.
func NewClient(redisURL string) (*Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, err
	}
	return &Client{asynq: asynq.NewClient(opt)}, nil
}

// Close closes the underlying Asynq client connection gracefully.
func (c *Client) Close() error {
	if c.asynq != nil {
		return c.asynq.Close()
	}
	return nil
}

// EnqueueAnnotateMessage enqueues an annotation task for the given message ID.
// The task will be processed by the worker with a 2-minute timeout, retry up
// to 3 times, and retain for 24 hours after completion.
func (c *Client) EnqueueAnnotateMessage(messageID uint) error {
	payload, err := json.Marshal(map[string]uint{
		"message_id": messageID,
	})
	if err != nil {
		return err
	}

	task := asynq.NewTask(
		TaskAnnotateMessage,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Minute),
		asynq.Retention(24*time.Hour),
	)

	_, err = c.asynq.Enqueue(task)
	return err
}
