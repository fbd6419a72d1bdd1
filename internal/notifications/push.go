package notifications

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"github.com/napoleonai/inbox/internal/models"
)

// InitFirebase connects to Firebase and returns the FCM client used
// for native push delivery.
func InitFirebase(ctx context.Context, credentialsFile string) (*messaging.Client, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	fcmClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create FCM client: %w", err)
	}
	return fcmClient, nil
}

// PushSender delivers notifications to a device token through FCM,
// throttled by an injected rate limiter shared across the process.
type PushSender struct {
	client  *messaging.Client
	limiter *rate.Limiter
}

// NewPushSender creates a PushSender. The limiter must not be nil.
func NewPushSender(client *messaging.Client, limiter *rate.Limiter) *PushSender {
	return &PushSender{client: client, limiter: limiter}
}

// Send pushes one notification to the given device token. Blocks on
// the rate limiter before sending.
func (s *PushSender) Send(ctx context.Context, token string, n models.Notification) error {
	if token == "" {
		return fmt.Errorf("empty device token")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Message,
		},
		Data: map[string]string{
			"notification_id": n.NotificationID,
			"type":            n.Type,
			"priority":        n.Priority,
			"link":            n.Link,
		},
	}

	if _, err := s.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("FCM send failed: %w", err)
	}
	return nil
}
