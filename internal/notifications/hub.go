package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/napoleonai/inbox/internal/models"
	"github.com/napoleonai/inbox/internal/streams"
	"gorm.io/gorm"
)

// Hub owns the per-user ledgers and reacts to the realtime insert
// stream: each new record is prepended to the owner's ledger and the
// delivery decision algorithm runs for both channels independently.
//
// The hub is constructed once at service start and torn down at
// shutdown; there is no module-global state.
type Hub struct {
	db         *gorm.DB
	dispatcher *Dispatcher
	push       *PushSender // nil when push delivery is not configured

	mu      sync.Mutex
	ledgers map[uint]*Ledger
}

// NewHub creates a Hub. push may be nil; the push channel is then
// treated as undeliverable regardless of preferences.
func NewHub(db *gorm.DB, dispatcher *Dispatcher, push *PushSender) *Hub {
	return &Hub{
		db:         db,
		dispatcher: dispatcher,
		push:       push,
		ledgers:    make(map[uint]*Ledger),
	}
}

// Ledger returns the ledger for a user, creating it on first use.
func (h *Hub) Ledger(userID uint) *Ledger {
	h.mu.Lock()
	defer h.mu.Unlock()

	ledger, ok := h.ledgers[userID]
	if !ok {
		ledger = NewLedger(h.db, userID)
		h.ledgers[userID] = ledger
	}
	return ledger
}

// HandleChangeEvent is the stream consumer callback for the
// notifications table. Only INSERT events drive delivery; updates and
// deletes are reconciled on the next ledger fetch.
func (h *Hub) HandleChangeEvent(evt streams.ChangeEvent) error {
	if evt.Table != streams.TableNotifications || evt.EventType != streams.EventInsert {
		return nil
	}

	var n models.Notification
	if err := json.Unmarshal(evt.New, &n); err != nil {
		return fmt.Errorf("failed to unmarshal notification: %w", err)
	}

	h.Ledger(n.UserID).Ingest(n)

	var user models.User
	if err := h.db.First(&user, n.UserID).Error; err != nil {
		return fmt.Errorf("failed to load user %d: %w", n.UserID, err)
	}

	prefs := LoadPreferences(h.db, n.UserID)
	loc := userLocation(user.Timezone)

	if h.dispatcher.ShouldDeliver(prefs, n, ChannelInApp, loc) {
		slog.Info("In-app notification delivered",
			"notification_id", n.NotificationID,
			"user_id", n.UserID,
			"type", n.Type,
		)
	}

	if h.dispatcher.ShouldDeliver(prefs, n, ChannelPush, loc) {
		if h.push == nil || user.PushToken == "" {
			slog.Debug("Push delivery skipped: no sender or device token", "user_id", n.UserID)
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.push.Send(ctx, user.PushToken, n); err != nil {
			// Push failure is logged, not retried; the in-app ledger
			// already carries the notification.
			slog.Warn("Push delivery failed",
				"notification_id", n.NotificationID,
				"user_id", n.UserID,
				"error", err,
			)
		}
	}

	return nil
}

func userLocation(tz string) *time.Location {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
