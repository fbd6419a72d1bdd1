package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/napoleonai/inbox/internal/models"
	"gorm.io/gorm"
)

// ledgerLimit is how many recent notifications a session keeps in view.
const ledgerLimit = 50

// Ledger is one user's in-memory notification view: the most recent
// records newest-first plus the unread counter. Persistence failures
// on mutations are logged and do not roll back the in-memory state;
// eventual consistency with the store is acceptable here.
type Ledger struct {
	mu     sync.Mutex
	db     *gorm.DB
	userID uint

	items  []models.Notification
	unread int
}

// NewLedger creates an empty ledger for a user.
func NewLedger(db *gorm.DB, userID uint) *Ledger {
	return &Ledger{db: db, userID: userID}
}

// Fetch loads the most recent notifications, newest first, and resets
// the unread counter from storage.
func (l *Ledger) Fetch(ctx context.Context) ([]models.Notification, int, error) {
	var items []models.Notification
	if err := l.db.WithContext(ctx).
		Where("user_id = ?", l.userID).
		Order("created_at DESC").
		Limit(ledgerLimit).
		Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch notifications: %w", err)
	}

	var unread int64
	if err := l.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", l.userID, false).
		Count(&unread).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count unread: %w", err)
	}

	l.mu.Lock()
	l.items = items
	l.unread = int(unread)
	l.mu.Unlock()

	return items, int(unread), nil
}

// MarkAsRead marks one notification read. Idempotent: marking an
// already-read notification is a no-op success and does not
// double-decrement the unread counter. The counter covers all unread
// rows, not just the in-memory window, so a row outside the window
// decrements it based on its stored state.
func (l *Ledger) MarkAsRead(ctx context.Context, notificationID string) error {
	l.mu.Lock()
	inWindow := false
	for i := range l.items {
		if l.items[i].NotificationID == notificationID {
			inWindow = true
			if l.items[i].Read {
				l.mu.Unlock()
				return nil
			}
			l.items[i].Read = true
			if l.unread > 0 {
				l.unread--
			}
			break
		}
	}
	l.mu.Unlock()

	if !inWindow {
		var prior models.Notification
		err := l.db.WithContext(ctx).
			Where("notification_id = ? AND user_id = ?", notificationID, l.userID).
			First(&prior).Error
		if err != nil || prior.Read {
			return nil
		}
		l.mu.Lock()
		if l.unread > 0 {
			l.unread--
		}
		l.mu.Unlock()
	}

	err := l.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("notification_id = ? AND user_id = ?", notificationID, l.userID).
		Update("read", true).Error
	if err != nil {
		// In-memory state is not rolled back; the next Fetch reconciles.
		slog.Warn("Failed to persist markAsRead", "notification_id", notificationID, "error", err)
	}
	return nil
}

// MarkAllAsRead clears all outstanding unread counts. Atomic from the
// caller's perspective; storage catches up eventually.
func (l *Ledger) MarkAllAsRead(ctx context.Context) error {
	l.mu.Lock()
	for i := range l.items {
		l.items[i].Read = true
	}
	l.unread = 0
	l.mu.Unlock()

	err := l.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", l.userID, false).
		Update("read", true).Error
	if err != nil {
		slog.Warn("Failed to persist markAllAsRead", "user_id", l.userID, "error", err)
	}
	return nil
}

// Delete removes a notification from the ledger, decrementing the
// unread counter only if the deleted notification was unread.
func (l *Ledger) Delete(ctx context.Context, notificationID string) error {
	l.mu.Lock()
	for i := range l.items {
		if l.items[i].NotificationID == notificationID {
			if !l.items[i].Read && l.unread > 0 {
				l.unread--
			}
			l.items = append(l.items[:i], l.items[i+1:]...)
			break
		}
	}
	l.mu.Unlock()

	err := l.db.WithContext(ctx).
		Where("notification_id = ? AND user_id = ?", notificationID, l.userID).
		Delete(&models.Notification{}).Error
	if err != nil {
		slog.Warn("Failed to persist delete", "notification_id", notificationID, "error", err)
	}
	return nil
}

// Ingest prepends a freshly inserted notification and increments the
// unread counter by exactly one. Called from the realtime stream.
func (l *Ledger) Ingest(n models.Notification) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = append([]models.Notification{n}, l.items...)
	if len(l.items) > ledgerLimit {
		l.items = l.items[:ledgerLimit]
	}
	l.unread++
}

// Snapshot returns a copy of the current view.
func (l *Ledger) Snapshot() ([]models.Notification, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	items := make([]models.Notification, len(l.items))
	copy(items, l.items)
	return items, l.unread
}
