package notifications

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/napoleonai/inbox/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Notification{},
		&models.NotificationPreferences{},
	))
	return db
}

func seedNotifications(t *testing.T, db *gorm.DB, userID uint, n int) []models.Notification {
	t.Helper()
	created := make([]models.Notification, 0, n)
	for i := 0; i < n; i++ {
		notification := models.Notification{
			NotificationID: uuid.New().String(),
			UserID:         userID,
			Type:           models.NotificationTypeMessage,
			Title:          fmt.Sprintf("notification %d", i),
		}
		// Spread creation times so newest-first ordering is deterministic.
		notification.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
		require.NoError(t, db.Create(&notification).Error)
		created = append(created, notification)
	}
	return created
}

func TestLedgerFetch(t *testing.T) {
	db := openTestDB(t)
	user := models.User{Email: "ledger@example.com"}
	require.NoError(t, db.Create(&user).Error)

	seeded := seedNotifications(t, db, user.ID, 3)

	ledger := NewLedger(db, user.ID)
	items, unread, err := ledger.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, 3, unread)
	assert.Equal(t, seeded[2].NotificationID, items[0].NotificationID, "newest first")
}

func TestLedgerFetchCapsAtLimit(t *testing.T) {
	db := openTestDB(t)
	user := models.User{Email: "cap@example.com"}
	require.NoError(t, db.Create(&user).Error)

	seedNotifications(t, db, user.ID, ledgerLimit+10)

	ledger := NewLedger(db, user.ID)
	items, unread, err := ledger.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, ledgerLimit)
	assert.Equal(t, ledgerLimit+10, unread, "unread counts all records, not just the page")
}

func TestLedgerMarkAsReadIdempotent(t *testing.T) {
	db := openTestDB(t)
	user := models.User{Email: "read@example.com"}
	require.NoError(t, db.Create(&user).Error)

	seeded := seedNotifications(t, db, user.ID, 2)

	ledger := NewLedger(db, user.ID)
	_, _, err := ledger.Fetch(context.Background())
	require.NoError(t, err)

	target := seeded[0].NotificationID
	require.NoError(t, ledger.MarkAsRead(context.Background(), target))
	_, unread := ledger.Snapshot()
	assert.Equal(t, 1, unread)

	// Marking again must not double-decrement.
	require.NoError(t, ledger.MarkAsRead(context.Background(), target))
	_, unread = ledger.Snapshot()
	assert.Equal(t, 1, unread)

	var persisted models.Notification
	require.NoError(t, db.Where("notification_id = ?", target).First(&persisted).Error)
	assert.True(t, persisted.Read)
}

func TestLedgerMarkAsReadOutsideWindow(t *testing.T) {
	db := openTestDB(t)
	user := models.User{Email: "outside@example.com"}
	require.NoError(t, db.Create(&user).Error)

	seeded := seedNotifications(t, db, user.ID, ledgerLimit+5)

	ledger := NewLedger(db, user.ID)
	items, unread, err := ledger.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, ledgerLimit)
	require.Equal(t, ledgerLimit+5, unread)

	// The oldest records fell off the page but still count as unread.
	target := seeded[0].NotificationID
	for _, item := range items {
		require.NotEqual(t, target, item.NotificationID)
	}

	require.NoError(t, ledger.MarkAsRead(context.Background(), target))
	_, unread = ledger.Snapshot()
	assert.Equal(t, ledgerLimit+4, unread)

	var persisted models.Notification
	require.NoError(t, db.Where("notification_id = ?", target).First(&persisted).Error)
	assert.True(t, persisted.Read)

	// Repeating must not double-decrement.
	require.NoError(t, ledger.MarkAsRead(context.Background(), target))
	_, unread = ledger.Snapshot()
	assert.Equal(t, ledgerLimit+4, unread)

	// An unknown id leaves the counter untouched.
	require.NoError(t, ledger.MarkAsRead(context.Background(), "no-such-id"))
	_, unread = ledger.Snapshot()
	assert.Equal(t, ledgerLimit+4, unread)
}

func TestLedgerMarkAllAsRead(t *testing.T) {
	db := openTestDB(t)
	user := models.User{Email: "readall@example.com"}
	require.NoError(t, db.Create(&user).Error)

	seedNotifications(t, db, user.ID, 4)

	ledger := NewLedger(db, user.ID)
	_, _, err := ledger.Fetch(context.Background())
	require.NoError(t, err)

	require.NoError(t, ledger.MarkAllAsRead(context.Background()))
	items, unread := ledger.Snapshot()
	assert.Equal(t, 0, unread)
	for _, item := range items {
		assert.True(t, item.Read)
	}

	var remaining int64
	db.Model(&models.Notification{}).Where("user_id = ? AND read = ?", user.ID, false).Count(&remaining)
	assert.Equal(t, int64(0), remaining)
}

func TestLedgerDelete(t *testing.T) {
	db := openTestDB(t)
	user := models.User{Email: "delete@example.com"}
	require.NoError(t, db.Create(&user).Error)

	seeded := seedNotifications(t, db, user.ID, 2)

	ledger := NewLedger(db, user.ID)
	_, _, err := ledger.Fetch(context.Background())
	require.NoError(t, err)

	t.Run("deleting unread decrements the counter", func(t *testing.T) {
		require.NoError(t, ledger.Delete(context.Background(), seeded[0].NotificationID))
		items, unread := ledger.Snapshot()
		assert.Len(t, items, 1)
		assert.Equal(t, 1, unread)
	})

	t.Run("deleting read leaves the counter alone", func(t *testing.T) {
		require.NoError(t, ledger.MarkAsRead(context.Background(), seeded[1].NotificationID))
		require.NoError(t, ledger.Delete(context.Background(), seeded[1].NotificationID))
		items, unread := ledger.Snapshot()
		assert.Len(t, items, 0)
		assert.Equal(t, 0, unread)
	})
}

func TestLedgerIngest(t *testing.T) {
	db := openTestDB(t)
	user := models.User{Email: "ingest@example.com"}
	require.NoError(t, db.Create(&user).Error)

	ledger := NewLedger(db, user.ID)
	for i := 0; i < ledgerLimit+5; i++ {
		ledger.Ingest(models.Notification{
			NotificationID: fmt.Sprintf("n-%d", i),
			UserID:         user.ID,
		})
	}

	items, unread := ledger.Snapshot()
	assert.Len(t, items, ledgerLimit, "view trimmed to the retention limit")
	assert.Equal(t, ledgerLimit+5, unread)
	assert.Equal(t, fmt.Sprintf("n-%d", ledgerLimit+4), items[0].NotificationID, "newest stays first")
}
