package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"github.com/napoleonai/inbox/internal/annotator"
	"github.com/napoleonai/inbox/internal/models"
	"github.com/napoleonai/inbox/internal/notifications"
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
		&models.Message{},
		&models.Notification{},
		&models.NotificationPreferences{},
		&models.AutomationError{},
	))
	return db
}

func annotateTask(t *testing.T, messageID uint) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(map[string]uint{"message_id": messageID})
	require.NoError(t, err)
	return asynq.NewTask(TaskAnnotateMessage, payload)
}

func TestHandleAnnotateMessage(t *testing.T) {
	db := openTestDB(t)
	user := models.User{Email: "annotate@example.com"}
	require.NoError(t, db.Create(&user).Error)

	log := NewLogger("error", "text")
	stub := annotator.NewClient("", "", true)
	handler := handleAnnotateMessage(log, db, stub, nil, nil)
	ctx := context.Background()

	t.Run("annotates and derives the priority tier", func(t *testing.T) {
		message := models.Message{
			MessageID: "annotate-1",
			UserID:    user.ID,
			Subject:   "URGENT: contract signature needed",
			Content:   "The contract is waiting on your signature.",
			IsVip:     true,
		}
		require.NoError(t, db.Create(&message).Error)

		require.NoError(t, handler(ctx, annotateTask(t, message.ID)))

		var got models.Message
		require.NoError(t, db.First(&got, message.ID).Error)
		require.NotNil(t, got.AISummary)
		assert.NotEmpty(t, *got.AISummary)
		assert.Greater(t, got.PriorityScore, models.HighPriorityThreshold)
		assert.Equal(t, models.PriorityHigh, got.Priority)
	})

	t.Run("already annotated message is skipped", func(t *testing.T) {
		summary := "done already"
		message := models.Message{
			MessageID: "annotate-2",
			UserID:    user.ID,
			AISummary: &summary,
		}
		require.NoError(t, db.Create(&message).Error)

		require.NoError(t, handler(ctx, annotateTask(t, message.ID)))

		var got models.Message
		require.NoError(t, db.First(&got, message.ID).Error)
		assert.Equal(t, summary, *got.AISummary)
	})

	t.Run("missing message skips retry", func(t *testing.T) {
		err := handler(ctx, annotateTask(t, 99999))
		require.Error(t, err)
		assert.True(t, errors.Is(err, asynq.SkipRetry))
	})

	t.Run("invalid payload skips retry", func(t *testing.T) {
		err := handler(ctx, asynq.NewTask(TaskAnnotateMessage, []byte("{broken")))
		require.Error(t, err)
		assert.True(t, errors.Is(err, asynq.SkipRetry))
	})
}

func TestHandleSnoozeWake(t *testing.T) {
	db := openTestDB(t)
	user := models.User{Email: "wake@example.com"}
	require.NoError(t, db.Create(&user).Error)

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	due := models.Message{MessageID: "due", UserID: user.ID, IsSnoozed: true, SnoozedUntil: &past}
	notDue := models.Message{MessageID: "not-due", UserID: user.ID, IsSnoozed: true, SnoozedUntil: &future}
	require.NoError(t, db.Create(&due).Error)
	require.NoError(t, db.Create(&notDue).Error)

	log := NewLogger("error", "text")
	handler := handleSnoozeWake(log, db, nil)
	require.NoError(t, handler(context.Background(), asynq.NewTask(TaskSnoozeWake, nil)))

	var woken models.Message
	require.NoError(t, db.First(&woken, due.ID).Error)
	assert.False(t, woken.IsSnoozed)
	assert.Nil(t, woken.SnoozedUntil)

	var still models.Message
	require.NoError(t, db.First(&still, notDue.ID).Error)
	assert.True(t, still.IsSnoozed)
}

func TestHandleDailyDigest(t *testing.T) {
	db := openTestDB(t)
	log := NewLogger("error", "text")

	active := models.User{Email: "digest@example.com"}
	quiet := models.User{Email: "optout@example.com"}
	empty := models.User{Email: "empty@example.com"}
	require.NoError(t, db.Create(&active).Error)
	require.NoError(t, db.Create(&quiet).Error)
	require.NoError(t, db.Create(&empty).Error)

	optOut := notifications.DefaultPreferences()
	optOut.Digest = false
	require.NoError(t, notifications.SavePreferences(db, quiet.ID, optOut))

	// Unread and high-priority counts must differ so a regression that
	// conflates the two queries cannot slip through.
	priorities := []string{models.PriorityHigh, models.PriorityMedium, models.PriorityLow}
	for i, priority := range priorities {
		require.NoError(t, db.Create(&models.Message{
			MessageID: uniqueID("m", uint(i)),
			UserID:    active.ID,
			Priority:  priority,
		}).Error)
	}
	require.NoError(t, db.Create(&models.Message{
		MessageID: uniqueID("q", 0),
		UserID:    quiet.ID,
		Priority:  models.PriorityHigh,
	}).Error)

	handler := handleDailyDigest(log, db, nil)
	require.NoError(t, handler(context.Background(), asynq.NewTask(TaskDailyDigest, nil)))

	var digests []models.Notification
	require.NoError(t, db.Where("type = ?", models.NotificationTypeDigest).Find(&digests).Error)
	require.Len(t, digests, 1, "only the opted-in user with unread messages gets a digest")
	assert.Equal(t, active.ID, digests[0].UserID)
	assert.Contains(t, digests[0].Message, "3 unread messages")
	assert.Contains(t, digests[0].Message, "1 high priority")

	var refreshed models.User
	require.NoError(t, db.First(&refreshed, active.ID).Error)
	assert.NotNil(t, refreshed.LastDigestAt)
}

func uniqueID(prefix string, n uint) string {
	return prefix + "-" + time.Now().Format("150405.000000000") + "-" + string(rune('a'+n%26))
}
