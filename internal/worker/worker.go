package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/napoleonai/inbox/internal/annotator"
	"github.com/napoleonai/inbox/internal/automation"
	"github.com/napoleonai/inbox/internal/config"
	"github.com/napoleonai/inbox/internal/models"
	"github.com/napoleonai/inbox/internal/notifications"
	"github.com/napoleonai/inbox/internal/streams"
	"gorm.io/gorm"
)

// asynqLoggerAdapter wraps slog.Logger to implement asynq.Logger interface
type asynqLoggerAdapter struct {
	logger *slog.Logger
}

// Implement asynq.Logger interface methods
func (a *asynqLoggerAdapter) Debug(args ...interface{}) {
	a.logger.Debug(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Info(args ...interface{}) {
	a.logger.Info(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Warn(args ...interface{}) {
	a.logger.Warn(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Error(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Fatal(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
	panic(fmt.Sprint(args...))
}

// Run starts the Asynq worker server and blocks until shutdown signal.
// Use this for standalone worker mode.
func Run(cfg *config.Config, db *gorm.DB, annotatorClient *annotator.Client, recorder *automation.Recorder, publisher *streams.Publisher) error {
	srv, mux, err := newServer(cfg, db, annotatorClient, recorder, publisher)
	if err != nil {
		return err
	}

	// Note: Scheduler is started separately in main.go worker mode
	// and deferred there for shutdown coordination.
	// Run blocks and handles its own signal interception
	return srv.Run(mux)
}

// Start starts the Asynq worker in non-blocking mode and returns a stop function.
// Use this for embedded mode so the caller can coordinate shutdown.
func Start(cfg *config.Config, db *gorm.DB, annotatorClient *annotator.Client, recorder *automation.Recorder, publisher *streams.Publisher) (stop func(), err error) {
	srv, mux, err := newServer(cfg, db, annotatorClient, recorder, publisher)
	if err != nil {
		return nil, err
	}
	if err := srv.Start(mux); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}
	return func() { srv.Shutdown() }, nil
}

func newServer(cfg *config.Config, db *gorm.DB, annotatorClient *annotator.Client, recorder *automation.Recorder, publisher *streams.Publisher) (*asynq.Server, *asynq.ServeMux, error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := NewLogger(cfg.LogLevel, cfg.LogFormat)

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency:     5,
			ShutdownTimeout: 30 * time.Second,
			RetryDelayFunc:  retryDelay,
			ErrorHandler:    asynq.ErrorHandlerFunc(makeErrorHandler(logger)),
			Logger:          &asynqLoggerAdapter{logger: logger},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskAnnotateMessage, handleAnnotateMessage(logger, db, annotatorClient, recorder, publisher))
	mux.HandleFunc(TaskDailyDigest, handleDailyDigest(logger, db, publisher))
	mux.HandleFunc(TaskSnoozeWake, handleSnoozeWake(logger, db, publisher))

	logger.Info("Worker starting", "concurrency", 5, "redis", cfg.RedisURL)
	return srv, mux, nil
}

// retryDelay applies exponential backoff capped at 32 seconds, the
// same policy the error recorder advertises to integration callers.
func retryDelay(n int, err error, task *asynq.Task) time.Duration {
	return automation.Backoff(n)
}

// handleAnnotateMessage processes annotation tasks by calling the annotator
// client and updating the message with the generated summary and priority.
func handleAnnotateMessage(logger *slog.Logger, db *gorm.DB, annotatorClient *annotator.Client, recorder *automation.Recorder, publisher *streams.Publisher) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		// Unmarshal the payload
		var payload struct {
			MessageID uint `json:"message_id"`
		}
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			// Invalid payload - don't retry
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}

		// Fetch message from database
		var message models.Message
		if err := db.WithContext(ctx).First(&message, payload.MessageID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Record not found - don't retry
				logger.Error("Message not found", "message_id", payload.MessageID)
				return fmt.Errorf("message not found: %w", asynq.SkipRetry)
			}
			// Database error - retryable
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		if !message.NeedsAISummary() {
			logger.Debug("Message already annotated, skipping", "message_id", payload.MessageID)
			return nil
		}

		logger.Info(
			"Processing message:annotate task",
			"message_id", payload.MessageID,
			"user_id", message.UserID,
		)

		annotation, err := annotatorClient.Annotate(ctx, annotator.AnnotateRequest{
			Subject:     message.Subject,
			Content:     message.Content,
			SenderName:  message.SenderName,
			SenderEmail: message.SenderEmail,
			IsVip:       message.IsVip,
		})
		if err != nil {
			retried, _ := asynq.GetRetryCount(ctx)
			if recorder != nil {
				if _, logErr := recorder.LogError(ctx, message.UserID, automation.LogRequest{
					Integration:  "annotator",
					ErrorType:    automation.ErrorTypeWebhookFailed,
					ErrorMessage: err.Error(),
					AutomationID: fmt.Sprintf("annotate-%d", payload.MessageID),
					RetryCount:   retried,
				}); logErr != nil {
					logger.Warn("Failed to record annotation failure", "error", logErr.Error())
				}
			}
			logger.Error(
				"Annotation failed",
				"message_id", payload.MessageID,
				"error", err.Error(),
			)
			return fmt.Errorf("annotation failed: %w", err)
		}

		// Update message with summary, score and the derived priority tier
		if err := db.WithContext(ctx).Model(&message).Updates(map[string]interface{}{
			"ai_summary":     annotation.Summary,
			"priority_score": annotation.PriorityScore,
			"priority":       models.TierForScore(annotation.PriorityScore),
		}).Error; err != nil {
			return fmt.Errorf("failed to update message: %w", err)
		}

		publishMessageUpdate(ctx, logger, db, publisher, message.ID, message.UserID)

		logger.Info(
			"Message annotation completed",
			"message_id", payload.MessageID,
			"priority_score", annotation.PriorityScore,
		)

		return nil
	}
}

// handleDailyDigest builds one digest notification per user summarizing
// unread high-priority messages accumulated since the last digest.
func handleDailyDigest(logger *slog.Logger, db *gorm.DB, publisher *streams.Publisher) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		var users []models.User
		if err := db.WithContext(ctx).Find(&users).Error; err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}

		logger.Info("Processing digest:daily task", "users", len(users))

		now := time.Now()
		var failed int
		for i := range users {
			user := &users[i]

			prefs := notifications.LoadPreferences(db, user.ID)
			if !prefs.Digest {
				continue
			}

			since := now.Add(-24 * time.Hour)
			if user.LastDigestAt != nil {
				since = *user.LastDigestAt
			}

			var unread, highPriority int64
			countQuery := db.WithContext(ctx).Model(&models.Message{}).
				Where("user_id = ? AND is_read = ? AND is_archived = ? AND created_at >= ?", user.ID, false, false, since)
			if err := countQuery.Count(&unread).Error; err != nil {
				logger.Warn("Digest count failed", "user_id", user.ID, "error", err.Error())
				failed++
				continue
			}
			if err := countQuery.Where("priority = ?", models.PriorityHigh).Count(&highPriority).Error; err != nil {
				logger.Warn("Digest count failed", "user_id", user.ID, "error", err.Error())
				failed++
				continue
			}

			if unread == 0 {
				continue
			}

			notification := models.Notification{
				NotificationID: uuid.New().String(),
				UserID:         user.ID,
				Type:           models.NotificationTypeDigest,
				Title:          "Your daily digest",
				Message:        fmt.Sprintf("%d unread messages, %d high priority", unread, highPriority),
				Link:           "/dashboard",
				Priority:       models.NotificationPriorityLow,
			}
			if err := db.WithContext(ctx).Create(&notification).Error; err != nil {
				logger.Warn("Failed to create digest notification", "user_id", user.ID, "error", err.Error())
				failed++
				continue
			}
			db.WithContext(ctx).Model(user).Update("last_digest_at", now)

			publishNotificationInsert(ctx, logger, publisher, &notification)
		}

		if failed > 0 {
			return fmt.Errorf("digest failed for %d users", failed)
		}
		return nil
	}
}

// handleSnoozeWake returns snoozed messages whose snooze window has
// elapsed back to the active list.
func handleSnoozeWake(logger *slog.Logger, db *gorm.DB, publisher *streams.Publisher) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		now := time.Now()

		var due []models.Message
		if err := db.WithContext(ctx).
			Where("is_snoozed = ? AND snoozed_until IS NOT NULL AND snoozed_until <= ?", true, now).
			Find(&due).Error; err != nil {
			return fmt.Errorf("failed to list due snoozes: %w", err)
		}
		if len(due) == 0 {
			return nil
		}

		logger.Info("Processing snooze:wake task", "due", len(due))

		for i := range due {
			message := &due[i]
			if err := db.WithContext(ctx).Model(message).Updates(map[string]interface{}{
				"is_snoozed":    false,
				"snoozed_until": nil,
			}).Error; err != nil {
				return fmt.Errorf("failed to wake message %d: %w", message.ID, err)
			}
			publishMessageUpdate(ctx, logger, db, publisher, message.ID, message.UserID)
		}

		return nil
	}
}

// publishMessageUpdate re-reads the message and publishes its post-image
// as an UPDATE change event. Publish failures are logged, not propagated:
// the database write already succeeded and consumers reconcile on fetch.
func publishMessageUpdate(ctx context.Context, logger *slog.Logger, db *gorm.DB, publisher *streams.Publisher, id uint, userID uint) {
	if publisher == nil {
		return
	}
	var message models.Message
	if err := db.WithContext(ctx).First(&message, id).Error; err != nil {
		logger.Warn("Failed to load message for change event", "message_id", id, "error", err.Error())
		return
	}
	post, err := json.Marshal(&message)
	if err != nil {
		logger.Warn("Failed to marshal message for change event", "message_id", id, "error", err.Error())
		return
	}
	if _, err := publisher.PublishChange(ctx, streams.ChangeEvent{
		EventType: streams.EventUpdate,
		Table:     streams.TableMessages,
		UserID:    userID,
		New:       post,
	}); err != nil {
		logger.Warn("Failed to publish message change event", "message_id", id, "error", err.Error())
	}
}

func publishNotificationInsert(ctx context.Context, logger *slog.Logger, publisher *streams.Publisher, notification *models.Notification) {
	if publisher == nil {
		return
	}
	post, err := json.Marshal(notification)
	if err != nil {
		logger.Warn("Failed to marshal notification for change event", "error", err.Error())
		return
	}
	if _, err := publisher.PublishChange(ctx, streams.ChangeEvent{
		EventType: streams.EventInsert,
		Table:     streams.TableNotifications,
		UserID:    notification.UserID,
		New:       post,
	}); err != nil {
		logger.Warn("Failed to publish notification change event", "error", err.Error())
	}
}

// makeErrorHandler creates an error handler function with logger closure.
func makeErrorHandler(logger *slog.Logger) func(context.Context, *asynq.Task, error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)

		logger.Error(
			"Task execution failed",
			"task_type", task.Type(),
			"error", err.Error(),
			"retry_count", retried,
			"max_retry", maxRetry,
		)

		// Check if this is the final failure (task will move to dead letter queue)
		if retried >= maxRetry {
			logger.Error(
				"Task moved to dead letter queue (all retries exhausted)",
				"task_type", task.Type(),
				"payload", string(task.Payload()),
			)
		}
	}
}
