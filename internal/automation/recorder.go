// Package automation records integration failures, decides which ones
// warrant a user notification, and advises callers on retry timing.
package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/napoleonai/inbox/internal/models"
	"github.com/napoleonai/inbox/internal/streams"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Enumerated error types reported by integration connectors
const (
	ErrorTypeAuthenticationFailed    = "authentication_failed"
	ErrorTypeRateLimitExceeded       = "rate_limit_exceeded"
	ErrorTypeIntegrationDisconnected = "integration_disconnected"
	ErrorTypeQuotaExceeded           = "quota_exceeded"
	ErrorTypeSyncFailed              = "sync_failed"
	ErrorTypeWebhookFailed           = "webhook_failed"
	ErrorTypeTimeout                 = "timeout"
)

// criticalErrorTypes always trigger a user notification regardless of
// retry count.
var criticalErrorTypes = map[string]bool{
	ErrorTypeAuthenticationFailed:    true,
	ErrorTypeRateLimitExceeded:       true,
	ErrorTypeIntegrationDisconnected: true,
	ErrorTypeQuotaExceeded:           true,
}

// Backoff cap
const (
	baseRetryDelay = time.Second
	maxRetryDelay  = 32 * time.Second
)

// Backoff returns the advised wait before the caller's next retry:
// capped exponential starting at 1s. The recorder only advises; the
// caller is responsible for actually waiting.
func Backoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	delay := baseRetryDelay << uint(retryCount)
	if delay <= 0 || delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}

// ShouldNotify reports whether a failure warrants a user notification:
// first occurrence, persistent failure (3+ retries), or a critical
// error type. Everything else is logged silently.
func ShouldNotify(retryCount int, errorType string) bool {
	if retryCount == 0 {
		return true
	}
	if retryCount >= 3 {
		return true
	}
	return criticalErrorTypes[errorType]
}

var suggestionTable = map[string][]string{
	ErrorTypeAuthenticationFailed: {
		"Reconnect the integration from Settings > Integrations",
		"Check that your account password has not changed",
		"Revoke and re-grant access if the provider shows a security alert",
	},
	ErrorTypeRateLimitExceeded: {
		"Wait a few minutes before retrying",
		"Reduce the sync frequency for this integration",
		"Check the provider dashboard for your current quota usage",
	},
	ErrorTypeIntegrationDisconnected: {
		"Reconnect the integration from Settings > Integrations",
		"Verify the provider service is not experiencing an outage",
		"Remove and re-add the integration if reconnecting fails",
	},
	ErrorTypeQuotaExceeded: {
		"Upgrade your plan with the provider to raise the quota",
		"Archive old data to free quota",
		"Pause non-essential automations until the quota resets",
	},
	ErrorTypeSyncFailed: {
		"Retry the sync manually",
		"Check your network connection",
		"Contact support if the failure persists",
	},
}

var genericSuggestions = []string{
	"Retry the operation",
	"Check the integration settings",
	"Contact support if the problem persists",
}

// Suggestions maps an error type to an ordered remediation list.
// Unknown types fall back to a generic 3-item list.
func Suggestions(errorType string) []string {
	if s, ok := suggestionTable[errorType]; ok {
		return s
	}
	return genericSuggestions
}

// LogRequest is one failure report from an integration connector.
type LogRequest struct {
	Integration  string                 `json:"integration" binding:"required"`
	ErrorType    string                 `json:"error_type" binding:"required"`
	ErrorMessage string                 `json:"error_message"`
	ErrorDetails string                 `json:"error_details"`
	AutomationID string                 `json:"automation_id"`
	RetryCount   int                    `json:"retry_count"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// Report is the recorder's answer to one failure report.
type Report struct {
	ErrorID          string   `json:"error_id"`
	Logged           bool     `json:"logged"`
	NotificationSent bool     `json:"notification_sent"`
	Suggestions      []string `json:"suggestions"`
	RetryAfter       int64    `json:"retry_after"` // milliseconds
}

// Recorder persists failure reports and raises notifications for the
// ones that warrant user attention.
type Recorder struct {
	db        *gorm.DB
	publisher *streams.Publisher
}

// NewRecorder creates a Recorder. The publisher may be nil; in that
// case notifications are still persisted but no change event is
// published.
func NewRecorder(db *gorm.DB, publisher *streams.Publisher) *Recorder {
	return &Recorder{db: db, publisher: publisher}
}

// LogError records one integration failure and returns the advisory
// report. The record itself is immutable; retry_count monotonicity is
// the caller's responsibility and is recorded as given.
func (r *Recorder) LogError(ctx context.Context, userID uint, req LogRequest) (*Report, error) {
	metadataJSON, err := json.Marshal(req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	record := models.AutomationError{
		ErrorID:      uuid.New().String(),
		UserID:       userID,
		Integration:  req.Integration,
		ErrorType:    req.ErrorType,
		ErrorMessage: req.ErrorMessage,
		ErrorDetails: req.ErrorDetails,
		AutomationID: req.AutomationID,
		RetryCount:   req.RetryCount,
		Metadata:     datatypes.JSON(metadataJSON),
	}

	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to create automation error record: %w", err)
	}

	report := &Report{
		ErrorID:     record.ErrorID,
		Logged:      true,
		Suggestions: Suggestions(req.ErrorType),
		RetryAfter:  Backoff(req.RetryCount).Milliseconds(),
	}

	if ShouldNotify(req.RetryCount, req.ErrorType) {
		if err := r.notify(ctx, userID, req); err != nil {
			// Notification failure must not fail the logging call;
			// the record is already persisted.
			return report, nil
		}
		report.NotificationSent = true
	}

	return report, nil
}

func (r *Recorder) notify(ctx context.Context, userID uint, req LogRequest) error {
	metadata, err := json.Marshal(map[string]interface{}{
		"integration":   req.Integration,
		"error_type":    req.ErrorType,
		"automation_id": req.AutomationID,
		"retry_count":   req.RetryCount,
	})
	if err != nil {
		return err
	}

	notification := models.Notification{
		NotificationID: uuid.New().String(),
		UserID:         userID,
		Type:           models.NotificationTypeSystem,
		Title:          fmt.Sprintf("%s integration issue", req.Integration),
		Message:        req.ErrorMessage,
		Link:           "/settings/integrations",
		Priority:       models.NotificationPriorityHigh,
		Metadata:       datatypes.JSON(metadata),
	}

	if err := r.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	if r.publisher != nil {
		payload, err := json.Marshal(notification)
		if err != nil {
			return err
		}
		if _, err := r.publisher.PublishChange(ctx, streams.ChangeEvent{
			EventType: streams.EventInsert,
			Table:     streams.TableNotifications,
			UserID:    userID,
			New:       payload,
		}); err != nil {
			return fmt.Errorf("failed to publish notification event: %w", err)
		}
	}

	return nil
}
