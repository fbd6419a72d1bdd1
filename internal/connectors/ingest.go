package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/napoleonai/inbox/internal/automation"
	"github.com/napoleonai/inbox/internal/models"
	"github.com/napoleonai/inbox/internal/streams"
	"github.com/napoleonai/inbox/internal/worker"
	"gorm.io/gorm"
)

const previewRunes = 120

// InboundMessage is one raw message handed over by a connector before
// normalization. Timestamp may be zero; ingestion substitutes the
// arrival time.
type InboundMessage struct {
	ExternalID   string    `json:"external_id"`
	Source       string    `json:"source"`
	SenderName   string    `json:"sender_name"`
	SenderEmail  string    `json:"sender_email"`
	SenderAvatar string    `json:"sender_avatar"`
	Subject      string    `json:"subject"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
}

// Ingestor normalizes inbound connector messages into stored messages,
// flags VIP senders, queues annotation, and raises arrival notifications.
type Ingestor struct {
	db        *gorm.DB
	tasks     *worker.Client
	publisher *streams.Publisher
	recorder  *automation.Recorder
	logger    *slog.Logger
}

// NewIngestor creates an Ingestor. tasks, publisher and recorder may be
// nil; in that case annotation queueing, change events and failure
// reporting are skipped.
func NewIngestor(db *gorm.DB, tasks *worker.Client, publisher *streams.Publisher, recorder *automation.Recorder, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{db: db, tasks: tasks, publisher: publisher, recorder: recorder, logger: logger}
}

// Ingest stores one inbound message for the given user. Re-delivery of
// an already-stored external ID is a no-op returning the stored record.
// Every delivery leaves a ConnectorRun row; failures are additionally
// reported to the automation error recorder so the user is notified per
// its rules.
func (in *Ingestor) Ingest(ctx context.Context, userID uint, raw InboundMessage) (*models.Message, error) {
	if raw.ExternalID == "" {
		return nil, fmt.Errorf("inbound message missing external_id")
	}

	message, err := in.ingest(ctx, userID, raw)
	if err != nil {
		in.recordRun(ctx, userID, raw, RunStatusFailed, err)
		in.reportFailure(ctx, userID, raw, err)
		return nil, err
	}
	in.recordRun(ctx, userID, raw, RunStatusCompleted, nil)
	return message, nil
}

func (in *Ingestor) ingest(ctx context.Context, userID uint, raw InboundMessage) (*models.Message, error) {
	// Idempotent re-delivery: connectors may replay on reconnect
	var existing models.Message
	err := in.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", raw.ExternalID, userID).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("failed to check for existing message: %w", err)
	}

	isVip := in.isVipSender(ctx, userID, raw.SenderEmail)

	message := models.Message{
		MessageID:    raw.ExternalID,
		UserID:       userID,
		SenderName:   raw.SenderName,
		SenderEmail:  strings.ToLower(strings.TrimSpace(raw.SenderEmail)),
		SenderAvatar: raw.SenderAvatar,
		Subject:      raw.Subject,
		Content:      raw.Content,
		Preview:      makePreview(raw.Content),
		IsVip:        isVip,
		Source:       raw.Source,
	}
	if err := in.db.WithContext(ctx).Create(&message).Error; err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	// Queue annotation; a lost enqueue is recoverable (the message just
	// stays unsummarized), so it never fails the ingest.
	if in.tasks != nil && message.NeedsAISummary() {
		if err := in.tasks.EnqueueAnnotateMessage(message.ID); err != nil {
			in.logger.Warn("Failed to enqueue annotation task",
				"message_id", message.MessageID, "error", err.Error())
		}
	}

	in.publishChange(ctx, streams.TableMessages, userID, &message)

	if err := in.notifyArrival(ctx, userID, &message); err != nil {
		in.logger.Warn("Failed to create arrival notification",
			"message_id", message.MessageID, "error", err.Error())
	}

	return &message, nil
}

// recordRun persists the delivery outcome. A failed write is logged,
// not propagated: run history is bookkeeping, not the ingest result.
func (in *Ingestor) recordRun(ctx context.Context, userID uint, raw InboundMessage, status string, runErr error) {
	input, err := json.Marshal(map[string]string{
		"external_id":  raw.ExternalID,
		"subject":      raw.Subject,
		"sender_email": raw.SenderEmail,
	})
	if err != nil {
		in.logger.Warn("Failed to marshal run input", "error", err.Error())
		return
	}

	now := time.Now()
	run := ConnectorRun{
		RunID:       uuid.New().String(),
		UserID:      userID,
		Connector:   raw.Source,
		Status:      status,
		Input:       input,
		CompletedAt: &now,
	}
	if runErr != nil {
		run.ErrorMessage = runErr.Error()
	}
	if err := in.db.WithContext(ctx).Create(&run).Error; err != nil {
		in.logger.Warn("Failed to record connector run",
			"connector", raw.Source, "error", err.Error())
	}
}

func (in *Ingestor) reportFailure(ctx context.Context, userID uint, raw InboundMessage, ingestErr error) {
	if in.recorder == nil {
		return
	}
	if _, err := in.recorder.LogError(ctx, userID, automation.LogRequest{
		Integration:  raw.Source,
		ErrorType:    automation.ErrorTypeSyncFailed,
		ErrorMessage: ingestErr.Error(),
		AutomationID: fmt.Sprintf("ingest-%s", raw.ExternalID),
	}); err != nil {
		in.logger.Warn("Failed to report ingest failure",
			"connector", raw.Source, "error", err.Error())
	}
}

// isVipSender checks the user's VIP contact list by sender email,
// case-insensitively.
func (in *Ingestor) isVipSender(ctx context.Context, userID uint, senderEmail string) bool {
	if senderEmail == "" {
		return false
	}
	var count int64
	if err := in.db.WithContext(ctx).Model(&models.VIPContact{}).
		Where("user_id = ? AND LOWER(email) = ?", userID, strings.ToLower(strings.TrimSpace(senderEmail))).
		Count(&count).Error; err != nil {
		in.logger.Warn("VIP lookup failed", "error", err.Error())
		return false
	}
	return count > 0
}

// notifyArrival raises an in-ledger notification for the new message.
// VIP senders get a vip-typed notification so vip-only delivery
// preferences key off the sender, not the message priority.
func (in *Ingestor) notifyArrival(ctx context.Context, userID uint, message *models.Message) error {
	notificationType := models.NotificationTypeMessage
	priority := models.NotificationPriorityMedium
	title := "New message"
	if message.IsVip {
		notificationType = models.NotificationTypeVip
		priority = models.NotificationPriorityHigh
		title = "New VIP message"
	}

	metadata, err := json.Marshal(map[string]string{"message_id": message.MessageID})
	if err != nil {
		return err
	}

	notification := models.Notification{
		NotificationID: uuid.New().String(),
		UserID:         userID,
		Type:           notificationType,
		Title:          title,
		Message:        fmt.Sprintf("%s: %s", message.SenderName, message.Subject),
		Link:           "/dashboard",
		Priority:       priority,
		Metadata:       metadata,
	}
	if err := in.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return err
	}

	in.publishChange(ctx, streams.TableNotifications, userID, &notification)
	return nil
}

func (in *Ingestor) publishChange(ctx context.Context, table string, userID uint, row interface{}) {
	if in.publisher == nil {
		return
	}
	post, err := json.Marshal(row)
	if err != nil {
		in.logger.Warn("Failed to marshal change event", "table", table, "error", err.Error())
		return
	}
	if _, err := in.publisher.PublishChange(ctx, streams.ChangeEvent{
		EventType: streams.EventInsert,
		Table:     table,
		UserID:    userID,
		New:       post,
	}); err != nil {
		in.logger.Warn("Failed to publish change event", "table", table, "error", err.Error())
	}
}

// makePreview collapses whitespace and truncates to a short rune-safe
// preview for list rendering.
func makePreview(content string) string {
	collapsed := strings.Join(strings.Fields(content), " ")
	runes := []rune(collapsed)
	if len(runes) <= previewRunes {
		return collapsed
	}
	return strings.TrimSpace(string(runes[:previewRunes])) + "…"
}
