package messages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/napoleonai/inbox/internal/models"
	"github.com/napoleonai/inbox/internal/streams"
	"gorm.io/gorm"
)

// pageSize is the number of messages loaded into a session view.
const pageSize = 100

// Action name constants for the generic dispatch endpoint
const (
	ActionMarkRead         = "mark_read"
	ActionArchive          = "archive"
	ActionSnooze           = "snooze"
	ActionUpdatePriority   = "update_priority"
	ActionCreateActionItem = "create_action_item"
)

// defaultSnooze applies when the snooze action carries no until time.
const defaultSnooze = 24 * time.Hour

// ErrUnknownAction marks a dispatch request whose action is not in the
// supported set.
var ErrUnknownAction = errors.New("unknown action")

// ErrInvalidAction marks a dispatch request with a malformed payload.
var ErrInvalidAction = errors.New("invalid action payload")

// Repository wraps the persistence layer for messages and publishes a
// change event after every successful mutation.
type Repository struct {
	db        *gorm.DB
	publisher *streams.Publisher // nil disables event publication
}

// NewRepository creates a Repository.
func NewRepository(db *gorm.DB, publisher *streams.Publisher) *Repository {
	return &Repository{db: db, publisher: publisher}
}

// List loads the current page of a user's non-archived messages,
// newest first.
func (r *Repository) List(ctx context.Context, userID uint) ([]models.Message, error) {
	var msgs []models.Message
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_archived = ?", userID, false).
		Order("created_at DESC").
		Limit(pageSize).
		Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

// Get loads one message by its external id, scoped to the user.
func (r *Repository) Get(ctx context.Context, userID uint, messageID string) (*models.Message, error) {
	var msg models.Message
	if err := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		First(&msg).Error; err != nil {
		return nil, fmt.Errorf("failed to load message %s: %w", messageID, err)
	}
	return &msg, nil
}

// ActionRequest is the generic dispatch payload for POST /api/messages.
type ActionRequest struct {
	Action    string                 `json:"action" binding:"required"`
	MessageID string                 `json:"messageId" binding:"required"`
	Data      map[string]interface{} `json:"data"`
}

// PerformAction executes one dispatch action against a message and
// publishes the resulting change event. Unknown actions return
// ErrUnknownAction; malformed payloads return ErrInvalidAction.
func (r *Repository) PerformAction(ctx context.Context, userID uint, req ActionRequest) error {
	msg, err := r.Get(ctx, userID, req.MessageID)
	if err != nil {
		return err
	}

	switch req.Action {
	case ActionMarkRead:
		err = r.update(ctx, msg, map[string]interface{}{"is_read": true})

	case ActionArchive:
		err = r.update(ctx, msg, map[string]interface{}{"is_archived": true})

	case ActionSnooze:
		until := time.Now().Add(defaultSnooze)
		if raw, ok := req.Data["until"]; ok {
			str, ok := raw.(string)
			if !ok {
				return fmt.Errorf("%w: until must be an RFC3339 string", ErrInvalidAction)
			}
			parsed, parseErr := time.Parse(time.RFC3339, str)
			if parseErr != nil {
				return fmt.Errorf("%w: %v", ErrInvalidAction, parseErr)
			}
			until = parsed
		}
		err = r.update(ctx, msg, map[string]interface{}{
			"is_snoozed":    true,
			"snoozed_until": until,
		})

	case ActionUpdatePriority:
		raw, ok := req.Data["score"]
		if !ok {
			return fmt.Errorf("%w: score is required", ErrInvalidAction)
		}
		score, ok := raw.(float64)
		if !ok || score < 0 || score > 100 {
			return fmt.Errorf("%w: score must be a number in 0-100", ErrInvalidAction)
		}
		// priority tier and score must stay consistent
		err = r.update(ctx, msg, map[string]interface{}{
			"priority_score": int(score),
			"priority":       models.TierForScore(int(score)),
		})

	case ActionCreateActionItem:
		title, _ := req.Data["title"].(string)
		if title == "" {
			return fmt.Errorf("%w: title is required", ErrInvalidAction)
		}
		notes, _ := req.Data["notes"].(string)
		item := models.ActionItem{
			UserID:    userID,
			MessageID: msg.ID,
			Title:     title,
			Notes:     notes,
		}
		if due, ok := req.Data["due_at"].(string); ok {
			parsed, parseErr := time.Parse(time.RFC3339, due)
			if parseErr != nil {
				return fmt.Errorf("%w: %v", ErrInvalidAction, parseErr)
			}
			item.DueAt = &parsed
		}
		return r.db.WithContext(ctx).Create(&item).Error

	default:
		return fmt.Errorf("%w: %s", ErrUnknownAction, req.Action)
	}

	return err
}

// MarkRead sets the read flag on a message if currently unread.
func (r *Repository) MarkRead(ctx context.Context, userID uint, messageID string) error {
	msg, err := r.Get(ctx, userID, messageID)
	if err != nil {
		return err
	}
	if msg.IsRead {
		return nil
	}
	return r.update(ctx, msg, map[string]interface{}{"is_read": true})
}

// update applies field updates and publishes the UPDATE change event
// with the post-image.
func (r *Repository) update(ctx context.Context, msg *models.Message, updates map[string]interface{}) error {
	if err := r.db.WithContext(ctx).Model(msg).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update message %s: %w", msg.MessageID, err)
	}

	if r.publisher != nil {
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if _, err := r.publisher.PublishChange(ctx, streams.ChangeEvent{
			EventType: streams.EventUpdate,
			Table:     streams.TableMessages,
			UserID:    msg.UserID,
			New:       payload,
		}); err != nil {
			return fmt.Errorf("failed to publish change event: %w", err)
		}
	}

	return nil
}
