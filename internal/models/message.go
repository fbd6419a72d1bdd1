package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Priority tier constants derived from the 0-100 priority score
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Tier score boundaries
const (
	HighPriorityThreshold   = 80
	MediumPriorityThreshold = 50
)

// Message represents one inbound communication, normalized across
// source platforms (email, chat) by a platform connector.
type Message struct {
	gorm.Model
	// MessageID is the opaque external identifier, unique per user.
	MessageID string `gorm:"uniqueIndex;not null"`
	UserID    uint   `gorm:"not null;index"`
	User      User   `gorm:"constraint:OnDelete:CASCADE;"`

	SenderName   string `gorm:"not null;default:''"`
	SenderEmail  string `gorm:"not null;index"`
	SenderAvatar string `gorm:"not null;default:''"`

	Subject string `gorm:"not null;default:''"`
	Content string `gorm:"type:text"`
	Preview string `gorm:"not null;default:''"`

	// AISummary is populated asynchronously by the annotation pipeline.
	// Nil until annotated; SummaryExempt short-circuits annotation.
	AISummary     *string `gorm:"type:text"`
	SummaryExempt bool    `gorm:"not null;default:false"`

	PriorityScore int    `gorm:"not null;default:0"`
	Priority      string `gorm:"not null;default:'low';index"`
	IsVip         bool   `gorm:"not null;default:false;index"`

	IsRead       bool `gorm:"not null;default:false;index"`
	IsArchived   bool `gorm:"not null;default:false;index"`
	IsSnoozed    bool `gorm:"not null;default:false;index"`
	SnoozedUntil *time.Time

	Source string         `gorm:"not null;default:''"`
	Tags   datatypes.JSON `gorm:"type:jsonb"`
}

// TierForScore reduces a 0-100 priority score to its display tier.
func TierForScore(score int) string {
	switch {
	case score >= HighPriorityThreshold:
		return PriorityHigh
	case score >= MediumPriorityThreshold:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// NeedsAISummary reports whether the annotation pipeline still owes
// this message a summary.
func (m *Message) NeedsAISummary() bool {
	return m.AISummary == nil && !m.SummaryExempt
}

// ActionItem is a follow-up task created from a message via the
// create_action_item dispatch action.
type ActionItem struct {
	gorm.Model
	UserID    uint   `gorm:"not null;index"`
	MessageID uint   `gorm:"not null;index"`
	Title     string `gorm:"not null"`
	Notes     string `gorm:"type:text"`
	DueAt     *time.Time
	Completed bool    `gorm:"not null;default:false"`
	User      User    `gorm:"constraint:OnDelete:CASCADE;"`
	Message   Message `gorm:"constraint:OnDelete:CASCADE;"`
}
