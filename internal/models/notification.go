package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Notification type constants
const (
	NotificationTypeMessage    = "message"
	NotificationTypeActionItem = "action_item"
	NotificationTypeDigest     = "digest"
	NotificationTypeSystem     = "system"
	NotificationTypeVip        = "vip"
)

// Notification priority constants
const (
	NotificationPriorityLow    = "low"
	NotificationPriorityMedium = "medium"
	NotificationPriorityHigh   = "high"
	NotificationPriorityUrgent = "urgent"
)

// Notification is an internal alert derived from a message or system
// event. Many notifications may reference one message (via metadata)
// but a notification has its own independent lifecycle.
type Notification struct {
	gorm.Model
	NotificationID string `gorm:"uniqueIndex;not null"`
	UserID         uint   `gorm:"not null;index"`
	User           User   `gorm:"constraint:OnDelete:CASCADE;"`

	Type     string `gorm:"not null;default:'message';index"`
	Title    string `gorm:"not null"`
	Message  string `gorm:"type:text"`
	Link     string `gorm:"not null;default:''"`
	Read     bool   `gorm:"not null;default:false;index"`
	Priority string `gorm:"not null;default:'medium'"`

	ExpiresAt *time.Time
	Metadata  datatypes.JSON `gorm:"type:jsonb"`
}

// NotificationPreferences is the per-user singleton preference record.
// Settings is the whole preference blob, upserted wholesale on every
// change (the client never patches individual fields).
type NotificationPreferences struct {
	gorm.Model
	UserID   uint           `gorm:"not null;uniqueIndex"`
	Settings datatypes.JSON `gorm:"type:jsonb"`
	User     User           `gorm:"constraint:OnDelete:CASCADE;"`
}
