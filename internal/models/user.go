package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents an application user with preferences and activity tracking
type User struct {
	gorm.Model
	Email    string `gorm:"uniqueIndex:idx_users_email_not_deleted,where:deleted_at IS NULL;not null"`
	Name     string `gorm:"not null;default:''"`
	Avatar   string `gorm:"not null;default:''"`
	Timezone string `gorm:"not null;default:'UTC'"`
	Role     string `gorm:"not null;default:'user'"` // enum: 'user' or 'admin'

	// FCM device registration token for native push delivery.
	// Empty until the client registers a device.
	PushToken string `gorm:"not null;default:''"`

	LastLoginAt  *time.Time
	LastDigestAt *time.Time

	// Associations
	VIPContacts       []VIPContact       `gorm:"constraint:OnDelete:CASCADE;"`
	Messages          []Message          `gorm:"constraint:OnDelete:CASCADE;"`
	Notifications     []Notification     `gorm:"constraint:OnDelete:CASCADE;"`
	ConnectorAccounts []ConnectorAccount `gorm:"constraint:OnDelete:CASCADE;"`
}

// VIPContact marks a sender address as belonging to a high-priority
// relationship (board member, investor, key client). Messages from a
// VIP address are flagged at ingestion time.
type VIPContact struct {
	gorm.Model
	UserID uint   `gorm:"not null;index;uniqueIndex:idx_vip_user_email"`
	Email  string `gorm:"not null;uniqueIndex:idx_vip_user_email"`
	Label  string `gorm:"not null;default:''"`
	User   User   `gorm:"constraint:OnDelete:CASCADE;"`
}
