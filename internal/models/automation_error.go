package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AutomationError is one logged integration failure. Records are
// created on each failure report and never mutated; health aggregation
// reads them back by creation time.
type AutomationError struct {
	gorm.Model
	ErrorID      string         `gorm:"uniqueIndex;not null"`
	UserID       uint           `gorm:"not null;index"`
	Integration  string         `gorm:"not null;index"`
	ErrorType    string         `gorm:"not null;index"`
	ErrorMessage string         `gorm:"type:text"`
	ErrorDetails string         `gorm:"type:text"`
	AutomationID string         `gorm:"not null;default:''"`
	RetryCount   int            `gorm:"not null;default:0"`
	Metadata     datatypes.JSON `gorm:"type:jsonb"`
	User         User           `gorm:"constraint:OnDelete:CASCADE;"`
}
