package connectors

import (
	"time"

	"github.com/napoleonai/inbox/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ConnectorRun status constants
const (
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Connector represents a discovered connector with its metadata
type Connector struct {
	gorm.Model
	Name               string `gorm:"uniqueIndex;not null"`
	Description        string `gorm:"type:text"`
	Owner              string
	Version            string         `gorm:"not null"`
	SchemaVersion      string         `gorm:"column:schema_version;not null;default:'v1'"`
	Capabilities       datatypes.JSON `gorm:"type:jsonb"`
	DefaultConfig      datatypes.JSON `gorm:"type:jsonb;column:default_config"`
	SettingsSchemaPath string         `gorm:"column:settings_schema_path"`
	Enabled            bool           `gorm:"default:true"`
}

// UserConnectorConfig stores per-user per-connector settings
type UserConnectorConfig struct {
	gorm.Model
	UserID      uint           `gorm:"not null;uniqueIndex:idx_user_connector"`
	ConnectorID uint           `gorm:"not null;uniqueIndex:idx_user_connector"`
	Settings    datatypes.JSON `gorm:"type:jsonb"`
	Enabled     bool           `gorm:"default:false"`
	User        models.User    `gorm:"constraint:OnDelete:CASCADE;"`
	Connector   Connector      `gorm:"constraint:OnDelete:CASCADE;"`
}

// ConnectorRun tracks a single inbound delivery through ingestion.
type ConnectorRun struct {
	gorm.Model
	RunID        string         `gorm:"uniqueIndex;not null"`
	UserID       uint           `gorm:"not null;index"`
	Connector    string         `gorm:"not null;index"`
	Status       string         `gorm:"not null;index"`
	Input        datatypes.JSON `gorm:"type:jsonb"`
	ErrorMessage string         `gorm:"column:error_message;type:text"`
	CompletedAt  *time.Time     `gorm:"column:completed_at"`
}
