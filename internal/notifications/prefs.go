package notifications

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonschema"
	"github.com/napoleonai/inbox/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// QuietHours is a daily wall-clock window during which delivery is
// suppressed. Start and End are local-time "HH:MM" strings; the window
// may wrap midnight (start > end implies an overnight span).
type QuietHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// Preferences is the per-user delivery configuration. It always has a
// usable value: users who never saved anything get the defaults.
type Preferences struct {
	Email      bool       `json:"email"`
	Push       bool       `json:"push"`
	InApp      bool       `json:"in_app"`
	Digest     bool       `json:"digest"`
	VipOnly    bool       `json:"vip_only"`
	QuietHours QuietHours `json:"quiet_hours"`
}

// DefaultPreferences returns the configuration applied before a user
// has saved anything.
func DefaultPreferences() Preferences {
	return Preferences{
		Email:  true,
		Push:   true,
		InApp:  true,
		Digest: true,
		QuietHours: QuietHours{
			Enabled: false,
			Start:   "22:00",
			End:     "08:00",
		},
	}
}

const preferencesSchema = `{
  "type": "object",
  "properties": {
    "email": {"type": "boolean"},
    "push": {"type": "boolean"},
    "in_app": {"type": "boolean"},
    "digest": {"type": "boolean"},
    "vip_only": {"type": "boolean"},
    "quiet_hours": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "start": {"type": "string", "pattern": "^([01][0-9]|2[0-3]):[0-5][0-9]$"},
        "end": {"type": "string", "pattern": "^([01][0-9]|2[0-3]):[0-5][0-9]$"}
      },
      "required": ["enabled", "start", "end"]
    }
  },
  "required": ["email", "push", "in_app", "digest", "vip_only", "quiet_hours"],
  "additionalProperties": false
}`

// ValidatePreferences validates a preferences blob against the schema
func ValidatePreferences(settings map[string]interface{}) error {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile([]byte(preferencesSchema))
	if err != nil {
		return fmt.Errorf("failed to compile preferences schema: %w", err)
	}

	result := schema.Validate(settings)
	if !result.IsValid() {
		var errorMessages []string
		for field, evalErr := range result.Errors {
			errorMessages = append(errorMessages, fmt.Sprintf("%s: %s", field, evalErr.Error()))
		}
		return fmt.Errorf("preferences validation failed: %s", strings.Join(errorMessages, "; "))
	}

	return nil
}

// LoadPreferences returns the stored preferences for a user, or the
// defaults when nothing has been saved yet. A corrupt stored blob also
// falls back to the defaults rather than failing delivery decisions.
func LoadPreferences(db *gorm.DB, userID uint) Preferences {
	var record models.NotificationPreferences
	if err := db.Where("user_id = ?", userID).First(&record).Error; err != nil {
		return DefaultPreferences()
	}

	var prefs Preferences
	if err := json.Unmarshal(record.Settings, &prefs); err != nil {
		slog.Warn("Corrupt notification preferences, using defaults", "user_id", userID, "error", err)
		return DefaultPreferences()
	}

	return prefs
}

// SavePreferences validates and upserts the whole preference blob for
// a user. The blob is replaced wholesale on every change.
func SavePreferences(db *gorm.DB, userID uint, prefs Preferences) error {
	blob, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	var asMap map[string]interface{}
	if err := json.Unmarshal(blob, &asMap); err != nil {
		return fmt.Errorf("failed to normalize preferences: %w", err)
	}
	if err := ValidatePreferences(asMap); err != nil {
		return err
	}

	var record models.NotificationPreferences
	result := db.Where("user_id = ?", userID).First(&record)
	if result.Error == gorm.ErrRecordNotFound {
		record = models.NotificationPreferences{
			UserID:   userID,
			Settings: datatypes.JSON(blob),
		}
		return db.Create(&record).Error
	} else if result.Error != nil {
		return result.Error
	}

	return db.Model(&record).Update("settings", datatypes.JSON(blob)).Error
}
