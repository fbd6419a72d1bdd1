package notifications

import (
	"encoding/json"
	"testing"

	"github.com/napoleonai/inbox/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func validSettings() map[string]interface{} {
	return map[string]interface{}{
		"email":    true,
		"push":     true,
		"in_app":   true,
		"digest":   false,
		"vip_only": false,
		"quiet_hours": map[string]interface{}{
			"enabled": true,
			"start":   "22:00",
			"end":     "08:00",
		},
	}
}

func TestValidatePreferences(t *testing.T) {
	t.Run("valid blob", func(t *testing.T) {
		assert.NoError(t, ValidatePreferences(validSettings()))
	})

	t.Run("rejects malformed quiet hour clock", func(t *testing.T) {
		settings := validSettings()
		settings["quiet_hours"].(map[string]interface{})["start"] = "25:00"
		assert.Error(t, ValidatePreferences(settings))
	})

	t.Run("rejects unknown keys", func(t *testing.T) {
		settings := validSettings()
		settings["sms"] = true
		assert.Error(t, ValidatePreferences(settings))
	})

	t.Run("rejects missing required fields", func(t *testing.T) {
		settings := validSettings()
		delete(settings, "quiet_hours")
		assert.Error(t, ValidatePreferences(settings))
	})

	t.Run("rejects wrong types", func(t *testing.T) {
		settings := validSettings()
		settings["push"] = "yes"
		assert.Error(t, ValidatePreferences(settings))
	})
}

func TestDefaultPreferences(t *testing.T) {
	prefs := DefaultPreferences()
	assert.True(t, prefs.Email)
	assert.True(t, prefs.Push)
	assert.True(t, prefs.InApp)
	assert.True(t, prefs.Digest)
	assert.False(t, prefs.VipOnly)
	assert.False(t, prefs.QuietHours.Enabled)
	assert.Equal(t, "22:00", prefs.QuietHours.Start)
	assert.Equal(t, "08:00", prefs.QuietHours.End)
}

func TestLoadPreferences(t *testing.T) {
	db := openTestDB(t)
	user := models.User{Email: "prefs@example.com"}
	require.NoError(t, db.Create(&user).Error)

	t.Run("missing record yields defaults", func(t *testing.T) {
		prefs := LoadPreferences(db, user.ID)
		assert.Equal(t, DefaultPreferences(), prefs)
	})

	t.Run("corrupt blob yields defaults", func(t *testing.T) {
		record := models.NotificationPreferences{
			UserID:   user.ID,
			Settings: datatypes.JSON([]byte(`{not json`)),
		}
		require.NoError(t, db.Create(&record).Error)

		prefs := LoadPreferences(db, user.ID)
		assert.Equal(t, DefaultPreferences(), prefs)
	})
}

func TestSavePreferencesRoundTrip(t *testing.T) {
	db := openTestDB(t)
	user := models.User{Email: "save@example.com"}
	require.NoError(t, db.Create(&user).Error)

	prefs := DefaultPreferences()
	prefs.VipOnly = true
	prefs.QuietHours.Enabled = true
	require.NoError(t, SavePreferences(db, user.ID, prefs))

	loaded := LoadPreferences(db, user.ID)
	assert.Equal(t, prefs, loaded)

	t.Run("second save replaces wholesale", func(t *testing.T) {
		prefs.VipOnly = false
		prefs.Push = false
		require.NoError(t, SavePreferences(db, user.ID, prefs))

		loaded := LoadPreferences(db, user.ID)
		assert.Equal(t, prefs, loaded)

		var count int64
		db.Model(&models.NotificationPreferences{}).Where("user_id = ?", user.ID).Count(&count)
		assert.Equal(t, int64(1), count, "singleton record per user")
	})

	t.Run("stored blob carries snake_case keys", func(t *testing.T) {
		var record models.NotificationPreferences
		require.NoError(t, db.Where("user_id = ?", user.ID).First(&record).Error)

		var asMap map[string]interface{}
		require.NoError(t, json.Unmarshal(record.Settings, &asMap))
		assert.Contains(t, asMap, "vip_only")
		assert.Contains(t, asMap, "quiet_hours")
	})
}
