package connectors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/napoleonai/inbox/internal/auth"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// IngestHandler accepts one inbound message from a connector and runs
// it through ingestion. The connector name from the path wins over any
// source claimed in the payload.
func IngestHandler(db *gorm.DB, ingestor *Ingestor) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := auth.CurrentUser(c, db)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		var inbound InboundMessage
		if err := c.ShouldBindJSON(&inbound); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		inbound.Source = c.Param("name")
		if inbound.ExternalID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "external_id is required"})
			return
		}

		message, err := ingestor.Ingest(c.Request.Context(), user.ID, inbound)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to ingest message"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"messageId": message.MessageID,
			"isVip":     message.IsVip,
		})
	}
}

// SettingsRequest is the payload for updating a user's per-connector
// settings. Enabled is optional; omitting it leaves the flag untouched.
type SettingsRequest struct {
	Settings map[string]interface{} `json:"settings"`
	Enabled  *bool                  `json:"enabled"`
}

// SaveSettingsHandler validates the submitted settings against the
// connector's JSON Schema and upserts the user's config.
func SaveSettingsHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := auth.CurrentUser(c, db)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		var connector Connector
		if err := db.Where("name = ?", c.Param("name")).First(&connector).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown connector"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up connector"})
			return
		}

		var req SettingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if connector.SettingsSchemaPath != "" {
			if err := ValidateSettings(connector.SettingsSchemaPath, req.Settings); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}

		settings, err := json.Marshal(req.Settings)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "settings are not serializable"})
			return
		}

		var config UserConnectorConfig
		err = db.Where("user_id = ? AND connector_id = ?", user.ID, connector.ID).First(&config).Error
		switch {
		case err == nil:
			updates := map[string]interface{}{"settings": datatypes.JSON(settings)}
			if req.Enabled != nil {
				updates["enabled"] = *req.Enabled
			}
			if err := db.Model(&config).Updates(updates).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save settings"})
				return
			}
			if req.Enabled != nil {
				config.Enabled = *req.Enabled
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			config = UserConnectorConfig{
				UserID:      user.ID,
				ConnectorID: connector.ID,
				Settings:    settings,
				Enabled:     req.Enabled != nil && *req.Enabled,
			}
			if err := db.Create(&config).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save settings"})
				return
			}
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load settings"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"connector": connector.Name,
			"enabled":   config.Enabled,
		})
	}
}
