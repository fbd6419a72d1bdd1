package database

import (
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/napoleonai/inbox/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SeedDevData populates the database with development test data.
// Idempotent: skips if data already exists.
func SeedDevData(db *gorm.DB) error {
	var existingUser models.User
	result := db.Where("email = ?", "dev@napoleonai.local").First(&existingUser)
	if result.Error == nil {
		log.Println("Seed data already exists, skipping")
		return nil
	}

	user := models.User{
		Email:    "dev@napoleonai.local",
		Name:     "Dev User",
		Timezone: "America/New_York",
		Role:     "user",
	}

	if err := db.Create(&user).Error; err != nil {
		return err
	}

	vip := models.VIPContact{
		UserID: user.ID,
		Email:  "chair@boardroom.example",
		Label:  "Board chair",
	}
	if err := db.Create(&vip).Error; err != nil {
		return err
	}

	summary := "Q4 revenue beat plan by 12%; board asks for updated hiring forecast before Thursday."
	messages := []models.Message{
		{
			MessageID:     uuid.New().String(),
			UserID:        user.ID,
			SenderName:    "Alexandra Chair",
			SenderEmail:   "chair@boardroom.example",
			Subject:       "Q4 Financial Report",
			Content:       "Please review the attached Q4 financials ahead of the board meeting.",
			Preview:       "Please review the attached Q4 financials...",
			AISummary:     &summary,
			PriorityScore: 92,
			Priority:      models.TierForScore(92),
			IsVip:         true,
			Source:        "gmail",
			Tags:          datatypes.JSON([]byte(`["finance","board"]`)),
		},
		{
			MessageID:   uuid.New().String(),
			UserID:      user.ID,
			SenderName:  "Jordan PM",
			SenderEmail: "jordan@team.example",
			Subject:     "Project Update",
			Content:     "Sprint 14 is on track; demo scheduled for Friday.",
			Preview:     "Sprint 14 is on track...",
			Source:      "slack",
			Tags:        datatypes.JSON([]byte(`["project"]`)),
		},
	}
	for i := range messages {
		if err := db.Create(&messages[i]).Error; err != nil {
			return err
		}
	}

	notification := models.Notification{
		NotificationID: uuid.New().String(),
		UserID:         user.ID,
		Type:           models.NotificationTypeVip,
		Title:          "New VIP message",
		Message:        "Alexandra Chair: Q4 Financial Report",
		Priority:       models.NotificationPriorityHigh,
		Metadata:       datatypes.JSON([]byte(`{"message_id":"` + messages[0].MessageID + `"}`)),
	}
	if err := db.Create(&notification).Error; err != nil {
		return err
	}

	prefs := models.NotificationPreferences{
		UserID:   user.ID,
		Settings: datatypes.JSON([]byte(`{"email":true,"push":true,"in_app":true,"digest":true,"vip_only":false,"quiet_hours":{"enabled":true,"start":"22:00","end":"08:00"}}`)),
	}
	if err := db.Create(&prefs).Error; err != nil {
		return err
	}

	now := time.Now()
	account := models.ConnectorAccount{
		UserID:         user.ID,
		Connector:      "gmail",
		ProviderUserID: "dev-gmail-id-12345",
		AccessToken:    "dev-access-token",
		RefreshToken:   "dev-refresh-token",
		TokenExpiry:    &now,
	}
	if err := db.Create(&account).Error; err != nil {
		return err
	}

	log.Println("Seed data created: dev@napoleonai.local with sample inbox")
	return nil
}
