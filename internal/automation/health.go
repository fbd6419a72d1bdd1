package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/napoleonai/inbox/internal/models"
	"gorm.io/gorm"
)

// Health status constants
const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
	HealthWarning  = "warning"
	HealthCritical = "critical"
)

// Classification thresholds over errors recorded in the last hour
const (
	degradedThreshold = 1
	warningThreshold  = 6
	criticalThreshold = 11
)

// HealthStatus classifies overall integration health from the number
// of errors recorded within the last hour.
func HealthStatus(recentErrors int64) string {
	switch {
	case recentErrors >= criticalThreshold:
		return HealthCritical
	case recentErrors >= warningThreshold:
		return HealthWarning
	case recentErrors >= degradedThreshold:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}

// Summary aggregates a user's recorded errors for the GET endpoint.
type Summary struct {
	Errors       []models.AutomationError `json:"errors"`
	Total        int64                    `json:"total"`
	ByErrorType  map[string]int64         `json:"summary"`
	HealthStatus string                   `json:"health_status"`
}

// Summarize returns a page of error records plus aggregate counts and
// the health classification. An empty integration matches all.
func (r *Recorder) Summarize(ctx context.Context, userID uint, integration string, limit, offset int) (*Summary, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	base := r.db.WithContext(ctx).Model(&models.AutomationError{}).Where("user_id = ?", userID)
	if integration != "" {
		base = base.Where("integration = ?", integration)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count errors: %w", err)
	}

	var errs []models.AutomationError
	if err := base.Session(&gorm.Session{}).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&errs).Error; err != nil {
		return nil, fmt.Errorf("failed to list errors: %w", err)
	}

	type typeCount struct {
		ErrorType string
		Count     int64
	}
	var counts []typeCount
	if err := base.Session(&gorm.Session{}).
		Select("error_type, count(*) as count").
		Group("error_type").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate error types: %w", err)
	}

	byType := make(map[string]int64, len(counts))
	for _, c := range counts {
		byType[c.ErrorType] = c.Count
	}

	var recent int64
	if err := base.Session(&gorm.Session{}).
		Where("created_at >= ?", time.Now().Add(-time.Hour)).
		Count(&recent).Error; err != nil {
		return nil, fmt.Errorf("failed to count recent errors: %w", err)
	}

	return &Summary{
		Errors:       errs,
		Total:        total,
		ByErrorType:  byType,
		HealthStatus: HealthStatus(recent),
	}, nil
}
