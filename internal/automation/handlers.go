package automation

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/napoleonai/inbox/internal/auth"
	"gorm.io/gorm"
)

// LogErrorHandler handles POST /api/automation_errors
func LogErrorHandler(db *gorm.DB, recorder *Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := auth.CurrentUser(c, db)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req LogRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
			return
		}
		if req.RetryCount < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "retry_count must be >= 0"})
			return
		}

		report, err := recorder.LogError(c.Request.Context(), user.ID, req)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to log error"})
			return
		}

		c.JSON(http.StatusOK, report)
	}
}

// GetErrorsHandler handles GET /api/automation_errors
func GetErrorsHandler(db *gorm.DB, recorder *Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := auth.CurrentUser(c, db)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

		summary, err := recorder.Summarize(c.Request.Context(), user.ID, c.Query("integration"), limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load errors"})
			return
		}

		c.JSON(http.StatusOK, summary)
	}
}
