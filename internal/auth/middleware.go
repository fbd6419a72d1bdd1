package auth

import (
	"fmt"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/napoleonai/inbox/internal/models"
	"gorm.io/gorm"
)

// RequireAuth is a middleware that ensures the user is authenticated.
// API requests get a JSON 401; browser requests are redirected to login.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID := session.Get("user_id")

		if userID == nil {
			if wantsJSON(c) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			} else {
				c.Redirect(http.StatusFound, "/login")
				c.Abort()
			}
			return
		}

		// User is authenticated - set context values for downstream handlers
		c.Set("user_id", userID)
		c.Set("user_email", session.Get("user_email"))
		c.Set("user_name", session.Get("user_name"))

		c.Next()
	}
}

// CurrentUser resolves the authenticated user's database record from
// the session email set by RequireAuth.
func CurrentUser(c *gin.Context, db *gorm.DB) (*models.User, error) {
	email, exists := c.Get("user_email")
	if !exists || email == nil {
		return nil, fmt.Errorf("no authenticated user in context")
	}

	emailStr, ok := email.(string)
	if !ok || emailStr == "" {
		return nil, fmt.Errorf("invalid user email in session")
	}

	var user models.User
	if err := db.Where("email = ?", emailStr).First(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	return &user, nil
}

func wantsJSON(c *gin.Context) bool {
	if len(c.Request.URL.Path) >= 5 && c.Request.URL.Path[:5] == "/api/" {
		return true
	}
	return c.GetHeader("Accept") == "application/json"
}
