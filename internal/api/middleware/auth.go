package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"crew-orchestrator/internal/models"
	"crew-orchestrator/internal/repository"
)

// UserContextKey is where RequireUser stores the resolved caller.
const UserContextKey = "auth_user"

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// RequireUser resolves the Authorization bearer token to a user. Requests
// without a valid token are rejected with 401 before reaching handlers.
func RequireUser(users repository.UserRepository, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Error:   "unauthorized",
				Message: "Missing bearer token",
				Code:    http.StatusUnauthorized,
			})
			return
		}

		user, err := users.GetByAPIToken(c.Request.Context(), token)
		if err != nil {
			log.WithError(err).Error("Failed to resolve api token")
			c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{
				Error:   "internal_error",
				Message: "Internal server error",
				Code:    http.StatusInternalServerError,
			})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Error:   "unauthorized",
				Message: "Invalid bearer token",
				Code:    http.StatusUnauthorized,
			})
			return
		}

		c.Set(UserContextKey, user)
		c.Next()
	}
}

// CurrentUser returns the caller stored by RequireUser.
func CurrentUser(c *gin.Context) *models.UserEntity {
	value, ok := c.Get(UserContextKey)
	if !ok {
		return nil
	}
	user, _ := value.(*models.UserEntity)
	return user
}

// RequireWebhookToken guards the runner callback endpoints with the shared
// webhook secret. The comparison is constant-time.
func RequireWebhookToken(secret string, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			log.WithField("path", c.FullPath()).Warn("Rejected webhook call with bad token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Error:   "unauthorized",
				Message: "Invalid webhook token",
				Code:    http.StatusUnauthorized,
			})
			return
		}
		c.Next()
	}
}
