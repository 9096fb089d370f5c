package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/passauth/internal/authkit"
	"github.com/tyemirov/passauth/pkg/sessionvalidator"
)

// SessionClaims is the subset of verified access-token claims the handlers read.
type SessionClaims interface {
	GetUsername() string
	GetExpiresAt() time.Time
}

// ProfileSource resolves a stored user by username.
type ProfileSource interface {
	Profile(ctx context.Context, username string) (authkit.User, error)
}

// HandleWhoAmI resolves the authenticated user's profile payload.
func HandleWhoAmI(profiles ProfileSource, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if profiles == nil {
		panic("profile source is required")
	}

	return func(contextGin *gin.Context) {
		claimsValue, found := contextGin.Get(sessionvalidator.DefaultContextKey)
		if !found {
			logger.Warn("missing session claims on context",
				zap.String("code", "api.me.missing_claims"))
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		claims, ok := claimsValue.(SessionClaims)
		if !ok || claims.GetUsername() == "" {
			logger.Warn("invalid session claims on context",
				zap.String("code", "api.me.invalid_claims"))
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		user, profileErr := profiles.Profile(contextGin, claims.GetUsername())
		if profileErr != nil {
			if errors.Is(profileErr, authkit.ErrUserNotFound) {
				logger.Warn("user profile missing",
					zap.String("code", "api.me.profile_missing"),
					zap.String("username", claims.GetUsername()))
				contextGin.AbortWithStatus(http.StatusNotFound)
				return
			}
			logger.Error("user profile lookup error",
				zap.String("code", "api.me.profile_error"),
				zap.String("username", claims.GetUsername()),
				zap.Error(profileErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		contextGin.JSON(http.StatusOK, gin.H{
			"user_id":  user.ID,
			"username": user.Username,
			"email":    user.Email,
			"role":     string(user.Role),
			"expires":  claims.GetExpiresAt(),
		})
	}
}
