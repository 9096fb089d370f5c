package authkit

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// MountAuthRoutes registers /auth/register, /auth/login, /auth/refresh-token, /auth/logout, and /auth/me.
func MountAuthRoutes(router gin.IRouter, engine *AuthEngine, codec *TokenCodec) {
	authGroup := router.Group("/auth")

	authGroup.POST("/register", func(contextGin *gin.Context) {
		var inbound registerRequest
		if err := contextGin.ShouldBindJSON(&inbound); err != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		if err := engine.Register(contextGin, inbound.Username, inbound.Email, inbound.Password); err != nil {
			writeFlowError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusCreated, gin.H{"message": "User registered successfully. Please login."})
	})

	authGroup.POST("/login", func(contextGin *gin.Context) {
		var inbound loginRequest
		if err := contextGin.ShouldBindJSON(&inbound); err != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		identifier := inbound.Username
		if strings.TrimSpace(identifier) == "" {
			identifier = inbound.Email
		}
		pair, err := engine.Login(contextGin, identifier, inbound.Password)
		if err != nil {
			writeFlowError(contextGin, err)
			return
		}
		writeTokenPair(contextGin, pair)
	})

	authGroup.POST("/refresh-token", func(contextGin *gin.Context) {
		var inbound refreshRequest
		if err := contextGin.ShouldBindJSON(&inbound); err != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		pair, err := engine.RefreshAccess(contextGin, inbound.RefreshToken)
		if err != nil {
			writeFlowError(contextGin, err)
			return
		}
		writeTokenPair(contextGin, pair)
	})

	protected := authGroup.Group("")
	protected.Use(RequireAccessToken(codec))

	protected.POST("/logout", func(contextGin *gin.Context) {
		claims, ok := claimsFromContext(contextGin)
		if !ok {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		if err := engine.Logout(contextGin, claims.Subject); err != nil {
			writeFlowError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"message": "Logged out successfully."})
	})

	protected.GET("/me", func(contextGin *gin.Context) {
		claims, ok := claimsFromContext(contextGin)
		if !ok {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{
			"username":   claims.Subject,
			"issued_at":  claims.IssuedAt,
			"expires_at": claims.ExpiresAt,
		})
	})
}

func claimsFromContext(contextGin *gin.Context) (Claims, bool) {
	value, found := contextGin.Get(ClaimsContextKey)
	if !found {
		return Claims{}, false
	}
	claims, ok := value.(Claims)
	return claims, ok
}

func writeTokenPair(contextGin *gin.Context, pair TokenPair) {
	contextGin.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_in":    int64(pair.ExpiresIn.Seconds()),
		"token_type":    "Bearer",
	})
}

func writeFlowError(contextGin *gin.Context, err error) {
	switch ClassifyError(err) {
	case ErrorKindValidation:
		status := http.StatusConflict
		if errors.Is(err, ErrInvalidInput) {
			status = http.StatusBadRequest
		}
		contextGin.AbortWithStatusJSON(status, gin.H{"error": errorCode(err)})
	case ErrorKindAuthentication, ErrorKindTokenLifecycle:
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errorCode(err)})
	case ErrorKindNotFound:
		contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": errorCode(err)})
	default:
		contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrUsernameTaken):
		return "username_taken"
	case errors.Is(err, ErrEmailTaken):
		return "email_taken"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrRefreshTokenNotFound):
		return "refresh_token_not_found"
	case errors.Is(err, ErrRefreshTokenExpired):
		return "refresh_token_expired"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	default:
		return "reauthenticate"
	}
}
