package authkit

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ClaimsContextKey is where RequireAccessToken stores verified Claims.
const ClaimsContextKey = "auth_claims"

// RequireAccessToken validates the Bearer access token and injects claims.
func RequireAccessToken(codec *TokenCodec) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		tokenValue := BearerToken(contextGin.Request)
		if tokenValue == "" {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_access_token"})
			return
		}
		claims, verifyErr := codec.Verify(tokenValue, PurposeAccess)
		if verifyErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_access_token"})
			return
		}
		contextGin.Set(ClaimsContextKey, claims)
		contextGin.Next()
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(request *http.Request) string {
	if request == nil {
		return ""
	}
	header := strings.TrimSpace(request.Header.Get("Authorization"))
	scheme, value, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(value)
}
