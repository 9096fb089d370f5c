package web

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errNoOrigins      = errors.New("cors.no_origins")
	errWildcardOrigin = errors.New("cors.wildcard_origin")
	errInvalidOrigin  = errors.New("cors.invalid_origin")
)

// ConfigureCORS builds the CORS middleware for the token API. Origins must be
// explicit scheme://host values; bearer tokens are sent in Authorization, so
// cookies are never allowed cross-origin.
func ConfigureCORS(logger *zap.Logger, allowedOrigins []string) (gin.HandlerFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	origins, err := normalizeOrigins(logger, allowedOrigins)
	if err != nil {
		return nil, err
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}), nil
}

func normalizeOrigins(logger *zap.Logger, allowedOrigins []string) ([]string, error) {
	origins := make([]string, 0, len(allowedOrigins))
	for _, raw := range allowedOrigins {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		origin, plainHTTP, err := normalizeOrigin(raw)
		if err != nil {
			return nil, err
		}
		if plainHTTP && !isLoopbackHost(origin) {
			logger.Warn("cors origin without tls",
				zap.String("code", "cors.origin.plain_http"),
				zap.String("origin", origin))
		}
		origins = append(origins, origin)
	}
	if len(origins) == 0 {
		return nil, errNoOrigins
	}
	slices.Sort(origins)
	return slices.Compact(origins), nil
}

// normalizeOrigin lowercases the scheme and drops a bare trailing slash.
func normalizeOrigin(raw string) (string, bool, error) {
	if raw == "*" {
		return "", false, errWildcardOrigin
	}
	parsed, err := url.Parse(raw)
	switch {
	case err != nil, parsed.Scheme == "", parsed.Host == "":
		return "", false, fmt.Errorf("%w: %q", errInvalidOrigin, raw)
	case parsed.Path != "" && parsed.Path != "/":
		return "", false, fmt.Errorf("%w: %q has a path", errInvalidOrigin, raw)
	case parsed.RawQuery != "" || parsed.Fragment != "":
		return "", false, fmt.Errorf("%w: %q has a query or fragment", errInvalidOrigin, raw)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "https" && scheme != "http" {
		return "", false, fmt.Errorf("%w: %q scheme %s", errInvalidOrigin, raw, scheme)
	}
	return scheme + "://" + parsed.Host, scheme == "http", nil
}

func isLoopbackHost(origin string) bool {
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
