package authkit

import "time"

// SigningKeys holds the purpose-scoped HMAC keys loaded once at startup.
type SigningKeys struct {
	AccessKey  []byte
	RefreshKey []byte
}

// KeyFor returns the key dedicated to the given token purpose.
func (keys SigningKeys) KeyFor(purpose TokenPurpose) ([]byte, error) {
	switch purpose {
	case PurposeAccess:
		return keys.AccessKey, nil
	case PurposeRefresh:
		return keys.RefreshKey, nil
	default:
		return nil, ErrUnknownTokenPurpose
	}
}

// ServerConfig configures signing keys, issuer, and TTLs.
type ServerConfig struct {
	SigningKeys         SigningKeys
	TokenIssuer         string
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	RotateRefreshTokens bool
}
