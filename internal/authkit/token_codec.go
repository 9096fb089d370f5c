package authkit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenPurpose selects which signing key a token is minted and verified with.
type TokenPurpose string

const (
	// PurposeAccess marks short-lived access tokens.
	PurposeAccess TokenPurpose = "access"
	// PurposeRefresh marks refresh-purpose tokens.
	PurposeRefresh TokenPurpose = "refresh"
)

// Claims is the fully decoded claim set of a verified token.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenCodec mints and verifies HS256 tokens with purpose-scoped keys.
type TokenCodec struct {
	keys   SigningKeys
	issuer string
	clock  Clock
}

// NewTokenCodec validates the keys and constructs a codec.
func NewTokenCodec(keys SigningKeys, issuer string, clock Clock) (*TokenCodec, error) {
	if len(keys.AccessKey) == 0 {
		return nil, errors.New("jwt.codec.new: access key must be non-empty")
	}
	if len(keys.RefreshKey) == 0 {
		return nil, errors.New("jwt.codec.new: refresh key must be non-empty")
	}
	if string(keys.AccessKey) == string(keys.RefreshKey) {
		return nil, errors.New("jwt.codec.new: access and refresh keys must differ")
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	return &TokenCodec{keys: keys, issuer: issuer, clock: clock}, nil
}

// Mint creates a signed token for subject that expires ttl from now.
func (codec *TokenCodec) Mint(subject string, purpose TokenPurpose, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("jwt.mint.failure: subject must be non-empty")
	}
	if ttl <= 0 {
		return "", errors.New("jwt.mint.failure: ttl must be positive")
	}
	signingKey, keyErr := codec.keys.KeyFor(purpose)
	if keyErr != nil {
		return "", fmt.Errorf("jwt.mint.failure: %w", keyErr)
	}
	issuedAt := codec.clock.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    codec.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
	})
	signed, signErr := token.SignedString(signingKey)
	if signErr != nil {
		return "", fmt.Errorf("jwt.mint.failure: %w", signErr)
	}
	return signed, nil
}

// Verify checks the signature against the key for purpose and the expiry against now.
func (codec *TokenCodec) Verify(tokenString string, purpose TokenPurpose) (Claims, error) {
	verifyKey, keyErr := codec.keys.KeyFor(purpose)
	if keyErr != nil {
		return Claims{}, fmt.Errorf("jwt.verify: %w", keyErr)
	}
	if strings.TrimSpace(tokenString) == "" {
		return Claims{}, fmt.Errorf("jwt.verify: %w", ErrMalformedToken)
	}
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(codec.clock.Now),
	}
	if codec.issuer != "" {
		options = append(options, jwt.WithIssuer(codec.issuer))
	}
	registered := &jwt.RegisteredClaims{}
	parsedToken, parseErr := jwt.ParseWithClaims(tokenString, registered, func(parsed *jwt.Token) (interface{}, error) {
		return verifyKey, nil
	}, options...)
	if parseErr != nil {
		return Claims{}, fmt.Errorf("jwt.verify: %w", classifyParseError(parseErr))
	}
	if parsedToken == nil || !parsedToken.Valid {
		return Claims{}, fmt.Errorf("jwt.verify: %w", ErrBadSignature)
	}

	claims := Claims{Subject: registered.Subject}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time.UTC()
	}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time.UTC()
	}
	if !codec.clock.Now().Before(claims.ExpiresAt) {
		return Claims{}, fmt.Errorf("jwt.verify: %w", ErrTokenExpired)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, fmt.Errorf("jwt.verify: %w", ErrMalformedToken)
	}
	return claims, nil
}

// ExtractSubject verifies the token and returns its subject.
func (codec *TokenCodec) ExtractSubject(tokenString string, purpose TokenPurpose) (string, error) {
	claims, err := codec.Verify(tokenString, purpose)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ExtractExpiry verifies the token and returns its expiry.
func (codec *TokenCodec) ExtractExpiry(tokenString string, purpose TokenPurpose) (time.Time, error) {
	claims, err := codec.Verify(tokenString, purpose)
	if err != nil {
		return time.Time{}, err
	}
	return claims.ExpiresAt, nil
}

// Signature verification precedes claim validation in jwt/v5, so a token
// signed with the other purpose's key never reaches the expiry check.
func classifyParseError(parseErr error) error {
	switch {
	case errors.Is(parseErr, jwt.ErrTokenMalformed), errors.Is(parseErr, jwt.ErrTokenUnverifiable):
		return ErrMalformedToken
	case errors.Is(parseErr, jwt.ErrTokenSignatureInvalid):
		return ErrBadSignature
	case errors.Is(parseErr, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrBadSignature
	}
}
