package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// AuthEngineOptions wires the collaborators of an AuthEngine.
type AuthEngineOptions struct {
	Config        ServerConfig
	Users         UserStore
	Hasher        PasswordHasher
	Codec         *TokenCodec
	RefreshTokens *RefreshTokenManager
	Metrics       MetricsRecorder
	Logger        *zap.Logger
}

// AuthEngine coordinates the register, login, refresh, and logout flows.
type AuthEngine struct {
	config        ServerConfig
	users         UserStore
	hasher        PasswordHasher
	codec         *TokenCodec
	refreshTokens *RefreshTokenManager
	metrics       MetricsRecorder
	logger        *zap.Logger

	decoyOnce   sync.Once
	decoyDigest string
}

// NewAuthEngine validates options and constructs an engine.
func NewAuthEngine(options AuthEngineOptions) (*AuthEngine, error) {
	if options.Users == nil {
		return nil, errors.New("auth_engine.new: user store is required")
	}
	if options.Hasher == nil {
		return nil, errors.New("auth_engine.new: password hasher is required")
	}
	if options.Codec == nil {
		return nil, errors.New("auth_engine.new: token codec is required")
	}
	if options.RefreshTokens == nil {
		return nil, errors.New("auth_engine.new: refresh token manager is required")
	}
	if options.Config.AccessTTL <= 0 {
		return nil, errors.New("auth_engine.new: access ttl must be positive")
	}
	metrics := options.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthEngine{
		config:        options.Config,
		users:         options.Users,
		hasher:        options.Hasher,
		codec:         options.Codec,
		refreshTokens: options.RefreshTokens,
		metrics:       metrics,
		logger:        logger,
	}, nil
}

// Register creates a USER account. It never issues tokens; callers log in afterwards.
func (engine *AuthEngine) Register(ctx context.Context, username string, email string, password string) error {
	err := engine.register(ctx, strings.TrimSpace(username), strings.TrimSpace(email), password)
	engine.record(err, metricAuthRegisterSuccess, metricAuthRegisterFailure)
	if err != nil {
		engine.logFailure("auth.register", err, zap.String("username", username))
	}
	return err
}

func (engine *AuthEngine) register(ctx context.Context, username string, email string, password string) error {
	if username == "" || email == "" || password == "" {
		return fmt.Errorf("auth.register: %w", ErrInvalidInput)
	}
	// Login tries an identifier as a username before an email, so neither may
	// collide with the other namespace.
	usernameTaken, err := engine.identifierTaken(ctx, username)
	if err != nil {
		return fmt.Errorf("auth.register.user_exists: %w", err)
	}
	if usernameTaken {
		return ErrUsernameTaken
	}
	emailTaken, err := engine.identifierTaken(ctx, email, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("auth.register.email_exists: %w", err)
	}
	if emailTaken {
		return ErrEmailTaken
	}

	digest, err := engine.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("auth.register.hash: %w", err)
	}
	user := User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: digest,
		Role:         RoleUser,
	}
	if saveErr := engine.users.SaveUser(ctx, user); saveErr != nil {
		if errors.Is(saveErr, ErrUserAlreadyExists) {
			// A concurrent registration won the uniqueness race after the existence checks.
			return engine.classifyDuplicate(ctx, username)
		}
		return fmt.Errorf("auth.register.save: %w", saveErr)
	}
	return nil
}

// identifierTaken reports whether any of the identifiers is already a stored
// username or email.
func (engine *AuthEngine) identifierTaken(ctx context.Context, identifiers ...string) (bool, error) {
	for _, identifier := range identifiers {
		taken, err := engine.users.UserExists(ctx, identifier)
		if err != nil || taken {
			return taken, err
		}
		taken, err = engine.users.EmailExists(ctx, identifier)
		if err != nil || taken {
			return taken, err
		}
	}
	return false, nil
}

func (engine *AuthEngine) classifyDuplicate(ctx context.Context, username string) error {
	usernameTaken, err := engine.users.UserExists(ctx, username)
	if err != nil {
		return fmt.Errorf("auth.register.user_exists: %w", err)
	}
	if usernameTaken {
		return ErrUsernameTaken
	}
	return ErrEmailTaken
}

// Login authenticates by username or email and issues an access and refresh token.
func (engine *AuthEngine) Login(ctx context.Context, usernameOrEmail string, password string) (TokenPair, error) {
	pair, err := engine.login(ctx, strings.TrimSpace(usernameOrEmail), password)
	engine.record(err, metricAuthLoginSuccess, metricAuthLoginFailure)
	if err != nil {
		engine.logFailure("auth.login", err)
	}
	return pair, err
}

func (engine *AuthEngine) login(ctx context.Context, usernameOrEmail string, password string) (TokenPair, error) {
	if usernameOrEmail == "" || password == "" {
		return TokenPair{}, ErrInvalidCredentials
	}
	user, err := engine.users.FindUser(ctx, usernameOrEmail)
	if err != nil {
		if errors.Is(err, ErrUserRecordNotFound) {
			engine.burnDecoyVerification(password)
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, fmt.Errorf("auth.login.find_user: %w", err)
	}
	matched, err := engine.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth.login.verify: %w", err)
	}
	if !matched {
		return TokenPair{}, ErrInvalidCredentials
	}

	accessToken, err := engine.codec.Mint(user.Username, PurposeAccess, engine.config.AccessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth.login.mint: %w", err)
	}
	refreshToken, err := engine.refreshTokens.Issue(ctx, user)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth.login.issue_refresh: %w", err)
	}
	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken.Token,
		ExpiresIn:    engine.config.AccessTTL,
	}, nil
}

// RefreshAccess exchanges a live refresh token for a new access token.
func (engine *AuthEngine) RefreshAccess(ctx context.Context, refreshToken string) (TokenPair, error) {
	pair, err := engine.refreshAccess(ctx, refreshToken)
	engine.record(err, metricAuthRefreshSuccess, metricAuthRefreshFailure)
	if err != nil {
		engine.logFailure("auth.refresh", err)
	}
	return pair, err
}

func (engine *AuthEngine) refreshAccess(ctx context.Context, refreshToken string) (TokenPair, error) {
	record, err := engine.refreshTokens.Lookup(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if expiryErr := engine.refreshTokens.CheckNotExpired(ctx, record); expiryErr != nil {
		return TokenPair{}, expiryErr
	}

	accessToken, err := engine.codec.Mint(record.Username, PurposeAccess, engine.config.AccessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth.refresh.mint: %w", err)
	}
	nextRefreshToken := refreshToken
	if engine.config.RotateRefreshTokens {
		rotated, issueErr := engine.refreshTokens.Issue(ctx, User{ID: record.UserID, Username: record.Username})
		if issueErr != nil {
			return TokenPair{}, fmt.Errorf("auth.refresh.rotate: %w", issueErr)
		}
		nextRefreshToken = rotated.Token
	}
	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: nextRefreshToken,
		ExpiresIn:    engine.config.AccessTTL,
	}, nil
}

// Logout revokes the user's refresh token. Access tokens stay valid until they expire.
func (engine *AuthEngine) Logout(ctx context.Context, username string) error {
	err := engine.logout(ctx, strings.TrimSpace(username))
	engine.record(err, metricAuthLogoutSuccess, metricAuthLogoutFailure)
	if err != nil {
		engine.logFailure("auth.logout", err, zap.String("username", username))
	}
	return err
}

func (engine *AuthEngine) logout(ctx context.Context, username string) error {
	if username == "" {
		return ErrUserNotFound
	}
	user, err := engine.users.FindUser(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserRecordNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("auth.logout.find_user: %w", err)
	}
	return engine.refreshTokens.RevokeForUser(ctx, user)
}

// VerifyAccessToken verifies an access token statelessly.
func (engine *AuthEngine) VerifyAccessToken(accessToken string) (Claims, error) {
	return engine.codec.Verify(accessToken, PurposeAccess)
}

// Profile returns the stored user for an authenticated subject.
func (engine *AuthEngine) Profile(ctx context.Context, username string) (User, error) {
	user, err := engine.users.FindUser(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserRecordNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("auth.profile.find_user: %w", err)
	}
	return user, nil
}

// burnDecoyVerification spends a password verification when the user is unknown
// so response timing does not reveal which usernames exist.
func (engine *AuthEngine) burnDecoyVerification(password string) {
	engine.decoyOnce.Do(func() {
		digest, err := engine.hasher.Hash(uuid.NewString())
		if err == nil {
			engine.decoyDigest = digest
		}
	})
	if engine.decoyDigest != "" {
		_, _ = engine.hasher.Verify(password, engine.decoyDigest)
	}
}

func (engine *AuthEngine) record(err error, successEvent string, failureEvent string) {
	if err == nil {
		engine.metrics.Increment(successEvent)
		return
	}
	engine.metrics.Increment(failureEvent)
}

func (engine *AuthEngine) logFailure(flow string, err error, fields ...zap.Field) {
	kind := ClassifyError(err)
	fields = append(fields, zap.String("code", flow+"."+kind.String()), zap.Error(err))
	if kind == ErrorKindIntegrity {
		engine.logger.Error("auth flow failed", fields...)
		return
	}
	engine.logger.Info("auth flow denied", fields...)
}
