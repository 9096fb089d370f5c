package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tyemirov/passauth/internal/authkit"
	"github.com/tyemirov/passauth/internal/authkitpg"
	"github.com/tyemirov/passauth/internal/web"
	"github.com/tyemirov/passauth/pkg/sessionvalidator"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "passauth",
		Short:   "Password auth service issuing short-lived JWT access tokens and single-use-per-user refresh tokens",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("access_signing_key", "", "HS256 signing secret for access tokens")
	rootCmd.Flags().String("refresh_signing_key", "", "HS256 signing secret for refresh-purpose tokens; must differ from the access key")
	rootCmd.Flags().String("token_issuer", defaultTokenIssuer, "Issuer claim written into and required on every token")
	rootCmd.Flags().Duration("access_ttl", 15*time.Minute, "Access token TTL")
	rootCmd.Flags().Duration("refresh_ttl", 7*24*time.Hour, "Refresh token TTL")
	rootCmd.Flags().Bool("rotate_refresh_tokens", false, "Issue a new refresh token on every refresh")
	rootCmd.Flags().String("database_url", "", "Database URL for users and refresh tokens (postgres:// or sqlite://; leave empty for in-memory stores)")
	rootCmd.Flags().String("refresh_store", refreshStoreAuto, "Refresh token store: auto, memory, database, pgx, or redis")
	rootCmd.Flags().String("redis_url", "", "Redis URL for the redis refresh token store")
	rootCmd.Flags().Int("bcrypt_cost", authkit.DefaultBcryptCost, "bcrypt cost for password hashing")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")

	for _, flagName := range []string{
		"listen_addr",
		"access_signing_key",
		"refresh_signing_key",
		"token_issuer",
		"access_ttl",
		"refresh_ttl",
		"rotate_refresh_tokens",
		"database_url",
		"refresh_store",
		"redis_url",
		"bcrypt_cost",
		"enable_cors",
		"cors_allowed_origins",
	} {
		_ = viper.BindPFlag(flagName, rootCmd.Flags().Lookup(flagName))
	}

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	defaultTokenIssuer = "passauth"

	refreshStoreAuto     = "auto"
	refreshStoreMemory   = "memory"
	refreshStoreDatabase = "database"
	refreshStorePgx      = "pgx"
	refreshStoreRedis    = "redis"

	configCodeMissingAccessSigningKey  = "config.missing_access_signing_key"
	configCodeMissingRefreshSigningKey = "config.missing_refresh_signing_key"
	configCodeIdenticalSigningKeys     = "config.identical_signing_keys"
	configCodeInvalidAccessTTL         = "config.invalid_access_ttl"
	configCodeInvalidRefreshTTL        = "config.invalid_refresh_ttl"
	configCodeInvalidRefreshStore      = "config.invalid_refresh_store"
	configCodeMissingDatabaseURL       = "config.missing_database_url"
	configCodeMissingRedisURL          = "config.missing_redis_url"
	configCodeInvalidBcryptCost        = "config.invalid_bcrypt_cost"
	configCodeUninitializedServerConf  = "config.uninitialized_server_config"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig reads the token configuration from viper and validates it.
func LoadServerConfig() (authkit.ServerConfig, error) {
	accessSigningKey := viper.GetString("access_signing_key")
	if accessSigningKey == "" {
		return authkit.ServerConfig{}, configError(configCodeMissingAccessSigningKey, "access_signing_key must be provided")
	}

	refreshSigningKey := viper.GetString("refresh_signing_key")
	if refreshSigningKey == "" {
		return authkit.ServerConfig{}, configError(configCodeMissingRefreshSigningKey, "refresh_signing_key must be provided")
	}
	if refreshSigningKey == accessSigningKey {
		return authkit.ServerConfig{}, configError(configCodeIdenticalSigningKeys, "access_signing_key and refresh_signing_key must differ")
	}

	accessTTL := viper.GetDuration("access_ttl")
	if accessTTL <= 0 {
		return authkit.ServerConfig{}, configError(configCodeInvalidAccessTTL, "access_ttl must be greater than zero")
	}

	refreshTTL := viper.GetDuration("refresh_ttl")
	if refreshTTL <= 0 {
		return authkit.ServerConfig{}, configError(configCodeInvalidRefreshTTL, "refresh_ttl must be greater than zero")
	}

	tokenIssuer := strings.TrimSpace(viper.GetString("token_issuer"))
	if tokenIssuer == "" {
		tokenIssuer = defaultTokenIssuer
	}

	return authkit.ServerConfig{
		SigningKeys: authkit.SigningKeys{
			AccessKey:  []byte(accessSigningKey),
			RefreshKey: []byte(refreshSigningKey),
		},
		TokenIssuer:         tokenIssuer,
		AccessTTL:           accessTTL,
		RefreshTTL:          refreshTTL,
		RotateRefreshTokens: viper.GetBool("rotate_refresh_tokens"),
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(authkit.ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	gin.SetMode(gin.ReleaseMode)
	router, cleanup, buildErr := buildRouter(commandContext, serverConfig, logger)
	if buildErr != nil {
		return buildErr
	}
	defer cleanup()

	listenAddr := viper.GetString("listen_addr")
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(stopSignals)
		select {
		case <-stopSignals:
		case <-shutdownCtx.Done():
			return
		}
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

// buildRouter wires stores, the auth engine, and HTTP routes. cleanup releases
// every connection opened along the way.
func buildRouter(ctx context.Context, serverConfig authkit.ServerConfig, logger *zap.Logger) (*gin.Engine, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var closers []func()
	cleanup := func() {
		for index := len(closers) - 1; index >= 0; index-- {
			closers[index]()
		}
	}
	fail := func(err error) (*gin.Engine, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	hasher, hasherErr := authkit.NewBcryptPasswordHasher(viper.GetInt("bcrypt_cost"))
	if hasherErr != nil {
		return fail(configError(configCodeInvalidBcryptCost, hasherErr.Error()))
	}

	databaseURL := viper.GetString("database_url")
	var database *authkit.Database
	var userStore authkit.UserStore
	if databaseURL != "" {
		openedDatabase, openErr := authkit.OpenDatabase(ctx, databaseURL)
		if openErr != nil {
			return fail(openErr)
		}
		closers = append(closers, func() { _ = openedDatabase.Close() })
		database = openedDatabase
		userStore = authkit.NewDatabaseUserStore(database)
		logger.Info("using persistent user store", zap.String("driver", database.Driver()))
	} else {
		userStore = authkit.NewMemoryUserStore()
		logger.Info("using in-memory user store")
	}

	refreshStore, closeRefreshStore, storeErr := buildRefreshStore(ctx, logger, database, databaseURL)
	if storeErr != nil {
		return fail(storeErr)
	}
	closers = append(closers, closeRefreshStore)

	clock := authkit.NewSystemClock()
	codec, codecErr := authkit.NewTokenCodec(serverConfig.SigningKeys, serverConfig.TokenIssuer, clock)
	if codecErr != nil {
		return fail(codecErr)
	}
	refreshTokens, managerErr := authkit.NewRefreshTokenManager(refreshStore, serverConfig.RefreshTTL, clock, logger)
	if managerErr != nil {
		return fail(managerErr)
	}
	engine, engineErr := authkit.NewAuthEngine(authkit.AuthEngineOptions{
		Config:        serverConfig,
		Users:         userStore,
		Hasher:        hasher,
		Codec:         codec,
		RefreshTokens: refreshTokens,
		Metrics:       authkit.NewCounterMetrics(),
		Logger:        logger,
	})
	if engineErr != nil {
		return fail(engineErr)
	}

	sessionValidator, validatorErr := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: serverConfig.SigningKeys.AccessKey,
		Issuer:     serverConfig.TokenIssuer,
		Clock:      clock,
	})
	if validatorErr != nil {
		return fail(validatorErr)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if viper.GetBool("enable_cors") {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, viper.GetStringSlice("cors_allowed_origins"))
		if corsErr != nil {
			return fail(corsErr)
		}
		router.Use(corsMiddleware)
	}

	api := router.Group("/api")
	authkit.MountAuthRoutes(api, engine, codec)
	api.GET("/me", sessionValidator.GinMiddleware(sessionvalidator.DefaultContextKey), web.HandleWhoAmI(engine, logger))

	return router, cleanup, nil
}

func buildRefreshStore(ctx context.Context, logger *zap.Logger, database *authkit.Database, databaseURL string) (authkit.RefreshTokenStore, func(), error) {
	storeKind := strings.ToLower(strings.TrimSpace(viper.GetString("refresh_store")))
	if storeKind == "" || storeKind == refreshStoreAuto {
		storeKind = refreshStoreMemory
		if database != nil {
			storeKind = refreshStoreDatabase
		}
	}

	switch storeKind {
	case refreshStoreMemory:
		logger.Info("using in-memory refresh token store")
		return authkit.NewMemoryRefreshTokenStore(), func() {}, nil
	case refreshStoreDatabase:
		if database == nil {
			return nil, nil, configError(configCodeMissingDatabaseURL, "database_url must be provided for the database refresh store")
		}
		store := authkit.NewDatabaseRefreshTokenStore(database)
		logger.Info("using persistent refresh token store", zap.String("driver", store.Driver()))
		return store, func() {}, nil
	case refreshStorePgx:
		if databaseURL == "" {
			return nil, nil, configError(configCodeMissingDatabaseURL, "database_url must be provided for the pgx refresh store")
		}
		pool, poolErr := authkitpg.BuildPool(ctx, databaseURL)
		if poolErr != nil {
			return nil, nil, poolErr
		}
		if schemaErr := authkitpg.EnsureSchema(ctx, pool); schemaErr != nil {
			pool.Close()
			return nil, nil, schemaErr
		}
		logger.Info("using pgx refresh token store")
		return authkitpg.NewPostgresRefreshTokenStore(pool), pool.Close, nil
	case refreshStoreRedis:
		redisURL := viper.GetString("redis_url")
		if redisURL == "" {
			return nil, nil, configError(configCodeMissingRedisURL, "redis_url must be provided for the redis refresh store")
		}
		client, clientErr := authkit.NewRedisClientFromURL(ctx, redisURL)
		if clientErr != nil {
			return nil, nil, clientErr
		}
		logger.Info("using redis refresh token store")
		return authkit.NewRedisRefreshTokenStore(client, ""), func() { _ = client.Close() }, nil
	default:
		return nil, nil, configError(configCodeInvalidRefreshStore, fmt.Sprintf("unsupported refresh_store %q", storeKind))
	}
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
