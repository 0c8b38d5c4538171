package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/bookworm/internal/auth"
	"github.com/MarcoPoloResearchLab/bookworm/internal/books"
	"github.com/MarcoPoloResearchLab/bookworm/internal/catalog"
	"github.com/MarcoPoloResearchLab/bookworm/internal/clubs"
	"github.com/MarcoPoloResearchLab/bookworm/internal/comments"
	"github.com/MarcoPoloResearchLab/bookworm/internal/config"
	"github.com/MarcoPoloResearchLab/bookworm/internal/database"
	"github.com/MarcoPoloResearchLab/bookworm/internal/forum"
	"github.com/MarcoPoloResearchLab/bookworm/internal/logging"
	"github.com/MarcoPoloResearchLab/bookworm/internal/metrics"
	"github.com/MarcoPoloResearchLab/bookworm/internal/readinglog"
	"github.com/MarcoPoloResearchLab/bookworm/internal/server"
	"github.com/MarcoPoloResearchLab/bookworm/internal/users"
	"github.com/MarcoPoloResearchLab/bookworm/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bookworm-api",
		Short: "Bookworm Den backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations()
		},
	})

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	flags.String("database-dsn", defaults.GetString("database.dsn"), "Database DSN or SQLite path")
	flags.Int("session-ttl-minutes", defaults.GetInt("session.ttl_minutes"), "Session token TTL in minutes")
	flags.String("signing-secret", "", "Session signing secret (overrides env)")
	flags.String("catalog-api-key", "", "Google Books API key")
	flags.String("redis-address", "", "Redis address for the catalog cache; empty disables caching")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("log-format", defaults.GetString("log.format"), "Log format (json, console)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "session.ttl_minutes", "session-ttl-minutes")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
	bindFlag(cmd, "catalog.api_key", "catalog-api-key")
	bindFlag(cmd, "cache.redis_address", "redis-address")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func loadRuntime() (config.AppConfig, *zap.Logger, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	return appConfig, logger, nil
}

func openDatabase(appConfig config.AppConfig, logger *zap.Logger) (*gorm.DB, func(), error) {
	db, err := database.Open(database.Config{Driver: appConfig.DatabaseDriver, DSN: appConfig.DatabaseDSN}, logger)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = sqlDB.Close() }, nil
}

func runMigrations() error {
	appConfig, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	_, closeDB, err := openDatabase(appConfig, logger)
	if err != nil {
		logger.Error("migration failed", zap.Error(err))
		return err
	}
	closeDB()
	logger.Info("schema is up to date", zap.String("driver", appConfig.DatabaseDriver))
	return nil
}

func runServer(ctx context.Context) error {
	appConfig, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, closeDB, err := openDatabase(appConfig, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SessionSecret),
		Issuer:        "bookworm-auth",
		Audience:      "bookworm-api",
		TokenTTL:      appConfig.SessionTTL,
	})
	if err != nil {
		return err
	}
	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		Tokens:     tokenIssuer,
		CookieName: appConfig.SessionCookieName,
	})
	if err != nil {
		return err
	}

	var cache catalog.Cache
	if appConfig.CacheRedisAddress != "" {
		redisCache := catalog.NewRedisCache(appConfig.CacheRedisAddress)
		defer redisCache.Close() //nolint:errcheck
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisCache.Ping(pingCtx); err != nil {
			logger.Warn("catalog cache unreachable, continuing without it", zap.String("address", appConfig.CacheRedisAddress), zap.Error(err))
		} else {
			cache = redisCache
		}
		cancel()
	}
	bookCatalog := catalog.NewClient(catalog.Config{
		BaseURL:           appConfig.CatalogBaseURL,
		APIKey:            appConfig.CatalogAPIKey,
		RequestsPerSecond: appConfig.CatalogRatePerSec,
		Timeout:           appConfig.CatalogTimeout,
		Cache:             cache,
		CacheTTL:          appConfig.CacheTTL,
		Logger:            logger,
	})

	validate := validation.New()
	usersService, err := users.NewService(users.ServiceConfig{
		Database:  db,
		Hasher:    auth.NewBcryptHasher(bcrypt.DefaultCost),
		Validator: validate,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	booksService, err := books.NewService(books.ServiceConfig{Database: db, Catalog: bookCatalog, Logger: logger})
	if err != nil {
		return err
	}
	readingLogService, err := readinglog.NewService(readinglog.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	commentsService, err := comments.NewService(comments.ServiceConfig{Database: db, Clock: time.Now, Logger: logger})
	if err != nil {
		return err
	}
	clubsService, err := clubs.NewService(clubs.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	forumService, err := forum.NewService(forum.ServiceConfig{
		Database: db,
		Access:   clubsService,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:       tokenIssuer,
		Validator:      sessionValidator,
		Users:          usersService,
		Books:          booksService,
		ReadingLog:     readingLogService,
		Comments:       commentsService,
		Clubs:          clubsService,
		Forum:          forumService,
		Catalog:        bookCatalog,
		Metrics:        metrics.New(),
		Validate:       validate,
		AllowedOrigins: appConfig.CORSAllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
