package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	oauth2 "github.com/ohmage/oauth2"
	echoapi "github.com/ohmage/oauth2/api/echo"
	"github.com/ohmage/oauth2/cache"
	cacheredis "github.com/ohmage/oauth2/cache/redis"
	"github.com/ohmage/oauth2/config"
	"github.com/ohmage/oauth2/internal/metrics"
	"github.com/ohmage/oauth2/mongodb"
	"github.com/ohmage/oauth2/tracing"
)

// sweepInterval is how often expired codes and tokens are purged. Expiry
// is always enforced at read time; the sweep only reclaims storage.
const sweepInterval = 15 * time.Minute

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	initLogger(cfg)
	log.Info().
		Str("http_port", cfg.HTTPPort).
		Str("mongo_db_name", cfg.MongoDBName).
		Str("log_level", cfg.LogLevel).
		Msg("Starting authorization server")

	tracerProvider, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize TracerProvider")
	}

	ctx := context.Background()
	if err := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize MongoDB connection")
	}
	db := mongodb.GetDB()
	if err := mongodb.EnsureIndexes(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("Failed to create MongoDB indexes")
	}

	clientRepo := mongodb.NewClientRepository(db)
	codeRepo := mongodb.NewCodeRepository(db)
	tokenRepo := mongodb.NewTokenRepository(db)
	userRepo := mongodb.NewUserRepository(db)
	schemaRegistry := mongodb.NewSchemaRegistry(db)

	var tokenCache cache.TokenCache
	if cfg.RedisAddr != "" {
		redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		tokenCache = cacheredis.NewTokenCache(redisClient, cfg.RedisPrefix)
		log.Info().Str("redis_addr", cfg.RedisAddr).Msg("Token cache enabled")
	}

	metrics.InitCustomMetrics(prometheus.DefaultRegisterer)

	engine := oauth2.NewAuthorizationEngine(
		clientRepo, codeRepo, tokenRepo, schemaRegistry,
		oauth2.WithCodeTTL(time.Duration(cfg.CodeTTLMin)*time.Minute),
		oauth2.WithTokenTTL(time.Duration(cfg.TokenTTLMin)*time.Minute),
	)
	clientService := oauth2.NewClientService(clientRepo, cfg.RequireHTTPSRedirects)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomiddleware.Recover())

	oauthAPI := echoapi.NewOAuth2API(engine, clientService, userRepo, tokenRepo, tokenCache)
	oauthAPI.RegisterRoutes(e)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/health", func(c echo.Context) error {
		if err := mongodb.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "down"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	go sweepExpired(sweepCtx, codeRepo, tokenRepo)

	go func() {
		if err := e.Start(":" + cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("Shutting down server")

	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("TracerProvider shutdown error")
	}
	mongodb.CloseMongoDB(shutdownCtx)

	log.Info().Msg("Server gracefully stopped")
}

func initLogger(cfg *config.ServerConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
		log.Warn().Str("configured_log_level", cfg.LogLevel).Msg("Invalid LOG_LEVEL configured, defaulting to 'info'")
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// sweepExpired periodically deletes expired codes and tokens.
func sweepExpired(ctx context.Context, codes *mongodb.CodeRepository, tokens *mongodb.TokenRepository) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := codes.DeleteExpiredCodes(ctx); err != nil {
				log.Warn().Err(err).Msg("Failed to delete expired authorization codes")
			}
			if err := tokens.DeleteExpiredTokens(ctx); err != nil {
				log.Warn().Err(err).Msg("Failed to delete expired authorization tokens")
			}
		}
	}
}
