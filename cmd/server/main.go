package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	ginapi "github.com/pilab-dev/shadow-auth/api/gin"
	"github.com/pilab-dev/shadow-auth/cache"
	"github.com/pilab-dev/shadow-auth/cache/redis"
	"github.com/pilab-dev/shadow-auth/config"
	"github.com/pilab-dev/shadow-auth/domain"
	"github.com/pilab-dev/shadow-auth/internal/auth"
	"github.com/pilab-dev/shadow-auth/internal/captcha"
	"github.com/pilab-dev/shadow-auth/internal/federation"
	"github.com/pilab-dev/shadow-auth/internal/metrics"
	"github.com/pilab-dev/shadow-auth/internal/server"
	"github.com/pilab-dev/shadow-auth/internal/telemetry"
	"github.com/pilab-dev/shadow-auth/log"
	"github.com/pilab-dev/shadow-auth/mongodb"
	"github.com/pilab-dev/shadow-auth/services"
	"github.com/pilab-dev/shadow-auth/tracing"
)

const appName = "shadow-auth"

var (
	appLogger      log.Logger
	httpServer     *http.Server
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	challengeStore cache.ChallengeStore
	redisClient    *goredis.Client
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		stdLog := zerolog.New(os.Stdout).With().Timestamp().Logger()
		stdLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, ok := log.ParseLevel(cfg.LogLevel)
	appLogger = log.NewZerologAdapter(logLevel, cfg.LogPretty)
	if !ok {
		appLogger.Warn(context.Background(), "Invalid LOG_LEVEL configured, defaulting to 'info'", log.Fields{
			"configured_log_level": cfg.LogLevel,
		})
	}

	if err := cfg.Validate(); err != nil {
		appLogger.Fatal(context.Background(), "Invalid configuration", err)
	}

	appLogger.Info(context.Background(), "Starting shadow-auth server...", log.Fields{
		"http_port":       cfg.HTTPPort,
		"mongo_db_name":   cfg.MongoDBName,
		"challenge_store": cfg.ChallengeStore,
		"google_enabled":  cfg.GoogleClientID != "",
		"otel_service":    cfg.OtelServiceName,
		"version":         cfg.Version,
	})

	tracerProvider, err = tracing.InitTracerProvider(cfg.OtelServiceName, nil)
	if err != nil {
		appLogger.Fatal(context.Background(), "Failed to initialize TracerProvider", err)
	}

	metrics.InitCustomMetrics(prometheus.DefaultRegisterer)
	meterProvider, err = telemetry.InitMeterProvider(prometheus.DefaultRegisterer)
	if err != nil {
		appLogger.Fatal(context.Background(), "Failed to initialize MeterProvider", err)
	}

	// Background work such as JWKS refreshes lives until shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	authAPI, statusAPI, err := buildAPIs(ctx, cfg)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize dependencies", err)
	}

	httpServer = server.NewHTTPServer(cfg, appLogger, server.Options{
		Auth:   authAPI,
		Status: statusAPI,
	})
	go func() {
		appLogger.Info(context.Background(), fmt.Sprintf("HTTP server listening on port %s", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal(context.Background(), "Failed to start HTTP server", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-quit

	appLogger.Info(context.Background(), fmt.Sprintf("Received signal: %v. Shutting down server...", receivedSignal))
	shutdown()
}

func buildAPIs(ctx context.Context, cfg *config.ServerConfig) (*ginapi.AuthAPI, *ginapi.StatusAPI, error) {
	if err := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName, cfg.MongoTimeout); err != nil {
		return nil, nil, fmt.Errorf("mongodb: %w", err)
	}

	identities, err := mongodb.NewIdentityRepository(ctx, mongodb.GetDB(), cfg.MongoTimeout)
	if err != nil {
		return nil, nil, err
	}

	challengeStore, err = newChallengeStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	renderer, err := captcha.NewRenderer(captcha.DefaultOptions())
	if err != nil {
		return nil, nil, err
	}

	tokens, err := services.NewTokenService(cfg.JWTSecretKey, cfg.JWTIssuer, services.WithKeyID(cfg.JWTKeyID))
	if err != nil {
		return nil, nil, err
	}

	verifier, err := newFederatedVerifier(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	authService := services.NewAuthService(
		identities,
		services.NewChallengeService(challengeStore, renderer, cfg.ChallengeTTL),
		auth.NewBcryptPasswordHasher(cfg.BcryptCost),
		tokens,
		verifier,
		services.AuthConfig{
			LocalTokenTTL:     cfg.LocalTokenTTL,
			FederatedTokenTTL: cfg.FederatedTokenTTL,
		},
	)

	return ginapi.NewAuthAPI(authService), ginapi.NewStatusAPI(appName, cfg.Version, identities), nil
}

func newChallengeStore(ctx context.Context, cfg *config.ServerConfig) (cache.ChallengeStore, error) {
	if cfg.ChallengeStore != "redis" {
		return cache.NewMemoryChallengeStore(cfg.ChallengeTTL), nil
	}

	redisClient = goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		appLogger.Warn(ctx, "Redis not reachable yet, challenges fail until it is", log.Fields{"error": err.Error()})
	}
	return redis.NewChallengeStore(redisClient, cfg.RedisPrefix, cfg.ChallengeTTL), nil
}

func newFederatedVerifier(ctx context.Context, cfg *config.ServerConfig) (*federation.Verifier, error) {
	verifier := federation.NewVerifier(cfg.FederationTimeout)

	if cfg.GoogleClientID != "" {
		google, err := federation.NewGoogleVerifier(ctx, federation.GoogleConfig{
			ClientID: cfg.GoogleClientID,
			Issuer:   cfg.GoogleIssuer,
			JWKSURL:  cfg.GoogleJWKSURL,
			// The verification deadline fires first; the client timeout only
			// bounds key refreshes that outlive a request.
			HTTPClient: &http.Client{
				Timeout: 2 * cfg.FederationTimeout,
			},
		})
		if err != nil {
			return nil, err
		}
		verifier.Register(domain.OriginGoogle, google)
	} else {
		appLogger.Warn(ctx, "GOOGLE_CLIENT_ID not set, Google sign-in disabled")
	}

	verifier.Register(domain.OriginApple, federation.NewAppleVerifier())
	return verifier, nil
}

func shutdown() {
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if httpServer != nil {
		appLogger.Info(shutdownCtx, "Shutting down HTTP server...")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error(shutdownCtx, "HTTP server shutdown error", err)
		}
	}

	if challengeStore != nil {
		if err := challengeStore.Close(); err != nil {
			appLogger.Error(shutdownCtx, "Challenge store close error", err)
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			appLogger.Error(shutdownCtx, "Redis client close error", err)
		}
	}

	telemetry.Shutdown(shutdownCtx, tracerProvider, meterProvider)

	appLogger.Info(shutdownCtx, "Closing MongoDB connection...")
	mongodb.CloseMongoDB(shutdownCtx)

	appLogger.Info(shutdownCtx, "Server gracefully stopped.")
}
