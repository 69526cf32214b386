package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MinSecretLength is the minimum accepted length of JWT_SECRET_KEY in bytes.
const MinSecretLength = 32

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling.
type ServerConfig struct {
	HTTPPort        string        `mapstructure:"HTTP_PORT"`
	MongoURI        string        `mapstructure:"MONGO_URI"`
	MongoDBName     string        `mapstructure:"MONGO_DB_NAME"`
	MongoTimeout    time.Duration `mapstructure:"MONGO_TIMEOUT"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	LogPretty       bool          `mapstructure:"LOG_PRETTY"`
	OtelServiceName string        `mapstructure:"OTEL_SERVICE_NAME"`
	Version         string        `mapstructure:"APP_VERSION"`

	// Tokens
	JWTSecretKey      string        `mapstructure:"JWT_SECRET_KEY"`
	JWTIssuer         string        `mapstructure:"JWT_ISSUER"`
	JWTKeyID          string        `mapstructure:"JWT_KEY_ID"` // bump to invalidate every issued token
	LocalTokenTTL     time.Duration `mapstructure:"LOCAL_TOKEN_TTL"`
	FederatedTokenTTL time.Duration `mapstructure:"FEDERATED_TOKEN_TTL"`

	// Challenges
	ChallengeTTL   time.Duration `mapstructure:"CHALLENGE_TTL"`
	ChallengeStore string        `mapstructure:"CHALLENGE_STORE"` // memory or redis
	RedisAddr      string        `mapstructure:"REDIS_ADDR"`
	RedisPassword  string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int           `mapstructure:"REDIS_DB"`
	RedisPrefix    string        `mapstructure:"REDIS_PREFIX"`

	// Federation
	GoogleClientID    string        `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleIssuer      string        `mapstructure:"GOOGLE_ISSUER"`
	GoogleJWKSURL     string        `mapstructure:"GOOGLE_JWKS_URL"`
	AppleClientID     string        `mapstructure:"APPLE_CLIENT_ID"`
	FederationTimeout time.Duration `mapstructure:"FEDERATION_TIMEOUT"`

	BcryptCost int `mapstructure:"BCRYPT_COST"`
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*ServerConfig, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/shadow-auth/")
	v.AddConfigPath("$HOME/.shadow-auth")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// Unmarshal only sees keys viper knows about, so bind the ones without defaults.
	for _, key := range []string{"JWT_SECRET_KEY", "REDIS_PASSWORD", "GOOGLE_CLIENT_ID", "APPLE_CLIENT_ID"} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB_NAME", "shadow_auth")
	v.SetDefault("MONGO_TIMEOUT", 5*time.Second)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("OTEL_SERVICE_NAME", "shadow-auth")
	v.SetDefault("APP_VERSION", "dev")

	v.SetDefault("JWT_ISSUER", "shadow-auth")
	v.SetDefault("JWT_KEY_ID", "v1")
	v.SetDefault("LOCAL_TOKEN_TTL", 24*time.Hour)
	v.SetDefault("FEDERATED_TOKEN_TTL", 7*24*time.Hour)

	v.SetDefault("CHALLENGE_TTL", 5*time.Minute)
	v.SetDefault("CHALLENGE_STORE", "memory")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PREFIX", "shadow-auth")

	v.SetDefault("GOOGLE_ISSUER", "https://accounts.google.com")
	v.SetDefault("GOOGLE_JWKS_URL", "https://www.googleapis.com/oauth2/v3/certs")
	v.SetDefault("FEDERATION_TIMEOUT", 5*time.Second)

	v.SetDefault("BCRYPT_COST", 10)
}

// Validate reports configuration that the server cannot start with.
func (c *ServerConfig) Validate() error {
	var errs []error

	if c.JWTSecretKey == "" {
		errs = append(errs, errors.New("JWT_SECRET_KEY is required"))
	} else if len(c.JWTSecretKey) < MinSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET_KEY must be at least %d bytes", MinSecretLength))
	}

	switch c.ChallengeStore {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when CHALLENGE_STORE is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("CHALLENGE_STORE must be memory or redis, got %q", c.ChallengeStore))
	}

	if c.LocalTokenTTL <= 0 || c.FederatedTokenTTL <= 0 || c.ChallengeTTL <= 0 {
		errs = append(errs, errors.New("token and challenge lifetimes must be positive"))
	}

	return errors.Join(errs...)
}
