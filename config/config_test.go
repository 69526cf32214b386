package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 5*time.Second, cfg.MongoTimeout)
	assert.Equal(t, 24*time.Hour, cfg.LocalTokenTTL)
	assert.Equal(t, 168*time.Hour, cfg.FederatedTokenTTL)
	assert.Equal(t, 5*time.Minute, cfg.ChallengeTTL)
	assert.Equal(t, "memory", cfg.ChallengeStore)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Empty(t, cfg.JWTSecretKey)
	assert.Equal(t, "v1", cfg.JWTKeyID)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("JWT_SECRET_KEY", strings.Repeat("s", 40))
	t.Setenv("GOOGLE_CLIENT_ID", "client.apps.googleusercontent.com")
	t.Setenv("CHALLENGE_STORE", "redis")
	t.Setenv("LOCAL_TOKEN_TTL", "1h")
	t.Setenv("JWT_KEY_ID", "2026-10")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, strings.Repeat("s", 40), cfg.JWTSecretKey)
	assert.Equal(t, "client.apps.googleusercontent.com", cfg.GoogleClientID)
	assert.Equal(t, "redis", cfg.ChallengeStore)
	assert.Equal(t, time.Hour, cfg.LocalTokenTTL)
	assert.Equal(t, "2026-10", cfg.JWTKeyID)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	valid := func() *ServerConfig {
		return &ServerConfig{
			JWTSecretKey:      strings.Repeat("k", MinSecretLength),
			ChallengeStore:    "memory",
			LocalTokenTTL:     time.Hour,
			FederatedTokenTTL: time.Hour,
			ChallengeTTL:      time.Minute,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*ServerConfig) {}},
		{name: "missing secret", mutate: func(c *ServerConfig) { c.JWTSecretKey = "" }, wantErr: "JWT_SECRET_KEY is required"},
		{name: "short secret", mutate: func(c *ServerConfig) { c.JWTSecretKey = "short" }, wantErr: "at least 32 bytes"},
		{name: "unknown store", mutate: func(c *ServerConfig) { c.ChallengeStore = "disk" }, wantErr: "CHALLENGE_STORE"},
		{name: "redis without addr", mutate: func(c *ServerConfig) { c.ChallengeStore = "redis" }, wantErr: "REDIS_ADDR"},
		{name: "zero ttl", mutate: func(c *ServerConfig) { c.ChallengeTTL = 0 }, wantErr: "lifetimes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
