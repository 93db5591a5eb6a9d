package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "3001", cfg.AppPort)
	assert.Equal(t, 5*time.Minute, cfg.OTPTTL)
	assert.Equal(t, 10, cfg.OTPRequestLimit)
	assert.Equal(t, 15*time.Minute, cfg.OTPRequestWindow)
	assert.Equal(t, 7*24*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, 12*time.Second, cfg.DeliveryTimeout)
	assert.Equal(t, 8*time.Second, cfg.SMTPConnectTimeout)
	assert.Equal(t, 5*time.Second, cfg.SMTPGreetingTimeout)
	assert.Equal(t, 10*time.Second, cfg.SMTPSocketTimeout)
	assert.Equal(t, 10*time.Second, cfg.StoreQueryTimeout)
	assert.Equal(t, 5*time.Second, cfg.StoreConnectTimeout)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("OTP_TTL", "90s")
	t.Setenv("OTP_REQUEST_LIMIT", "3")
	t.Setenv("TRUST_PROXY", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg := Load()

	assert.Equal(t, 90*time.Second, cfg.OTPTTL)
	assert.Equal(t, 3, cfg.OTPRequestLimit)
	assert.True(t, cfg.TrustProxy)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("OTP_TTL", "five minutes")
	t.Setenv("OTP_REQUEST_LIMIT", "ten")

	cfg := Load()

	assert.Equal(t, 5*time.Minute, cfg.OTPTTL)
	assert.Equal(t, 10, cfg.OTPRequestLimit)
}

func TestValidate(t *testing.T) {
	t.Run("development without secret is allowed", func(t *testing.T) {
		cfg := &Config{AppEnv: "development", StoreBackend: "dynamo", MailProvider: "smtp", OTPRequestLimit: 10}
		require.NoError(t, cfg.Validate())
	})
	t.Run("production requires secret", func(t *testing.T) {
		cfg := &Config{AppEnv: "production", StoreBackend: "dynamo", MailProvider: "smtp", OTPRequestLimit: 10}
		assert.ErrorContains(t, cfg.Validate(), "JWT_SECRET")
	})
	t.Run("sendgrid requires api key", func(t *testing.T) {
		cfg := &Config{AppEnv: "development", StoreBackend: "dynamo", MailProvider: "sendgrid", OTPRequestLimit: 10}
		assert.ErrorContains(t, cfg.Validate(), "SENDGRID_API_KEY")
	})
	t.Run("memory store refused in production", func(t *testing.T) {
		cfg := &Config{AppEnv: "production", JWTSecret: "x", StoreBackend: "memory", MailProvider: "smtp", OTPRequestLimit: 10}
		assert.ErrorContains(t, cfg.Validate(), "STORE_BACKEND")
	})
	t.Run("unknown provider", func(t *testing.T) {
		cfg := &Config{AppEnv: "development", StoreBackend: "dynamo", MailProvider: "pigeon", OTPRequestLimit: 10}
		assert.ErrorContains(t, cfg.Validate(), "MAIL_PROVIDER")
	})
}

func TestEnsureJWTSecret_DefaultEnvNeverUsesKnownSecret(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("JWT_SECRET", "")

	first := Load()
	require.NoError(t, first.Validate())
	generated, err := first.EnsureJWTSecret()
	require.NoError(t, err)
	assert.True(t, generated)
	assert.Len(t, first.JWTSecret, 64)

	second := Load()
	_, err = second.EnsureJWTSecret()
	require.NoError(t, err)
	assert.NotEqual(t, first.JWTSecret, second.JWTSecret)
}

func TestEnsureJWTSecret_KeepsConfiguredSecret(t *testing.T) {
	cfg := &Config{JWTSecret: "configured"}

	generated, err := cfg.EnsureJWTSecret()

	require.NoError(t, err)
	assert.False(t, generated)
	assert.Equal(t, "configured", cfg.JWTSecret)
}
