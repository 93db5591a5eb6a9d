package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort    string
	AppEnv     string
	TrustProxy bool // honour X-Forwarded-For / X-Real-IP when resolving the client address

	StoreBackend        string // "dynamo" | "memory"
	AWSRegion           string
	AWSEndpointURL      string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID      string
	AWSSecretKey        string
	DynamoTables        DynamoTables
	StoreQueryTimeout   time.Duration
	StoreConnectTimeout time.Duration

	S3BucketName string
	ExportURLTTL time.Duration

	JWTSecret string
	JWTExpiry time.Duration

	OTPTTL           time.Duration
	OTPRequestLimit  int
	OTPRequestWindow time.Duration
	RedisURL         string // optional; in-memory limiter when empty

	MailProvider        string // "smtp" | "sendgrid"
	MailFromName        string
	MailFromAddress     string
	DeliveryTimeout     time.Duration
	SMTPHost            string
	SMTPPort            string
	SMTPUsername        string
	SMTPPassword        string
	SMTPRequireTLS      bool
	SMTPConnectTimeout  time.Duration
	SMTPGreetingTimeout time.Duration
	SMTPSocketTimeout   time.Duration
	SendGridAPIKey      string

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Accounts     string
	PendingCodes string
	Activities   string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:    getEnv("APP_PORT", "3001"),
		AppEnv:     getEnv("APP_ENV", "development"),
		TrustProxy: getEnvBool("TRUST_PROXY", false),

		StoreBackend:   getEnv("STORE_BACKEND", "dynamo"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Accounts:     getEnv("DYNAMO_TABLE_ACCOUNTS", "accounts"),
			PendingCodes: getEnv("DYNAMO_TABLE_PENDING_CODES", "pending_codes"),
			Activities:   getEnv("DYNAMO_TABLE_ACTIVITIES", "activities"),
		},
		StoreQueryTimeout:   getEnvDuration("STORE_QUERY_TIMEOUT", 10*time.Second),
		StoreConnectTimeout: getEnvDuration("STORE_CONNECT_TIMEOUT", 5*time.Second),

		S3BucketName: getEnv("S3_BUCKET_NAME", "checkcalendar-exports"),
		ExportURLTTL: getEnvDuration("EXPORT_URL_TTL", 15*time.Minute),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTExpiry: time.Duration(getEnvInt("JWT_EXPIRY_DAYS", 7)) * 24 * time.Hour,

		OTPTTL:           getEnvDuration("OTP_TTL", 5*time.Minute),
		OTPRequestLimit:  getEnvInt("OTP_REQUEST_LIMIT", 10),
		OTPRequestWindow: getEnvDuration("OTP_REQUEST_WINDOW", 15*time.Minute),
		RedisURL:         getEnv("REDIS_URL", ""),

		MailProvider:        getEnv("MAIL_PROVIDER", "smtp"),
		MailFromName:        getEnv("MAIL_FROM_NAME", "CheckCalendar Pro"),
		MailFromAddress:     getEnv("MAIL_FROM_ADDRESS", "noreply@example.com"),
		DeliveryTimeout:     getEnvDuration("MAIL_DELIVERY_TIMEOUT", 12*time.Second),
		SMTPHost:            getEnv("SMTP_HOST", "localhost"),
		SMTPPort:            getEnv("SMTP_PORT", "1025"),
		SMTPUsername:        getEnv("SMTP_USERNAME", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
		SMTPRequireTLS:      getEnvBool("SMTP_REQUIRE_TLS", false),
		SMTPConnectTimeout:  getEnvDuration("SMTP_CONNECT_TIMEOUT", 8*time.Second),
		SMTPGreetingTimeout: getEnvDuration("SMTP_GREETING_TIMEOUT", 5*time.Second),
		SMTPSocketTimeout:   getEnvDuration("SMTP_SOCKET_TIMEOUT", 10*time.Second),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

// IsProduction reports whether the service runs with APP_ENV=production.
func (c *Config) IsProduction() bool { return c.AppEnv == "production" }

// Validate rejects configurations the server must not start with.
func (c *Config) Validate() error {
	if c.JWTSecret == "" && c.AppEnv != "development" {
		return fmt.Errorf("JWT_SECRET is required when APP_ENV=%s", c.AppEnv)
	}
	switch c.StoreBackend {
	case "dynamo":
	case "memory":
		if c.IsProduction() {
			return fmt.Errorf("STORE_BACKEND=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.MailProvider {
	case "smtp":
	case "sendgrid":
		if c.SendGridAPIKey == "" {
			return fmt.Errorf("SENDGRID_API_KEY is required when MAIL_PROVIDER=sendgrid")
		}
	default:
		return fmt.Errorf("unknown MAIL_PROVIDER %q", c.MailProvider)
	}
	if c.OTPRequestLimit < 1 {
		return fmt.Errorf("OTP_REQUEST_LIMIT must be positive")
	}
	return nil
}

// EnsureJWTSecret fills an empty JWTSecret with a random per-process value
// and reports whether it did. Tokens signed with it stop verifying after a
// restart. Validate only lets an empty secret through in development.
func (c *Config) EnsureJWTSecret() (bool, error) {
	if c.JWTSecret != "" {
		return false, nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return false, fmt.Errorf("generate jwt secret: %w", err)
	}
	c.JWTSecret = hex.EncodeToString(b)
	return true, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("12s", "5m").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
