// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Directory modes.
const (
	DirectoryLocal  = "local"
	DirectoryRemote = "remote"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the public auth service listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// MetricsAddr serves /metrics over HTTP; empty disables it.
	MetricsAddr string `mapstructure:"METRICS_ADDR"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// DatabaseURL is the Postgres DSN. Empty runs sessions and the local directory in memory.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL (redis://...) backs OTP challenges and the token revocation list. Empty keeps them in memory.
	RedisURL string `mapstructure:"REDIS_URL"`

	// JWTSecret signs tokens with HS256 when no key pair is configured.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTExpiresTime is the token lifetime. An expired token cannot be rotated, so keep it at
	// least as long as SessionTTL.
	JWTExpiresTime time.Duration `mapstructure:"JWT_EXPIRES_TIME"`
	// SessionTTL is how long a session stays refreshable after login or its last rotation.
	SessionTTL time.Duration `mapstructure:"SESSION_TTL"`
	// OTPTTL is how long a verification or reset code stays valid.
	OTPTTL time.Duration `mapstructure:"OTP_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// KafkaBrokers is a comma-separated list of broker addresses. Empty disables notifications
	// and the account update worker.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// NotificationTopicPrefix is prepended to event names to form notification topics.
	NotificationTopicPrefix string `mapstructure:"NOTIFICATION_TOPIC_PREFIX"`
	// AccountUpdateTopic carries account update commands for the worker.
	AccountUpdateTopic string `mapstructure:"ACCOUNT_UPDATE_TOPIC"`
	// KafkaGroupID is the consumer group ID for the worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// DirectoryMode is "local" (accounts in this process's database) or "remote".
	DirectoryMode string `mapstructure:"DIRECTORY_MODE"`
	// DirectoryService is the logical service name resolved by discovery.
	DirectoryService string `mapstructure:"DIRECTORY_SERVICE"`
	// DirectoryEndpoints is a comma-separated static endpoint list (host:port).
	DirectoryEndpoints string `mapstructure:"DIRECTORY_ENDPOINTS"`
	// DirectoryDNSDomain enables SRV discovery under _grpc._tcp.<service>.<domain>.
	DirectoryDNSDomain string `mapstructure:"DIRECTORY_DNS_DOMAIN"`
	// DirectoryAttemptTimeout bounds each attempt against one directory endpoint.
	DirectoryAttemptTimeout time.Duration `mapstructure:"DIRECTORY_ATTEMPT_TIMEOUT"`
	// DirectoryGRPCAddr is where cmd/directory serves the directory service.
	DirectoryGRPCAddr string `mapstructure:"DIRECTORY_GRPC_ADDR"`

	// ClientBaseURL is the web client's origin used in verification and OAuth redirect links.
	ClientBaseURL string `mapstructure:"CLIENT_BASE_URL"`
	// AccountVerifyPath is the client page that completes account verification.
	AccountVerifyPath string `mapstructure:"ACCOUNT_VERIFY_PATH"`
	// OAuthWebhooksPath is the client page that receives the token after an OAuth login.
	OAuthWebhooksPath string `mapstructure:"OAUTH_WEBHOOKS_PATH"`

	// Google OAuth client. Empty GoogleClientID disables the provider.
	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `mapstructure:"GOOGLE_REDIRECT_URL"`

	// OTLP collector. Empty endpoint keeps telemetry local.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`
}

var defaults = map[string]any{
	"GRPC_ADDR":                   ":8080",
	"METRICS_ADDR":                ":9090",
	"APP_ENV":                     "",
	"DATABASE_URL":                "",
	"REDIS_URL":                   "",
	"JWT_SECRET":                  "",
	"JWT_PRIVATE_KEY":             "",
	"JWT_PUBLIC_KEY":              "",
	"JWT_ISSUER":                  "credential-authority",
	"JWT_EXPIRES_TIME":            "336h",
	"SESSION_TTL":                 "336h", // 14d
	"OTP_TTL":                     "15m",
	"BCRYPT_COST":                 12,
	"KAFKA_BROKERS":               "",
	"NOTIFICATION_TOPIC_PREFIX":   "noti.email.",
	"ACCOUNT_UPDATE_TOPIC":        "auth.account.update",
	"KAFKA_GROUP_ID":              "auth-account-worker",
	"DIRECTORY_MODE":              DirectoryLocal,
	"DIRECTORY_SERVICE":           "user",
	"DIRECTORY_ENDPOINTS":         "",
	"DIRECTORY_DNS_DOMAIN":        "",
	"DIRECTORY_ATTEMPT_TIMEOUT":   "2s",
	"DIRECTORY_GRPC_ADDR":         ":8081",
	"CLIENT_BASE_URL":             "http://localhost:3000",
	"ACCOUNT_VERIFY_PATH":         "verify-account",
	"OAUTH_WEBHOOKS_PATH":         "oauth/callback",
	"GOOGLE_CLIENT_ID":            "",
	"GOOGLE_CLIENT_SECRET":        "",
	"GOOGLE_REDIRECT_URL":         "",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"OTEL_EXPORTER_OTLP_INSECURE": false,
	"OTEL_SERVICE_NAME":           "credential-authority",
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if (c.JWTPrivateKey == "") != (c.JWTPublicKey == "") {
		return errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set together")
	}
	if c.JWTExpiresTime <= 0 || c.SessionTTL <= 0 || c.OTPTTL <= 0 {
		return errors.New("config: JWT_EXPIRES_TIME, SESSION_TTL and OTP_TTL must be positive")
	}
	switch c.DirectoryMode {
	case DirectoryLocal:
	case DirectoryRemote:
		if len(c.DirectoryEndpointsList()) == 0 && c.DirectoryDNSDomain == "" {
			return errors.New("config: DIRECTORY_MODE=remote needs DIRECTORY_ENDPOINTS or DIRECTORY_DNS_DOMAIN")
		}
	default:
		return errors.New("config: DIRECTORY_MODE must be local or remote")
	}
	if c.DirectoryAttemptTimeout <= 0 {
		return errors.New("config: DIRECTORY_ATTEMPT_TIMEOUT must be positive")
	}
	return nil
}

// ValidateSigning checks that a token signing key is configured. Only the processes that
// issue tokens call it.
func (c *Config) ValidateSigning() error {
	if c.JWTSecret == "" && c.JWTPrivateKey == "" {
		return errors.New("config: JWT_SECRET or JWT_PRIVATE_KEY/JWT_PUBLIC_KEY must be set")
	}
	if c.Env == "production" && c.JWTPrivateKey == "" && len(c.JWTSecret) < 32 {
		return errors.New("config: JWT_SECRET must be at least 32 bytes when APP_ENV=production")
	}
	return nil
}

// UsesKeyPair reports whether tokens are signed with an asymmetric key pair.
func (c *Config) UsesKeyPair() bool {
	return c.JWTPrivateKey != "" && c.JWTPublicKey != ""
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

// DirectoryEndpointsList returns the static directory endpoints.
func (c *Config) DirectoryEndpointsList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.DirectoryEndpoints)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
