// Package config provides configuration for the SMS conversation service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort  int
	PublicURL string

	// Database
	DatabaseURL string

	// Provider settings
	ProviderBaseURL       string
	ProviderTimeout       time.Duration
	ConversationListLimit int
	ConversationPageSize  int

	// Resolution behavior
	ResolveCoalesce       bool
	BindSenderParticipant bool

	// Delivery status reconciliation
	StatusSweepInterval time.Duration
	StatusStaleAfter    time.Duration

	// Webhooks
	WebhookAuthToken        string
	WebhookEnforceSignature bool

	// Secrets
	SSMEnabled bool
	AWSRegion  string

	// Outbound policy
	PolicyFile string

	// Seed data
	SeedFile string

	// Stream settings
	StreamPingInterval time.Duration
	StreamReadTimeout  time.Duration
	StreamWriteTimeout time.Duration
	StreamMaxMessage   int64

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:                getEnvInt("HTTP_PORT", 8080),
		PublicURL:               strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:8080"), "/"),
		DatabaseURL:             getEnv("DATABASE_URL", "file:smscrm.db?cache=shared&mode=rwc"),
		ProviderBaseURL:         getEnv("PROVIDER_BASE_URL", ""),
		ProviderTimeout:         time.Duration(getEnvInt("PROVIDER_TIMEOUT_MS", 12000)) * time.Millisecond,
		ConversationListLimit:   getEnvInt("CONVERSATION_LIST_LIMIT", 1000),
		ConversationPageSize:    getEnvInt("CONVERSATION_PAGE_SIZE", 100),
		ResolveCoalesce:         getEnvBool("RESOLVE_COALESCE", true),
		BindSenderParticipant:   getEnvBool("BIND_SENDER_PARTICIPANT", false),
		StatusSweepInterval:     time.Duration(getEnvInt("STATUS_SWEEP_INTERVAL_MS", 60000)) * time.Millisecond,
		StatusStaleAfter:        time.Duration(getEnvInt("STATUS_STALE_AFTER_MS", 600000)) * time.Millisecond,
		WebhookAuthToken:        getEnv("WEBHOOK_AUTH_TOKEN", ""),
		WebhookEnforceSignature: getEnvBool("WEBHOOK_ENFORCE_SIGNATURE", false),
		SSMEnabled:              getEnvBool("AWS_SSM_ENABLED", false),
		AWSRegion:               getEnv("AWS_REGION", ""),
		PolicyFile:              getEnv("POLICY_FILE", ""),
		SeedFile:                getEnv("SEED_FILE", ""),
		StreamPingInterval:      time.Duration(getEnvInt("STREAM_PING_INTERVAL_MS", 30000)) * time.Millisecond,
		StreamReadTimeout:       time.Duration(getEnvInt("STREAM_READ_TIMEOUT_MS", 60000)) * time.Millisecond,
		StreamWriteTimeout:      time.Duration(getEnvInt("STREAM_WRITE_TIMEOUT_MS", 10000)) * time.Millisecond,
		StreamMaxMessage:        int64(getEnvInt("STREAM_MAX_MESSAGE_BYTES", 4096)),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogFormat:               getEnv("LOG_FORMAT", "json"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
