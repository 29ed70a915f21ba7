package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	// Server
	Port string

	// Storage
	StorageDriver string
	DatabaseURL   string
	RedisURL      string

	// Security
	HMACSecret string

	// Twilio
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string

	// Firebase
	FCMCredentialsPath string

	// Mapbox
	MapboxToken string

	// Logging
	LogLevel  string
	LogFormat string

	// Coordination
	DefaultSearchRadiusKm float64
	MaxSearchRadiusKm     float64
	StatusCacheTTLSeconds int
	ChatRateLimit         int
	ChatRateWindowSeconds int
	EventsChannel         string
	IndexResyncSeconds    int

	// SMS SOS
	SMSMaxAgeSeconds    int
	SMSClockSkewSeconds int
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		StorageDriver:         getEnv("STORAGE_DRIVER", StorageDriverPostgres),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", ""),
		HMACSecret:            getEnv("HMAC_SECRET", ""),
		TwilioAccountSID:      getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:       getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioPhoneNumber:     getEnv("TWILIO_PHONE_NUMBER", ""),
		FCMCredentialsPath:    getEnv("FCM_CREDENTIALS_PATH", ""),
		MapboxToken:           getEnv("MAPBOX_TOKEN", ""),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "text"),
		DefaultSearchRadiusKm: getEnvFloat("DEFAULT_SEARCH_RADIUS_KM", 10),
		MaxSearchRadiusKm:     getEnvFloat("MAX_SEARCH_RADIUS_KM", 50),
		StatusCacheTTLSeconds: getEnvInt("STATUS_CACHE_TTL_SECONDS", 60),
		ChatRateLimit:         getEnvInt("CHAT_RATE_LIMIT", 5),
		ChatRateWindowSeconds: getEnvInt("CHAT_RATE_WINDOW_SECONDS", 10),
		EventsChannel:         getEnv("EVENTS_CHANNEL", "sos:events"),
		IndexResyncSeconds:    getEnvInt("INDEX_RESYNC_SECONDS", 30),
		SMSMaxAgeSeconds:      getEnvInt("SMS_MAX_AGE_SECONDS", 900),
		SMSClockSkewSeconds:   getEnvInt("SMS_CLOCK_SKEW_SECONDS", 300),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a config suitable for tests and the in-memory driver
func Default() *Config {
	return &Config{
		Port:                  "8080",
		StorageDriver:         StorageDriverMemory,
		LogLevel:              "info",
		LogFormat:             "text",
		DefaultSearchRadiusKm: 10,
		MaxSearchRadiusKm:     50,
		StatusCacheTTLSeconds: 60,
		ChatRateLimit:         5,
		ChatRateWindowSeconds: 10,
		EventsChannel:         "sos:events",
		IndexResyncSeconds:    30,
		SMSMaxAgeSeconds:      900,
		SMSClockSkewSeconds:   300,
	}
}

func (c *Config) SMSEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != ""
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case StorageDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q", StorageDriverPostgres, StorageDriverMemory)
	}
	if c.SMSEnabled() {
		if c.TwilioPhoneNumber == "" {
			return fmt.Errorf("TWILIO_PHONE_NUMBER is required when Twilio is configured")
		}
		if c.HMACSecret == "" {
			return fmt.Errorf("HMAC_SECRET is required for the SMS SOS webhook")
		}
	}
	if c.DefaultSearchRadiusKm <= 0 || c.MaxSearchRadiusKm < c.DefaultSearchRadiusKm {
		return fmt.Errorf("search radius must satisfy 0 < DEFAULT_SEARCH_RADIUS_KM <= MAX_SEARCH_RADIUS_KM")
	}
	if c.IndexResyncSeconds < 0 {
		return fmt.Errorf("INDEX_RESYNC_SECONDS must not be negative")
	}
	if c.SMSMaxAgeSeconds <= 0 || c.SMSClockSkewSeconds < 0 {
		return fmt.Errorf("SMS_MAX_AGE_SECONDS must be positive and SMS_CLOCK_SKEW_SECONDS not negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
