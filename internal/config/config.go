package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	SalonName     string
	Timezone      string
	DialCode      string
	HorizonDays   int
	MaxSlotsShown int

	// Cal.com scheduling API
	CalAPIKey     string
	CalAPIVersion string
	CalV1BaseURL  string
	CalV2BaseURL  string
	CalUsername   string
	CalTimeout    time.Duration
	CalDryRun     bool

	// Service catalog cache
	ServiceCacheTTL time.Duration

	// OTP policy
	OTPExpiry         time.Duration
	OTPResendCooldown time.Duration
	OTPMaxResends     int

	// Email delivery
	EmailProvider      string
	SendGridAPIKey     string
	SendGridFromEmail  string
	SendGridFromName   string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	SESFromEmail       string
	SESFromName        string

	// Session transcript store
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// HTTP rate limiting (zero disables)
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		SalonName:     getEnv("SALON_NAME", "TSC Salon"),
		Timezone:      getEnv("SALON_TZ", "Asia/Kolkata"),
		DialCode:      getEnv("PHONE_DIAL_CODE", "+91"),
		HorizonDays:   getEnvAsInt("BOOKING_HORIZON_DAYS", 7),
		MaxSlotsShown: getEnvAsInt("MAX_SLOTS_SHOWN", 3),

		CalAPIKey:     getEnv("CAL_COM_API_KEY", ""),
		CalAPIVersion: getEnv("CAL_COM_API_VERSION", "2024-08-13"),
		CalV1BaseURL:  getEnv("CAL_COM_V1_BASE_URL", "https://api.cal.com/v1"),
		CalV2BaseURL:  getEnv("CAL_COM_V2_BASE_URL", "https://api.cal.com/v2"),
		CalUsername:   getEnv("CAL_USERNAME", ""),
		CalTimeout:    getEnvAsDuration("CAL_TIMEOUT", 15*time.Second),
		CalDryRun:     getEnvAsBool("CAL_DRY_RUN", false),

		ServiceCacheTTL: getEnvAsDuration("SERVICE_CACHE_TTL", 5*time.Minute),

		OTPExpiry:         getEnvAsDuration("OTP_EXPIRY", 5*time.Minute),
		OTPResendCooldown: getEnvAsDuration("OTP_RESEND_COOLDOWN", 30*time.Second),
		OTPMaxResends:     getEnvAsInt("OTP_MAX_RESENDS", 3),

		EmailProvider:      strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "auto"))),
		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:  getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:   getEnv("SENDGRID_FROM_NAME", "TSC Salon"),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		SESFromEmail:       getEnv("SES_FROM_EMAIL", ""),
		SESFromName:        getEnv("SES_FROM_NAME", "TSC Salon"),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		RateLimitPerSecond: getEnvAsFloat("RATE_LIMIT_PER_SECOND", 0),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
