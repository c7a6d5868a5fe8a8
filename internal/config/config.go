package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	AdminJWTSecret string

	// Clinic locale
	ClinicName         string
	ClinicTimezone     string
	DefaultCountryCode string

	// WhatsApp gateway
	WhatsAppAPIURL       string
	WhatsAppAPIKey       string
	WhatsAppFromNumber   string
	Reminder24TemplateID string
	Reminder2TemplateID  string
	NoShowTemplateID     string

	// Outbound voice provider
	VoiceAPIURL        string
	VoiceAPIKey        string
	VoiceFromNumber    string
	VoiceWebhookSecret string

	// Orchestration windows
	NoShowGracePeriod time.Duration
	TwoHourWindowMin  time.Duration
	TwoHourWindowMax  time.Duration

	// When set, no provider call ever leaves the process; the engine still
	// logs, flags and transitions exactly as if sends had happened.
	SuppressSends bool

	// Intent classifier
	ClassifierProvider string
	BedrockModelID     string
	GeminiAPIKey       string
	GeminiModelID      string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Outbound cooldown throttle
	RedisAddr        string
	RedisPassword    string
	RedisTLS         bool
	CooldownWindow   time.Duration
	CooldownMaxSends int

	// Staff alert email
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	StaffAlertEmail   string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		ClinicName:         getEnv("CLINIC_NAME", "the clinic"),
		ClinicTimezone:     getEnv("CLINIC_TZ", "Asia/Dubai"),
		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "971"),

		WhatsAppAPIURL:       getEnv("WHATSAPP_API_URL", ""),
		WhatsAppAPIKey:       getEnv("WHATSAPP_API_KEY", ""),
		WhatsAppFromNumber:   getEnv("WHATSAPP_FROM_NUMBER", ""),
		Reminder24TemplateID: getEnv("WHATSAPP_TEMPLATE_REMINDER_24H", ""),
		Reminder2TemplateID:  getEnv("WHATSAPP_TEMPLATE_REMINDER_2H", ""),
		NoShowTemplateID:     getEnv("WHATSAPP_TEMPLATE_NO_SHOW", ""),

		VoiceAPIURL:        getEnv("VOICE_API_URL", ""),
		VoiceAPIKey:        getEnv("VOICE_API_KEY", ""),
		VoiceFromNumber:    getEnv("VOICE_FROM_NUMBER", ""),
		VoiceWebhookSecret: getEnv("VOICE_WEBHOOK_SECRET", ""),

		NoShowGracePeriod: getEnvAsDuration("NO_SHOW_GRACE_PERIOD", 2*time.Hour),
		TwoHourWindowMin:  getEnvAsDuration("TWO_HOUR_WINDOW_MIN", 90*time.Minute),
		TwoHourWindowMax:  getEnvAsDuration("TWO_HOUR_WINDOW_MAX", 150*time.Minute),

		SuppressSends: getEnvAsBool("OUTREACH_SUPPRESS_SENDS", false),

		ClassifierProvider: strings.ToLower(strings.TrimSpace(getEnv("CLASSIFIER_PROVIDER", "auto"))),
		BedrockModelID:     getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:      getEnv("GEMINI_MODEL_ID", ""),

		AWSRegion:           getEnv("AWS_REGION", "me-central-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisTLS:         getEnvAsBool("REDIS_TLS", false),
		CooldownWindow:   getEnvAsDuration("OUTREACH_COOLDOWN_WINDOW", time.Hour),
		CooldownMaxSends: getEnvAsInt("OUTREACH_COOLDOWN_MAX_SENDS", 4),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Clinic Outreach"),
		StaffAlertEmail:   getEnv("STAFF_ALERT_EMAIL", ""),
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
