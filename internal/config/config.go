package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string

	// Slot holds
	HoldWindow      time.Duration
	SlotGranularity time.Duration
	SweepInterval   time.Duration
	UseRedisLedger  bool

	// Pricing
	Currency             string
	ConvenienceFeePct    float64
	UrgencySurchargePct  float64
	UrgencySurchargeFlat int64

	// Payment gateway
	GatewayBaseURL   string
	GatewayKeyID     string
	GatewaySecret    string
	GatewayTimeout   time.Duration
	OrderExpiry      time.Duration
	AllowFakeGateway bool

	DoctorsFile string

	CORSAllowedOrigins string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		HoldWindow:      getEnvAsDuration("HOLD_WINDOW", 10*time.Minute),
		SlotGranularity: getEnvAsDuration("SLOT_GRANULARITY", 30*time.Minute),
		SweepInterval:   getEnvAsDuration("SWEEP_INTERVAL", time.Minute),
		UseRedisLedger:  getEnvAsBool("USE_REDIS_LEDGER", false),

		Currency:             getEnv("CURRENCY", "INR"),
		ConvenienceFeePct:    getEnvAsFloat("CONVENIENCE_FEE_PCT", 2.5),
		UrgencySurchargePct:  getEnvAsFloat("URGENCY_SURCHARGE_PCT", 0),
		UrgencySurchargeFlat: int64(getEnvAsInt("URGENCY_SURCHARGE_FLAT", 500)),

		GatewayBaseURL:   getEnv("GATEWAY_BASE_URL", ""),
		GatewayKeyID:     getEnv("GATEWAY_KEY_ID", ""),
		GatewaySecret:    getEnv("GATEWAY_SECRET", ""),
		GatewayTimeout:   getEnvAsDuration("GATEWAY_TIMEOUT", 10*time.Second),
		OrderExpiry:      getEnvAsDuration("ORDER_EXPIRY", 10*time.Minute),
		AllowFakeGateway: getEnvAsBool("ALLOW_FAKE_GATEWAY", false),

		DoctorsFile: getEnv("DOCTORS_FILE", ""),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
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
