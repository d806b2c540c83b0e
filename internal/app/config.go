package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr    string
	DatabaseURL string
	SentryDSN   string
	LogLevel    string
	Environment string

	// JWT Authentication
	JWTSecret string
	JWTExpiry time.Duration

	// PairingSecret is the shared secret clients exchange for a JWT.
	PairingSecret string

	// Transcription engine
	ProvidersFile    string
	RecordingsDir    string
	MergeWindowMs    int
	EnableMicrophone bool
}

func LoadConfigFromEnv() Config {
	jwtExpiry, err := time.ParseDuration(getenv("JWT_EXPIRY", "24h"))
	if err != nil {
		jwtExpiry = 24 * time.Hour
	}

	return Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		DatabaseURL: getenv("DATABASE_URL", ""),
		SentryDSN:   getenv("SENTRY_DSN", ""),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		Environment: getenv("ENVIRONMENT", "development"),

		JWTSecret: os.Getenv("JWT_SECRET"), // Required - no fallback for security
		JWTExpiry: jwtExpiry,

		PairingSecret: os.Getenv("PAIRING_SECRET"),

		ProvidersFile:    getenv("PROVIDERS_FILE", "providers.yaml"),
		RecordingsDir:    getenv("RECORDINGS_DIR", ""),
		MergeWindowMs:    getenvIntClamped("MERGE_WINDOW_MS", 1000, 100, 10000),
		EnableMicrophone: getenv("ENABLE_MICROPHONE", "false") == "true",
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntClamped(k string, def, min, max int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
