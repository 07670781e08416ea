package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all client configuration.
type Config struct {
	APIBaseURL     string
	RequestTimeout time.Duration
	RetryCount     int
	LogLevel       string
	LogFormat      string
	// StateDir is where tokens and caches are persisted between runs.
	StateDir string
	Language string
	// DefaultCourse is used for positioning evaluations started without a
	// course context.
	DefaultCourse string
	Program       string
	Level         string

	// RefreshThreshold controls how close to expiry the access token may get
	// before a proactive refresh is attempted.
	RefreshThreshold time.Duration
	// SleepThreshold is the idle gap beyond which the session is re-validated
	// as if the machine had been suspended.
	SleepThreshold time.Duration
	UserTTL        time.Duration
	CatalogTTL     time.Duration
	QuizDuration   time.Duration

	// SSOLoginURL is opened in the browser for SSO login; the identity
	// provider redirects back to the loopback callback listener.
	SSOLoginURL     string
	SSOCallbackPort string
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load() // .env is optional

	return &Config{
		APIBaseURL:     getEnv("PRAXIS_API_URL", "https://api.praxis-learning.io"),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 60)) * time.Second,
		RetryCount:     getEnvInt("REQUEST_RETRY_COUNT", 3),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "pretty"),
		StateDir:       getEnv("PRAXIS_STATE_DIR", defaultStateDir()),
		Language:       getEnv("PRAXIS_LANGUAGE", "French"),
		DefaultCourse:  getEnv("PRAXIS_DEFAULT_COURSE", "Fundamentals of Marketing"),
		Program:        getEnv("PRAXIS_PROGRAM", "MBA"),
		Level:          getEnv("PRAXIS_LEVEL", "M1"),

		RefreshThreshold: time.Duration(getEnvInt("TOKEN_REFRESH_THRESHOLD_MINUTES", 10)) * time.Minute,
		SleepThreshold:   time.Duration(getEnvInt("SLEEP_THRESHOLD_MINUTES", 150)) * time.Minute,
		UserTTL:          time.Duration(getEnvInt("USER_CACHE_TTL_HOURS", 24)) * time.Hour,
		CatalogTTL:       time.Duration(getEnvInt("CATALOG_CACHE_TTL_MINUTES", 240)) * time.Minute,
		QuizDuration:     time.Duration(getEnvInt("QUIZ_DURATION_MINUTES", 30)) * time.Minute,

		SSOLoginURL:     getEnv("PRAXIS_SSO_LOGIN_URL", ""),
		SSOCallbackPort: getEnv("PRAXIS_SSO_CALLBACK_PORT", "53812"),
	}
}

// defaultStateDir resolves to $XDG_CONFIG_HOME/praxis or ~/.config/praxis.
func defaultStateDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "praxis")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".praxis"
	}
	return filepath.Join(home, ".config", "praxis")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
