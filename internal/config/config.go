package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultAPIPath is used when no API override is configured.
	DefaultAPIPath = "/api"
	// DefaultOrigin resolves the relative API path for a standalone client.
	DefaultOrigin = "http://localhost:5000"
)

// Config holds client settings.
type Config struct {
	APIURL         string
	Origin         string
	RequestTimeout time.Duration
	CameraIndex    int
	Watch          bool
	LogLevel       string
}

// ServiceConfig holds settings for the development analysis service.
type ServiceConfig struct {
	Addr            string
	Store           string
	DatabaseDSN     string
	RedisAddr       string
	UploadDir       string
	Analyzer        string
	CascadePath     string
	ShutdownTimeout time.Duration
	LogLevel        string
}

// Load reads the client configuration from the environment, after applying
// an optional .env file from the working directory.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		APIURL:         getEnv("EYECHECK_API_URL", ""),
		Origin:         getEnv("EYECHECK_ORIGIN", DefaultOrigin),
		RequestTimeout: time.Duration(getEnvInt("EYECHECK_TIMEOUT_SECONDS", 30)) * time.Second,
		CameraIndex:    getEnvInt("EYECHECK_CAMERA_INDEX", 0),
		Watch:          getEnvBool("EYECHECK_WATCH", true),
		LogLevel:       getEnv("LOG_LEVEL", "warn"),
	}
}

// LoadService reads the development service configuration.
func LoadService() *ServiceConfig {
	_ = godotenv.Load()

	return &ServiceConfig{
		Addr:            getEnv("MOCK_ADDR", ":5000"),
		Store:           strings.ToLower(getEnv("MOCK_STORE", "memory")),
		DatabaseDSN:     getEnv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=eyecheck port=5432 sslmode=disable"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		UploadDir:       getEnv("UPLOAD_DIR", "uploads"),
		Analyzer:        strings.ToLower(getEnv("MOCK_ANALYZER", "sample")),
		CascadePath:     getEnv("EYE_CASCADE_PATH", "haarcascade_eye.xml"),
		ShutdownTimeout: time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 15)) * time.Second,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
}

// BaseURL returns the absolute API base for this configuration.
func (c *Config) BaseURL() string {
	return ResolveBaseURL(c.APIURL, c.Origin)
}

// ResolveBaseURL applies the API override rules: an empty override means
// DefaultAPIPath, a bare host gets an https scheme, and a relative path is
// joined onto origin. The result never ends with a slash.
func ResolveBaseURL(override, origin string) string {
	base := strings.TrimSpace(override)
	if base == "" {
		base = DefaultAPIPath
	}
	if base != DefaultAPIPath && !strings.HasPrefix(base, "http") && !strings.HasPrefix(base, "/") {
		base = "https://" + base
	}
	if strings.HasPrefix(base, "/") {
		base = strings.TrimRight(origin, "/") + base
	}
	return strings.TrimRight(base, "/")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}
