package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/joho/godotenv"
)

type Config struct {
	DataDir      string
	Engine       string
	LogLevel     string
	LogFormat    string
	BuildTimeout time.Duration
	MinFreeDisk  uint64
	OtelEndpoint string
	ServiceName  string
}

// Load loads configuration from environment variables
// Automatically loads .env file if present
func Load() *Config {
	// Try to load .env file (fail silently if not present)
	_ = godotenv.Load()

	cfg := &Config{
		DataDir:      getEnv("KILN_DATA_DIR", defaultDataDir()),
		Engine:       getEnv("KILN_ENGINE", "auto"),
		LogLevel:     getEnv("KILN_LOG_LEVEL", "info"),
		LogFormat:    getEnv("KILN_LOG_FORMAT", "text"),
		BuildTimeout: getDuration("KILN_BUILD_TIMEOUT", 15*time.Minute),
		MinFreeDisk:  getBytes("KILN_MIN_FREE_DISK", uint64(datasize.GB)),
		OtelEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  getEnv("KILN_OTEL_SERVICE_NAME", "kiln"),
	}

	return cfg
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kiln"
	}
	return filepath.Join(home, ".kiln")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func getBytes(key string, defaultValue uint64) uint64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	size, err := datasize.ParseString(value)
	if err != nil {
		return defaultValue
	}
	return uint64(size)
}
