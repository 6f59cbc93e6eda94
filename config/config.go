package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ApiURL     string
	AccessKey  string
	SecretKey  string
	BucketName string
	Region     string

	SquirrelPath      string
	ShortcutLocations string

	ConnectivityHost    string
	ConnectivityTimeout time.Duration

	LogLevel    string
	LogFormat   string
	MetricsFile string

	// EnvFileMissing is set when no .env file was found; the caller logs it
	// once the logger is configured.
	EnvFileMissing bool
}

const (
	defaultSquirrelPath        = "tools/Squirrel.exe"
	defaultShortcutLocations   = "Desktop,StartMenu"
	defaultConnectivityHost    = "s3.amazonaws.com:443"
	defaultConnectivityTimeout = 5 * time.Second
)

func Load() (*Config, error) {
	missing := false
	if err := godotenv.Load(); err != nil {
		missing = true
	}

	config := &Config{
		ApiURL:     getEnv("API_URL", ""),
		AccessKey:  getEnv("ACCESS_KEY", ""),
		SecretKey:  getEnv("SECRET_KEY", ""),
		BucketName: getEnv("BUCKET_NAME", ""),
		Region:     getEnv("REGION", ""),

		SquirrelPath:      getEnv("SQUIRREL_PATH", defaultSquirrelPath),
		ShortcutLocations: getEnv("SHORTCUT_LOCATIONS", defaultShortcutLocations),

		ConnectivityHost:    getEnv("CONNECTIVITY_HOST", defaultConnectivityHost),
		ConnectivityTimeout: getDuration("CONNECTIVITY_TIMEOUT", defaultConnectivityTimeout),

		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "console"),
		MetricsFile: getEnv("METRICS_FILE", ""),

		EnvFileMissing: missing,
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}
