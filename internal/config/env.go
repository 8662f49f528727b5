package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"video-upscaler/internal/domain"
)

const (
	EnvDownloadDir = "UPSCALER_DOWNLOAD_DIR"
	EnvLogLevel    = "UPSCALER_LOG_LEVEL"
	EnvLogFormat   = "UPSCALER_LOG_FORMAT"
	EnvLoadTimeout = "UPSCALER_LOAD_TIMEOUT_SECONDS"
)

// LoadEnv reads .env files into the process environment. With no paths,
// ".env" in the working directory is used. A missing file is not an error.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// GetEnv returns the value of key, or fallback when unset or empty.
func GetEnv(key, fallback string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of key, or fallback when unset or invalid.
func GetEnvInt(key string, fallback int) int {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// ApplyEnv overlays UPSCALER_* environment overrides on persisted settings.
func ApplyEnv(cfg domain.Settings) domain.Settings {
	cfg.DownloadDir = GetEnv(EnvDownloadDir, cfg.DownloadDir)
	cfg.LogLevel = GetEnv(EnvLogLevel, cfg.LogLevel)
	cfg.LogFormat = GetEnv(EnvLogFormat, cfg.LogFormat)
	return Normalize(cfg)
}
