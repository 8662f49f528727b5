package config

import (
	"os"
	"path/filepath"

	"video-upscaler/internal/domain"
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		DownloadDir: filepath.Join(homeDir, "Downloads"),
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// DefaultOutputSettings returns the export configuration restored on reset.
func DefaultOutputSettings() domain.OutputSettings {
	return domain.OutputSettings{
		Resolution: domain.Resolution4K,
		FPS:        domain.FrameRate60,
		Format:     domain.FormatMP4H264,
		Quality:    domain.QualityBalanced,
	}
}
