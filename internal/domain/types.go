package domain

import (
	"fmt"
	"time"
)

// Resolution is the target output resolution tag.
type Resolution string

const (
	Resolution1080p Resolution = "1080p"
	Resolution4K    Resolution = "4K"
)

// Resolutions lists selectable output resolutions in display order.
var Resolutions = []Resolution{Resolution1080p, Resolution4K}

// Dimensions returns output pixel dimensions for the resolution.
func (r Resolution) Dimensions() (width, height int) {
	if r == Resolution4K {
		return 3840, 2160
	}
	return 1920, 1080
}

// Bitrate returns the target video bitrate in bits per second.
func (r Resolution) Bitrate() int {
	if r == Resolution4K {
		return 50_000_000
	}
	return 15_000_000
}

// FrameRate is the target capture rate in frames per second.
type FrameRate int

const (
	FrameRate30 FrameRate = 30
	FrameRate50 FrameRate = 50
	FrameRate60 FrameRate = 60
)

// FrameRates lists selectable frame rates in display order.
var FrameRates = []FrameRate{FrameRate30, FrameRate50, FrameRate60}

// Interval returns the duration of one frame.
func (f FrameRate) Interval() time.Duration {
	if f <= 0 {
		return time.Second / time.Duration(FrameRate30)
	}
	return time.Second / time.Duration(f)
}

// FileFormat is the advisory output container chosen by the user.
type FileFormat string

const (
	FormatMP4H264 FileFormat = "MP4 (H.264)"
	FormatMP4HEVC FileFormat = "MP4 (H.265/HEVC)"
	FormatWebM    FileFormat = "WebM"
	FormatAVI     FileFormat = "AVI"
	FormatMOV     FileFormat = "MOV"
)

// FileFormats lists selectable containers in display order.
var FileFormats = []FileFormat{FormatMP4H264, FormatMP4HEVC, FormatWebM, FormatAVI, FormatMOV}

// QualityPreset selects the resampling kernel and encoder speed.
type QualityPreset string

const (
	QualityFast     QualityPreset = "Fast"
	QualityBalanced QualityPreset = "Balanced"
	QualityHigh     QualityPreset = "High Quality"
)

// QualityPresets lists selectable quality tiers in display order.
var QualityPresets = []QualityPreset{QualityFast, QualityBalanced, QualityHigh}

// OutputSettings is the user's export configuration. It is a value type: the
// export pipeline keeps its own copy taken at start.
type OutputSettings struct {
	Resolution Resolution    `json:"resolution"`
	FPS        FrameRate     `json:"fps"`
	Format     FileFormat    `json:"format"`
	Quality    QualityPreset `json:"quality"`
}

// Validate rejects values outside the selectable sets.
func (s OutputSettings) Validate() error {
	if !contains(Resolutions, s.Resolution) {
		return NewError(KindValidation, "settings", fmt.Sprintf("unsupported resolution %q", s.Resolution), nil)
	}
	if !contains(FrameRates, s.FPS) {
		return NewError(KindValidation, "settings", fmt.Sprintf("unsupported frame rate %d", s.FPS), nil)
	}
	if !contains(FileFormats, s.Format) {
		return NewError(KindValidation, "settings", fmt.Sprintf("unsupported format %q", s.Format), nil)
	}
	if !contains(QualityPresets, s.Quality) {
		return NewError(KindValidation, "settings", fmt.Sprintf("unsupported quality %q", s.Quality), nil)
	}
	return nil
}

// EstimatedSizeBytes mirrors the result view estimate of the upscaled size.
func (s OutputSettings) EstimatedSizeBytes(originalSize int64) int64 {
	factor := 1.8
	if s.Resolution == Resolution4K {
		factor = 3.5
	}
	return int64(float64(originalSize) * factor)
}

func contains[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// AppStep is the active step of the upload → result flow.
type AppStep string

const (
	StepUpload    AppStep = "upload"
	StepConfigure AppStep = "configure"
	StepProcess   AppStep = "process"
	StepResult    AppStep = "result"
)

// ProcessingState is the synthetic progress shown while "processing".
type ProcessingState struct {
	Progress               float64 `json:"progress"`
	StatusMessage          string  `json:"statusMessage"`
	EstimatedTimeRemaining string  `json:"estimatedTimeRemaining"`
	IsComplete             bool    `json:"isComplete"`
}

// ExportStatus tracks each stage of a single export job.
type ExportStatus string

const (
	ExportStatusIdle       ExportStatus = "idle"
	ExportStatusPriming    ExportStatus = "priming"
	ExportStatusRendering  ExportStatus = "rendering"
	ExportStatusFinalizing ExportStatus = "finalizing"
	ExportStatusDone       ExportStatus = "done"
	ExportStatusErrored    ExportStatus = "errored"
	ExportStatusCancelled  ExportStatus = "cancelled"
)

// Settings contains persisted application preferences.
type Settings struct {
	DownloadDir string `json:"downloadDir"`
	LogLevel    string `json:"logLevel"`
	LogFormat   string `json:"logFormat"`
}

// ExportJob stores the current export identity, parameters and outcome.
type ExportJob struct {
	ID           string       `json:"id"`
	Status       ExportStatus `json:"status"`
	Width        int          `json:"width,omitempty"`
	Height       int          `json:"height,omitempty"`
	FPS          FrameRate    `json:"fps,omitempty"`
	Bitrate      int          `json:"bitrate,omitempty"`
	Progress     int          `json:"progress"`
	ArtifactName string       `json:"artifactName,omitempty"`
	ArtifactPath string       `json:"artifactPath,omitempty"`
	MimeType     string       `json:"mimeType,omitempty"`
	Fallback     bool         `json:"fallback,omitempty"`
	Error        string       `json:"error,omitempty"`
}
