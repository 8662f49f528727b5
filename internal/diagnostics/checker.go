package diagnostics

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/mem"

	"video-upscaler/internal/domain"
	"video-upscaler/internal/ffmpeg"
	"video-upscaler/internal/mux"
)

// FrameWorkingSet is the memory one 4K export keeps in flight: the render
// surface, one copy per buffered capture frame and the encoder's input frame.
const FrameWorkingSet = uint64(3840*2160*4) * uint64(mux.DefaultBuffer+3)

// Encoders every output format relies on.
var requiredEncoders = []string{"libx264", "aac", "libvpx-vp9", "libopus"}

// Checker validates external tools, the download directory and memory.
type Checker struct {
	lookPath        func(string) (string, error)
	mkdirAll        func(string, os.FileMode) error
	createTemp      func(string, string) (*os.File, error)
	remove          func(string) error
	availableMemory func() (uint64, error)
	listEncoders    func() (map[string]bool, error)
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:        exec.LookPath,
		mkdirAll:        os.MkdirAll,
		createTemp:      os.CreateTemp,
		remove:          os.Remove,
		availableMemory: availableMemory,
		listEncoders: func() (map[string]bool, error) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return ffmpeg.ListEncoders(ctx, ffmpeg.ExecRunner{}, "ffmpeg")
		},
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	ffmpegItem := c.checkTool("ffmpeg")
	items := []domain.DiagnosticItem{
		ffmpegItem,
		c.checkTool("ffprobe"),
	}
	if ffmpegItem.Status == domain.DiagnosticStatusPass {
		items = append(items, c.checkEncoders())
	}
	items = append(items,
		c.checkDownloadDir(settings.DownloadDir),
		c.checkMemory(),
	)

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies a required CLI executable is on PATH.
func (c *Checker) checkTool(name string) domain.DiagnosticItem {
	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found in PATH: %s", name),
			Hint:    "Install it and ensure the binary is available on PATH before exporting.",
			Fixable: true,
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkEncoders warns when ffmpeg lacks an encoder; negotiation falls back
// to what is available.
func (c *Checker) checkEncoders() domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "ffmpeg_encoders",
		Name: "ffmpeg encoders",
	}

	available, err := c.listEncoders()
	if err != nil {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "Could not list ffmpeg encoders."
		item.Hint = "Run `ffmpeg -encoders` to check the installation."
		return item
	}

	var missing []string
	for _, name := range requiredEncoders {
		if !available[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Missing encoders: %s", strings.Join(missing, ", "))
		item.Hint = "Some output formats will fall back to WebM or the original file."
		item.Fixable = true
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = "H.264, AAC, VP9 and Opus encoders available."
	return item
}

// checkDownloadDir validates download directory existence and write access.
func (c *Checker) checkDownloadDir(dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "download_dir",
		Name: "Download directory",
	}

	item.Fixable = true
	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Download directory is empty."
		item.Hint = "Set a directory where exported videos can be written."
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create download directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Download directory is not writable: %s", dir)
		item.Hint = "Choose a writable directory for exported videos."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Fixable = false
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// checkMemory warns when a 4K export may not fit in available memory.
func (c *Checker) checkMemory() domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "memory",
		Name: "Available memory",
	}

	available, err := c.availableMemory()
	if err != nil {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "Could not read available memory."
		return item
	}

	if available < FrameWorkingSet {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("%d MiB available, 4K export needs about %d MiB.", available>>20, FrameWorkingSet>>20)
		item.Hint = "Close other applications or export at 1080p."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("%d MiB available.", available>>20)
	return item
}

func availableMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
	availableMemory func() (uint64, error),
	listEncoders func() (map[string]bool, error),
) *Checker {
	return &Checker{
		lookPath:        lookPath,
		mkdirAll:        mkdirAll,
		createTemp:      createTemp,
		remove:          remove,
		availableMemory: availableMemory,
		listEncoders:    listEncoders,
	}
}
