package diagnostics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-upscaler/internal/domain"
)

func allEncoders() (map[string]bool, error) {
	return map[string]bool{"libx264": true, "aac": true, "libvpx-vp9": true, "libopus": true}, nil
}

func plentyOfMemory() (uint64, error) { return 16 << 30, nil }

// TestCheckerRunAllPass validates happy-path diagnostics report.
func TestCheckerRunAllPass(t *testing.T) {
	downloadDir := filepath.Join(t.TempDir(), "downloads")
	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/local/bin/" + name, nil },
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
		plentyOfMemory,
		allEncoders,
	)

	report := checker.Run(domain.Settings{DownloadDir: downloadDir})

	require.False(t, report.HasFailures, "items: %+v", report.Items)
	for _, item := range report.Items {
		assert.Equal(t, domain.DiagnosticStatusPass, item.Status, item.ID)
	}
	entries, err := os.ReadDir(downloadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "write check must clean up")
}

// TestCheckerRunMissingToolsAndPaths validates failure reporting.
func TestCheckerRunMissingToolsAndPaths(t *testing.T) {
	encodersCalled := false
	checker := NewCheckerForTests(
		func(string) (string, error) { return "", errors.New("not found") },
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
		plentyOfMemory,
		func() (map[string]bool, error) { encodersCalled = true; return nil, nil },
	)

	report := checker.Run(domain.Settings{DownloadDir: ""})

	require.True(t, report.HasFailures)
	assertStatusByID(t, report, "tool_ffmpeg", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "tool_ffprobe", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "download_dir", domain.DiagnosticStatusFail)
	assert.False(t, encodersCalled, "encoders are only listed when ffmpeg exists")

	for _, id := range []string{"tool_ffmpeg", "tool_ffprobe", "download_dir"} {
		item, _ := report.Item(id)
		assert.True(t, item.Fixable, id)
	}
}

// TestCheckerWarnsWithoutFailing validates warn-level items.
func TestCheckerWarnsWithoutFailing(t *testing.T) {
	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/bin/" + name, nil },
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
		func() (uint64, error) { return 64 << 20, nil },
		func() (map[string]bool, error) { return map[string]bool{"libvpx-vp9": true, "libopus": true}, nil },
	)

	report := checker.Run(domain.Settings{DownloadDir: t.TempDir()})

	assert.False(t, report.HasFailures)
	assertStatusByID(t, report, "memory", domain.DiagnosticStatusWarn)
	assertStatusByID(t, report, "ffmpeg_encoders", domain.DiagnosticStatusWarn)
	encoders, ok := report.Item("ffmpeg_encoders")
	require.True(t, ok)
	assert.Contains(t, encoders.Message, "libx264")
	assert.Contains(t, encoders.Message, "aac")
	assert.True(t, encoders.Fixable)

	memory, _ := report.Item("memory")
	assert.False(t, memory.Fixable)
}

// TestCheckerUnwritableDownloadDir validates the write probe.
func TestCheckerUnwritableDownloadDir(t *testing.T) {
	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/bin/" + name, nil },
		func(string, os.FileMode) error { return nil },
		func(string, string) (*os.File, error) { return nil, os.ErrPermission },
		os.Remove,
		plentyOfMemory,
		allEncoders,
	)

	report := checker.Run(domain.Settings{DownloadDir: "/readonly"})
	assertStatusByID(t, report, "download_dir", domain.DiagnosticStatusFail)
}

// assertStatusByID checks status for one diagnostic item by ID.
func assertStatusByID(t *testing.T, report domain.DiagnosticReport, id string, want domain.DiagnosticStatus) {
	t.Helper()
	item, ok := report.Item(id)
	require.True(t, ok, "diagnostic item not found: %s", id)
	require.Equal(t, want, item.Status, "item %s", id)
}
