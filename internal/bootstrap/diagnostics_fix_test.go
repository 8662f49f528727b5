package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-upscaler/internal/domain"
)

// fakeShell records argv and fails for configured commands.
type fakeShell struct {
	present map[string]bool
	failing map[string]bool
	ran     []string
}

func (s *fakeShell) lookPath(name string) (string, error) {
	if s.present[name] {
		return "/usr/bin/" + name, nil
	}
	return "", errors.New("not found")
}

func (s *fakeShell) run(_ context.Context, argv []string) error {
	line := strings.Join(argv, " ")
	s.ran = append(s.ran, line)
	if s.failing[argv[0]] {
		return errors.New("exit status 1")
	}
	return nil
}

func (s *fakeShell) installer(goos string) *installer {
	return &installer{goos: goos, lookPath: s.lookPath, run: s.run}
}

// TestEnsureDownloadDirCreatesDirectory ensures the fix creates missing directories.
func TestEnsureDownloadDirCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "downloads")

	fixed, changed, err := ensureDownloadDir(domain.Settings{DownloadDir: dir})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, dir, fixed.DownloadDir)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

// TestFFmpegRecipesPerOS validates package manager order.
func TestFFmpegRecipesPerOS(t *testing.T) {
	assert.Equal(t, "winget", ffmpegRecipes("windows")[0].manager)
	assert.Equal(t, "brew", ffmpegRecipes("darwin")[0].manager)

	linux := ffmpegRecipes("linux")
	require.NotEmpty(t, linux)
	assert.Equal(t, "apt-get", linux[0].manager)
	assert.True(t, linux[0].elevate)
	assert.Len(t, linux[0].steps, 2)
}

// TestInstallFallsThroughManagers validates skipping and elevation retries.
func TestInstallFallsThroughManagers(t *testing.T) {
	shell := &fakeShell{
		present: map[string]bool{"dnf": true, "brew": true, "sudo": true, "ffmpeg": true, "ffprobe": true},
		failing: map[string]bool{"dnf": true, "sudo": true},
	}

	require.NoError(t, shell.installer("linux").installFFmpeg(context.Background()))
	assert.Equal(t, []string{
		"dnf install -y ffmpeg",
		"sudo -n dnf install -y ffmpeg",
		"brew install ffmpeg",
	}, shell.ran)
}

// TestInstallReportsFailures validates aggregated errors.
func TestInstallReportsFailures(t *testing.T) {
	none := &fakeShell{}
	err := none.installer("linux").install(context.Background(), ffmpegRecipes("linux"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no supported package manager")

	broken := &fakeShell{present: map[string]bool{"brew": true}, failing: map[string]bool{"brew": true}}
	err = broken.installer("darwin").install(context.Background(), ffmpegRecipes("darwin"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "brew: exit status 1")

	missingProbe := &fakeShell{present: map[string]bool{"brew": true, "ffmpeg": true}}
	err = missingProbe.installer("darwin").installFFmpeg(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffprobe")
}

// TestInstallOrFixDiagnosticDownloadDir validates the app-level fix path.
func TestInstallOrFixDiagnosticDownloadDir(t *testing.T) {
	ta := newTestApp(t)
	ta.Diagnostics = domain.DiagnosticReport{Items: []domain.DiagnosticItem{
		{ID: "download_dir", Status: domain.DiagnosticStatusFail, Fixable: true},
		{ID: "memory", Name: "Available memory", Status: domain.DiagnosticStatusWarn},
	}}

	_, err := ta.InstallOrFixDiagnostic("download_dir")
	require.NoError(t, err)
	_, err = os.Stat(ta.outDir)
	assert.NoError(t, err)

	_, err = ta.InstallOrFixDiagnostic("memory")
	assert.ErrorContains(t, err, "cannot be fixed automatically")

	_, err = ta.InstallOrFixDiagnostic("bogus")
	assert.ErrorContains(t, err, "unsupported")
}
