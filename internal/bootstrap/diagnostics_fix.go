package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"video-upscaler/internal/config"
	"video-upscaler/internal/domain"
)

const installStepTimeout = 30 * time.Minute

// InstallOrFixDiagnostic remediates one fixable diagnostic item and returns
// the refreshed report. Items that already pass are left alone.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	settings = config.Normalize(settings)

	if item, ok := a.GetDiagnostics().Item(id); ok {
		if item.Status == domain.DiagnosticStatusPass {
			return a.refreshDiagnosticsFromSettings(settings), nil
		}
		if !item.Fixable {
			return a.refreshDiagnosticsFromSettings(settings), fmt.Errorf("%s cannot be fixed automatically", item.Name)
		}
	}

	var fixErr error
	switch id {
	case "tool_ffmpeg", "tool_ffprobe", "ffmpeg_encoders":
		a.Logger.Info("installing ffmpeg", "item", id)
		fixErr = newInstaller().installFFmpeg(context.Background())
	case "download_dir":
		var changed bool
		settings, changed, fixErr = ensureDownloadDir(settings)
		if changed {
			if err := a.Store.Save(settings); err != nil {
				return a.refreshDiagnosticsFromSettings(settings), fmt.Errorf("save settings after fix: %w", err)
			}
		}
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	report := a.refreshDiagnosticsFromSettings(settings)
	if fixErr != nil {
		a.Logger.Warn("diagnostic fix failed", "item", id, "error", fixErr)
	}
	return report, fixErr
}

func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(settings)
	}
	return a.Diagnostics
}

// ensureDownloadDir creates the download directory, restoring the default
// location when none is configured.
func ensureDownloadDir(settings domain.Settings) (domain.Settings, bool, error) {
	changed := false
	if strings.TrimSpace(settings.DownloadDir) == "" {
		settings.DownloadDir = config.DefaultSettings().DownloadDir
		changed = true
	}
	if err := os.MkdirAll(settings.DownloadDir, 0o755); err != nil {
		return settings, changed, fmt.Errorf("create download directory %s: %w", settings.DownloadDir, err)
	}
	return settings, changed, nil
}

// ensureLocalBinOnPATH prepends the per-user tool directory to PATH so
// user-installed ffmpeg builds are found by diagnostics and exports.
func ensureLocalBinOnPATH(homeDir string) error {
	binDir := filepath.Join(homeDir, appDirName, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	current := os.Getenv("PATH")
	for _, entry := range filepath.SplitList(current) {
		if filepath.Clean(entry) == filepath.Clean(binDir) {
			return nil
		}
	}
	if current == "" {
		return os.Setenv("PATH", binDir)
	}
	return os.Setenv("PATH", binDir+string(os.PathListSeparator)+current)
}

// recipe installs ffmpeg through one package manager.
type recipe struct {
	manager string
	steps   [][]string
	elevate bool
}

// ffmpegRecipes lists package managers for goos in preference order.
func ffmpegRecipes(goos string) []recipe {
	switch goos {
	case "windows":
		return []recipe{
			{manager: "winget", steps: [][]string{{"winget", "install", "--id", "Gyan.FFmpeg", "--exact", "--accept-source-agreements", "--accept-package-agreements"}}},
			{manager: "choco", steps: [][]string{{"choco", "install", "ffmpeg", "-y"}}},
			{manager: "scoop", steps: [][]string{{"scoop", "install", "ffmpeg"}}},
		}
	case "darwin":
		return []recipe{
			{manager: "brew", steps: [][]string{{"brew", "install", "ffmpeg"}}},
			{manager: "port", steps: [][]string{{"port", "install", "ffmpeg"}}, elevate: true},
		}
	default:
		return []recipe{
			{manager: "apt-get", steps: [][]string{{"apt-get", "update"}, {"apt-get", "install", "-y", "ffmpeg"}}, elevate: true},
			{manager: "dnf", steps: [][]string{{"dnf", "install", "-y", "ffmpeg"}}, elevate: true},
			{manager: "pacman", steps: [][]string{{"pacman", "-Sy", "--noconfirm", "ffmpeg"}}, elevate: true},
			{manager: "zypper", steps: [][]string{{"zypper", "install", "-y", "ffmpeg"}}, elevate: true},
			{manager: "brew", steps: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	}
}

// installer runs package manager recipes.
type installer struct {
	goos     string
	lookPath func(string) (string, error)
	run      func(ctx context.Context, argv []string) error
}

func newInstaller() *installer {
	return &installer{goos: goruntime.GOOS, lookPath: exec.LookPath, run: runStep}
}

func (in *installer) installFFmpeg(ctx context.Context) error {
	if err := in.install(ctx, ffmpegRecipes(in.goos)); err != nil {
		return fmt.Errorf("install ffmpeg: %w", err)
	}
	var missing []string
	for _, tool := range []string{"ffmpeg", "ffprobe"} {
		if _, err := in.lookPath(tool); err != nil {
			missing = append(missing, tool)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("installed, but not on PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}

// install tries each recipe whose manager exists until one succeeds.
func (in *installer) install(ctx context.Context, recipes []recipe) error {
	var failures []string
	for _, r := range recipes {
		if _, err := in.lookPath(r.manager); err != nil {
			continue
		}
		err := in.runRecipe(ctx, r)
		if err == nil {
			return nil
		}
		failures = append(failures, fmt.Sprintf("%s: %v", r.manager, err))
	}
	if len(failures) == 0 {
		return fmt.Errorf("no supported package manager found for %s", in.goos)
	}
	return errors.New(strings.Join(failures, " | "))
}

func (in *installer) runRecipe(ctx context.Context, r recipe) error {
	for _, step := range r.steps {
		if err := in.runStep(ctx, step, r.elevate); err != nil {
			return err
		}
	}
	return nil
}

// runStep runs argv directly, then through pkexec or non-interactive sudo
// when the manager needs root.
func (in *installer) runStep(ctx context.Context, argv []string, elevate bool) error {
	attempts := [][]string{argv}
	if elevate && in.goos != "windows" {
		if _, err := in.lookPath("pkexec"); err == nil {
			attempts = append(attempts, append([]string{"pkexec"}, argv...))
		}
		if _, err := in.lookPath("sudo"); err == nil {
			attempts = append(attempts, append([]string{"sudo", "-n"}, argv...))
		}
	}

	var errs []string
	for _, attempt := range attempts {
		err := in.run(ctx, attempt)
		if err == nil {
			return nil
		}
		errs = append(errs, err.Error())
	}
	return errors.New(strings.Join(errs, " | "))
}

func runStep(ctx context.Context, argv []string) error {
	ctx, cancel := context.WithTimeout(ctx, installStepTimeout)
	defer cancel()

	command := strings.Join(argv, " ")
	output, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", command, installStepTimeout)
	}

	tail := strings.TrimSpace(string(output))
	if len(tail) > 500 {
		tail = "..." + tail[len(tail)-500:]
	}
	if tail == "" {
		return fmt.Errorf("%s failed: %w", command, err)
	}
	return fmt.Errorf("%s failed: %w (%s)", command, err, tail)
}
