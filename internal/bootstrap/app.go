package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/jonboulle/clockwork"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"video-upscaler/internal/asset"
	"video-upscaler/internal/compare"
	"video-upscaler/internal/config"
	"video-upscaler/internal/diagnostics"
	"video-upscaler/internal/domain"
	"video-upscaler/internal/encoder"
	"video-upscaler/internal/export"
	"video-upscaler/internal/flow"
	"video-upscaler/internal/jobs"
	"video-upscaler/internal/logger"
	"video-upscaler/internal/media"
	"video-upscaler/internal/metrics"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

const (
	appDirName = ".video-upscaler"
	eventName  = "app:event"
)

var videoDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Video files",
		Pattern:     "*.mp4;*.avi;*.mov;*.mkv;*.webm",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// App wires configuration, the flow controller, exports and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Flow        *flow.Controller
	Exports     *export.Orchestrator
	Registry    *asset.Registry
	Metrics     *metrics.Metrics
	Logger      hclog.Logger
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker
	sources     export.SourceFactory

	mu          sync.Mutex
	events      *jobs.EventBus
	runtimeCtx  context.Context
	unsubscribe func()
	comparison  *comparison
}

// comparison is a mounted result-view comparison and the players behind it.
type comparison struct {
	session *compare.Session
	players []media.Source
}

// Deps carries the collaborators New would otherwise build from the OS.
type Deps struct {
	Store     config.Store
	Recorder  encoder.Recorder
	Sources   export.SourceFactory
	Checker   *diagnostics.Checker
	Clock     clockwork.Clock
	Increment func() float64
	Logger    hclog.Logger
	// ProfilesPath optionally overrides the embedded encoding profiles.
	ProfilesPath string
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	if err := ensureLocalBinOnPATH(homeDir); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}
	if err := config.LoadEnv(); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	store := config.NewJSONStore(filepath.Join(homeDir, appDirName, "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings = config.ApplyEnv(settings)
	log := logger.New("video-upscaler", settings.LogLevel, settings.LogFormat)

	loadTimeout := time.Duration(config.GetEnvInt(config.EnvLoadTimeout, int(media.DefaultLoadTimeout/time.Second))) * time.Second

	app, err := NewWithDeps(Deps{
		Store:    store,
		Recorder: encoder.NewFFmpegRecorder("ffmpeg", log.Named("encoder")),
		Sources:  export.FileSources(media.WithLoadTimeout(loadTimeout)),
		Checker:  diagnostics.NewChecker(),
		Logger:   log,

		ProfilesPath: filepath.Join(homeDir, appDirName, "profiles.yaml"),
	})
	if err != nil {
		return nil, err
	}
	app.assets = assets
	return app, nil
}

// NewWithDeps builds the application around injected collaborators.
func NewWithDeps(deps Deps) (*App, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("settings store is required")
	}
	if deps.Recorder == nil {
		return nil, fmt.Errorf("recorder is required")
	}
	if deps.Sources == nil {
		deps.Sources = export.FileSources()
	}
	if deps.Logger == nil {
		deps.Logger = hclog.NewNullLogger()
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}

	settings, err := deps.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings = config.Normalize(settings)

	profiles, err := config.LoadProfiles(deps.ProfilesPath)
	if err != nil {
		return nil, fmt.Errorf("load encoding profiles: %w", err)
	}

	app := &App{
		Settings: settings,
		Store:    deps.Store,
		Registry: asset.NewRegistry(),
		Metrics:  metrics.New(),
		Logger:   deps.Logger,
		checker:  deps.Checker,
		sources:  deps.Sources,
		events:   jobs.NewEventBus(1000),
	}

	app.Exports = export.New(export.Config{
		Recorder: deps.Recorder,
		Sources:  deps.Sources,
		Sink:     &settingsSink{app: app},
		Profiles: profiles,
		Events:   app.events,
		Metrics:  app.Metrics,
		Logger:   deps.Logger.Named("export"),
		Clock:    deps.Clock,
	})
	app.Flow = flow.New(flow.Options{
		Clock:     deps.Clock,
		Increment: deps.Increment,
		Exports:   app.Exports,
		Events:    app.events,
		Logger:    deps.Logger.Named("flow"),
	})
	app.unsubscribe = app.events.Subscribe(app.emit)

	if app.checker != nil {
		app.Diagnostics = app.checker.Run(settings)
	}
	return app, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{Handler: a.Handler()}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	}

	return wails.Run(&options.App{
		Title:       "Video Upscaler",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		DragAndDrop: &options.DragAndDrop{EnableFileDrop: true},
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events and file drops.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = ctx
	a.mu.Unlock()

	wailsruntime.OnFileDrop(ctx, func(_, _ int, paths []string) {
		if len(paths) == 0 {
			return
		}
		if _, err := a.SelectFile(paths[0]); err != nil {
			a.publishError(err)
		}
	})
}

// Shutdown cancels any running export and releases the selected asset.
func (a *App) Shutdown(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = nil
	unsubscribe := a.unsubscribe
	a.unsubscribe = nil
	a.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if err := a.Exports.Cancel(); err == nil {
		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, _ = a.Exports.Wait(waitCtx)
		cancel()
	}
	a.closeComparison()
	if err := a.Flow.Reset(); err != nil {
		a.Logger.Warn("reset on shutdown", "error", err)
	}
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.Normalize(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	a.refreshDiagnosticsFromSettings(normalized)
	return normalized, nil
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	return a.refreshDiagnosticsFromSettings(settings), nil
}

// PickInputFile opens a native file dialog for video selection.
func (a *App) PickInputFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select video file",
		Filters: videoDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// PickDownloadDirectory opens a native directory picker for exported files.
func (a *App) PickDownloadDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select download directory",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// SelectFile validates a video on disk and makes it the current asset.
func (a *App) SelectFile(path string) (flow.Snapshot, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return a.Flow.Snapshot(), domain.NewError(domain.KindValidation, "select", "no file selected", nil)
	}

	selected, err := asset.Open(a.Registry, path)
	if err != nil {
		a.Logger.Info("file rejected", "path", path, "reason", asset.UserMessage(err))
		return a.Flow.Snapshot(), err
	}
	if err := a.Flow.SelectAsset(selected); err != nil {
		_ = selected.Preview.Release()
		return a.Flow.Snapshot(), err
	}
	return a.Flow.Snapshot(), nil
}

// GetSnapshot returns the full UI state.
func (a *App) GetSnapshot() flow.Snapshot {
	return a.Flow.Snapshot()
}

// UpdateOutputSettings replaces the export configuration while configuring.
func (a *App) UpdateOutputSettings(settings domain.OutputSettings) (flow.Snapshot, error) {
	err := a.Flow.UpdateSettings(settings)
	return a.Flow.Snapshot(), err
}

// StartProcessing starts the simulated processing step.
func (a *App) StartProcessing() (flow.Snapshot, error) {
	err := a.Flow.StartProcessing()
	return a.Flow.Snapshot(), err
}

// CancelProcessing abandons processing and returns to upload.
func (a *App) CancelProcessing() (flow.Snapshot, error) {
	a.closeComparison()
	err := a.Flow.CancelProcessing()
	return a.Flow.Snapshot(), err
}

// Back navigates one step back.
func (a *App) Back() (flow.Snapshot, error) {
	a.closeComparison()
	err := a.Flow.Back()
	return a.Flow.Snapshot(), err
}

// Reset returns to upload with default settings.
func (a *App) Reset() (flow.Snapshot, error) {
	if a.Exports.InFlight() {
		return a.Flow.Snapshot(), flow.ErrExportInFlight
	}
	a.closeComparison()
	err := a.Flow.Reset()
	return a.Flow.Snapshot(), err
}

// StartExport exports the selected asset with the current settings. A
// request while an export runs returns that export unchanged.
func (a *App) StartExport() (domain.ExportJob, error) {
	if step := a.Flow.Step(); step != domain.StepResult {
		return domain.ExportJob{}, fmt.Errorf("export in %s: %w", step, flow.ErrInvalidStep)
	}
	job, err := a.Exports.Start(context.Background(), export.Request{
		Asset:    a.Flow.Asset(),
		Settings: a.Flow.Settings(),
	})
	if errors.Is(err, jobs.ErrJobAlreadyRunning) {
		return job, nil
	}
	return job, err
}

// CancelExport stops the running export without delivering anything.
func (a *App) CancelExport() error {
	return a.Exports.Cancel()
}

// CurrentExport returns the current export state.
func (a *App) CurrentExport() domain.ExportJob {
	return a.Exports.Current()
}

// Events returns all events with sequence greater than sinceSeq.
func (a *App) Events(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// OpenComparison mounts a synced original/enhanced comparison in the result view.
func (a *App) OpenComparison() error {
	a.closeComparison()

	selected := a.Flow.Asset()
	if selected == nil {
		return domain.NewError(domain.KindValidation, "compare", "no asset selected", nil)
	}

	players := make([]media.Source, 0, 2)
	cleanup := func() {
		for _, p := range players {
			_ = p.Close()
		}
	}
	for i := 0; i < 2; i++ {
		src, err := a.sources(selected)
		if err != nil {
			cleanup()
			return err
		}
		players = append(players, src)
		if _, err := src.Load(context.Background()); err != nil {
			cleanup()
			return err
		}
	}

	session, err := a.Flow.MountComparison(players[0], players[1])
	if err != nil {
		cleanup()
		return err
	}

	a.mu.Lock()
	a.comparison = &comparison{session: session, players: players}
	a.mu.Unlock()
	return nil
}

// ToggleComparison plays or pauses both comparison views.
func (a *App) ToggleComparison() error {
	a.mu.Lock()
	current := a.comparison
	a.mu.Unlock()
	if current == nil {
		return fmt.Errorf("no comparison mounted")
	}
	return current.session.Toggle()
}

// CloseComparison stops synchronization and releases the comparison players.
func (a *App) CloseComparison() {
	a.closeComparison()
}

func (a *App) closeComparison() {
	a.mu.Lock()
	current := a.comparison
	a.comparison = nil
	a.mu.Unlock()
	if current == nil {
		return
	}
	current.session.Close()
	for _, p := range current.players {
		_ = p.Close()
	}
}

// OpenOutputFolder opens the given path (or configured download dir) in file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		target = a.downloadDir()
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

func (a *App) downloadDir() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Settings.DownloadDir
}

// settingsSink delivers into whatever download directory is configured at
// delivery time.
type settingsSink struct {
	app *App
}

func (s *settingsSink) Deliver(name, mimeType string, r io.Reader) (string, error) {
	dir := s.app.downloadDir()
	if dir == "" {
		dir = config.DefaultSettings().DownloadDir
	}
	return export.NewDirSink(dir).Deliver(name, mimeType, r)
}

// emit pushes bus events to the frontend.
func (a *App) emit(event jobs.Event) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, eventName, event)
	}
}

func (a *App) publishError(err error) {
	a.events.Publish(jobs.Event{
		Type:    jobs.EventTypeError,
		Message: err.Error(),
	})
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
