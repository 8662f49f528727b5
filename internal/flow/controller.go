// Package flow sequences the upload, configure, process and result steps and
// owns the selected asset for its whole lifetime.
package flow

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/jonboulle/clockwork"

	"video-upscaler/internal/asset"
	"video-upscaler/internal/compare"
	"video-upscaler/internal/config"
	"video-upscaler/internal/domain"
	"video-upscaler/internal/jobs"
	"video-upscaler/internal/progress"
)

var (
	// ErrExportInFlight refuses operations that would pull the asset out from
	// under a running export.
	ErrExportInFlight = errors.New("export in flight")
	// ErrInvalidStep is returned for operations not allowed in the current step.
	ErrInvalidStep = errors.New("operation not allowed in current step")
)

// ExportTracker reports whether an export is running.
type ExportTracker interface {
	InFlight() bool
}

// Options configures a Controller.
type Options struct {
	Clock clockwork.Clock
	// Increment overrides the simulator's random progress increments.
	Increment func() float64
	Exports   ExportTracker
	Events    *jobs.EventBus
	Logger    hclog.Logger
	Defaults  domain.OutputSettings
}

// AssetInfo is the UI view of the selected asset.
type AssetInfo struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	MimeType   string `json:"mimeType"`
	PreviewID  string `json:"previewId"`
	PreviewURL string `json:"previewUrl"`
}

// Snapshot is the full UI state.
type Snapshot struct {
	Step               domain.AppStep         `json:"step"`
	Asset              *AssetInfo             `json:"asset,omitempty"`
	Settings           domain.OutputSettings  `json:"settings"`
	Processing         domain.ProcessingState `json:"processing"`
	EstimatedSizeBytes int64                  `json:"estimatedSizeBytes,omitempty"`
}

// Controller is the application state machine.
type Controller struct {
	opts Options

	mu          sync.Mutex
	step        domain.AppStep
	asset       *asset.MediaAsset
	settings    domain.OutputSettings
	processing  domain.ProcessingState
	sim         *progress.Simulator
	simGen      uint64
	comparisons []*compare.Session
}

// New creates a controller at the upload step.
func New(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Events == nil {
		opts.Events = jobs.NewEventBus(500)
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if opts.Defaults == (domain.OutputSettings{}) {
		opts.Defaults = config.DefaultOutputSettings()
	}
	return &Controller{
		opts:       opts,
		step:       domain.StepUpload,
		settings:   opts.Defaults,
		processing: progress.Initial(),
	}
}

// Events returns the bus step and processing events go to.
func (c *Controller) Events() *jobs.EventBus {
	return c.opts.Events
}

// Step returns the active step.
func (c *Controller) Step() domain.AppStep {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// Asset returns the selected asset, if any.
func (c *Controller) Asset() *asset.MediaAsset {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.asset
}

// Settings returns a copy of the live output settings.
func (c *Controller) Settings() domain.OutputSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Snapshot returns the full UI state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{Step: c.step, Settings: c.settings, Processing: c.processing}
	if c.asset != nil {
		snap.Asset = &AssetInfo{
			Name:     c.asset.Name,
			Size:     c.asset.Size,
			MimeType: c.asset.MimeType,
		}
		if c.asset.Preview != nil {
			snap.Asset.PreviewID = c.asset.Preview.ID()
			snap.Asset.PreviewURL = c.asset.Preview.URL()
		}
		if c.step == domain.StepResult {
			snap.EstimatedSizeBytes = c.settings.EstimatedSizeBytes(c.asset.Size)
		}
	}
	return snap
}

// SelectAsset takes ownership of a and moves to configure. An asset kept
// from an earlier back navigation is released first.
func (c *Controller) SelectAsset(a *asset.MediaAsset) error {
	if a == nil {
		return domain.NewError(domain.KindValidation, "select", "no asset", nil)
	}
	if c.exportInFlight() {
		return ErrExportInFlight
	}

	c.mu.Lock()
	if c.step != domain.StepUpload {
		step := c.step
		c.mu.Unlock()
		return fmt.Errorf("select asset in %s: %w", step, ErrInvalidStep)
	}
	previous := c.asset
	c.asset = a
	c.step = domain.StepConfigure
	c.mu.Unlock()

	c.releaseAsset(previous)
	c.opts.Logger.Info("asset selected", "name", a.Name, "size", a.Size, "mime", a.MimeType)
	c.publishStep(domain.StepConfigure)
	return nil
}

// UpdateSettings replaces the output settings while configuring.
func (c *Controller) UpdateSettings(settings domain.OutputSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step != domain.StepConfigure {
		return fmt.Errorf("update settings in %s: %w", c.step, ErrInvalidStep)
	}
	c.settings = settings
	return nil
}

// StartProcessing enters the process step and starts the simulator.
func (c *Controller) StartProcessing() error {
	c.mu.Lock()
	if c.step != domain.StepConfigure {
		step := c.step
		c.mu.Unlock()
		return fmt.Errorf("start processing in %s: %w", step, ErrInvalidStep)
	}
	if c.asset == nil {
		c.mu.Unlock()
		return domain.NewError(domain.KindValidation, "process", "no asset selected", nil)
	}

	c.step = domain.StepProcess
	c.processing = progress.Initial()
	c.simGen++
	token := c.simGen
	c.sim = progress.Start(progress.Options{
		Clock:      c.opts.Clock,
		Increment:  c.opts.Increment,
		OnUpdate:   func(state domain.ProcessingState) { c.onProcessing(token, state) },
		OnComplete: func() { c.onProcessingComplete(token) },
	})
	c.mu.Unlock()

	c.publishStep(domain.StepProcess)
	return nil
}

func (c *Controller) onProcessing(token uint64, state domain.ProcessingState) {
	c.mu.Lock()
	if c.simGen != token {
		c.mu.Unlock()
		return
	}
	c.processing = state
	c.mu.Unlock()

	c.opts.Events.Publish(jobs.Event{
		Type:       jobs.EventTypeProcessing,
		Step:       domain.StepProcess,
		Processing: &state,
	})
}

func (c *Controller) onProcessingComplete(token uint64) {
	c.mu.Lock()
	if c.simGen != token || c.step != domain.StepProcess {
		c.mu.Unlock()
		return
	}
	c.sim = nil
	c.simGen++
	c.step = domain.StepResult
	c.mu.Unlock()

	c.publishStep(domain.StepResult)
}

// Back goes from result to configure, or from configure to upload keeping
// the asset.
func (c *Controller) Back() error {
	c.mu.Lock()
	var next domain.AppStep
	var sessions []*compare.Session
	switch c.step {
	case domain.StepResult:
		next = domain.StepConfigure
		sessions = c.comparisons
		c.comparisons = nil
	case domain.StepConfigure:
		next = domain.StepUpload
	default:
		step := c.step
		c.mu.Unlock()
		return fmt.Errorf("back from %s: %w", step, ErrInvalidStep)
	}
	c.step = next
	c.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	c.publishStep(next)
	return nil
}

// CancelProcessing abandons the simulated processing and resets the app.
func (c *Controller) CancelProcessing() error {
	return c.Reset()
}

// Reset returns to upload with default settings, releasing the asset.
func (c *Controller) Reset() error {
	if c.exportInFlight() {
		return ErrExportInFlight
	}

	c.mu.Lock()
	sim := c.sim
	sessions := c.comparisons
	previous := c.asset
	c.sim = nil
	c.simGen++
	c.comparisons = nil
	c.asset = nil
	c.step = domain.StepUpload
	c.settings = c.opts.Defaults
	c.processing = progress.Initial()
	c.mu.Unlock()

	if sim != nil {
		sim.Cancel()
	}
	for _, s := range sessions {
		s.Close()
	}
	c.releaseAsset(previous)
	c.publishStep(domain.StepUpload)
	return nil
}

// MountComparison starts a synced comparison over the asset preview. The
// session is closed by Back and Reset.
func (c *Controller) MountComparison(leader, follower compare.Cursor) (*compare.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step != domain.StepResult {
		return nil, fmt.Errorf("mount comparison in %s: %w", c.step, ErrInvalidStep)
	}
	if c.asset == nil || c.asset.Preview == nil {
		return nil, domain.NewError(domain.KindValidation, "compare", "no preview available", nil)
	}
	session, err := compare.Open(c.asset.Preview, leader, follower, c.opts.Clock)
	if err != nil {
		return nil, err
	}
	c.comparisons = append(c.comparisons, session)
	return session, nil
}

func (c *Controller) exportInFlight() bool {
	return c.opts.Exports != nil && c.opts.Exports.InFlight()
}

func (c *Controller) releaseAsset(a *asset.MediaAsset) {
	if a == nil || a.Preview == nil {
		return
	}
	if err := a.Preview.Release(); err != nil {
		c.opts.Logger.Warn("release preview", "name", a.Name, "error", err)
	}
}

func (c *Controller) publishStep(step domain.AppStep) {
	c.opts.Logger.Debug("step changed", "step", step)
	c.opts.Events.Publish(jobs.Event{Type: jobs.EventTypeStep, Step: step})
}
