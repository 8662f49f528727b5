// Package export re-encodes a media asset through the render target and an
// encoder session, falling back to the original bytes when anything fails.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/jonboulle/clockwork"

	"video-upscaler/internal/asset"
	"video-upscaler/internal/config"
	"video-upscaler/internal/domain"
	"video-upscaler/internal/encoder"
	"video-upscaler/internal/jobs"
	"video-upscaler/internal/media"
	"video-upscaler/internal/metrics"
	"video-upscaler/internal/mux"
	"video-upscaler/internal/render"
)

// SourceFactory opens a playable source for an asset.
type SourceFactory func(a *asset.MediaAsset) (media.Source, error)

// FileSources plays on-disk assets through ffmpeg.
func FileSources(opts ...media.PlayerOption) SourceFactory {
	return func(a *asset.MediaAsset) (media.Source, error) {
		path, ok := a.Payload.Path()
		if !ok {
			return nil, domain.NewError(domain.KindLoad, "open source", "asset is not backed by a file", nil)
		}
		return media.NewPlayer(media.NewFFmpegDecoder(path), opts...), nil
	}
}

// Request is one export: the asset and a copy of the settings at start.
type Request struct {
	Asset    *asset.MediaAsset
	Settings domain.OutputSettings
}

// Config wires the orchestrator. Recorder, Sources and Sink are required.
type Config struct {
	Recorder    encoder.Recorder
	Sources     SourceFactory
	Sink        Sink
	Profiles    config.Profiles
	Jobs        *jobs.Manager
	Events      *jobs.EventBus
	Metrics     *metrics.Metrics
	Logger      hclog.Logger
	Clock       clockwork.Clock
	FrameBuffer int
}

// Orchestrator runs at most one export at a time.
type Orchestrator struct {
	cfg Config

	mu     sync.Mutex
	jobID  string
	cancel context.CancelFunc
	done   chan struct{}
}

// New fills defaults for optional collaborators.
func New(cfg Config) *Orchestrator {
	if cfg.Jobs == nil {
		cfg.Jobs = jobs.NewManager()
	}
	if cfg.Events == nil {
		cfg.Events = jobs.NewEventBus(500)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Profiles == (config.Profiles{}) {
		cfg.Profiles = config.DefaultProfiles()
	}
	closed := make(chan struct{})
	close(closed)
	return &Orchestrator{cfg: cfg, done: closed}
}

// Events returns the bus export events are published on.
func (o *Orchestrator) Events() *jobs.EventBus {
	return o.cfg.Events
}

// Start launches an export in the background. While another export is in
// flight it returns that export together with jobs.ErrJobAlreadyRunning.
func (o *Orchestrator) Start(ctx context.Context, req Request) (domain.ExportJob, error) {
	if req.Asset == nil {
		return domain.ExportJob{}, domain.NewError(domain.KindValidation, "export", "no asset selected", nil)
	}
	settings := req.Settings
	if err := settings.Validate(); err != nil {
		return domain.ExportJob{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	width, height := settings.Resolution.Dimensions()
	job := domain.ExportJob{
		ID:      uuid.NewString(),
		Width:   width,
		Height:  height,
		FPS:     settings.FPS,
		Bitrate: settings.Resolution.Bitrate(),
	}
	if err := o.cfg.Jobs.Start(job); err != nil {
		if errors.Is(err, jobs.ErrJobAlreadyRunning) {
			return o.cfg.Jobs.Current(), err
		}
		return domain.ExportJob{}, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.jobID, o.cancel, o.done = job.ID, cancel, done

	logger := o.cfg.Logger.With("export_id", job.ID)
	logger.Info("export started",
		"asset", req.Asset.Name,
		"resolution", settings.Resolution,
		"fps", settings.FPS,
		"format", settings.Format,
		"quality", settings.Quality,
	)
	o.cfg.Metrics.ExportStarted()
	o.publishStatus(job.ID, domain.ExportStatusPriming, "Export started")

	go o.run(runCtx, cancel, done, logger, job.ID, req.Asset, settings)
	return o.cfg.Jobs.Current(), nil
}

// Cancel stops the running export without delivering anything.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()

	if cancel == nil || !o.cfg.Jobs.IsRunning() {
		return jobs.ErrNoRunningJob
	}
	cancel()
	return nil
}

// Current returns a snapshot of the current export.
func (o *Orchestrator) Current() domain.ExportJob {
	return o.cfg.Jobs.Current()
}

// InFlight reports whether an export is running.
func (o *Orchestrator) InFlight() bool {
	return o.cfg.Jobs.IsRunning()
}

// Done is closed when the latest export has finished.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

// Wait blocks until the latest export finishes and returns its final state.
func (o *Orchestrator) Wait(ctx context.Context) (domain.ExportJob, error) {
	select {
	case <-o.Done():
		return o.cfg.Jobs.Current(), nil
	case <-ctx.Done():
		return domain.ExportJob{}, ctx.Err()
	}
}

type delivery struct {
	name     string
	path     string
	mimeType string
}

func (o *Orchestrator) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, logger hclog.Logger, id string, a *asset.MediaAsset, settings domain.OutputSettings) {
	started := o.cfg.Clock.Now()
	defer func() {
		o.mu.Lock()
		if o.jobID == id {
			o.cancel = nil
		}
		o.mu.Unlock()
		cancel()
		close(done)
	}()

	result, err := o.execute(ctx, logger, id, a, settings)
	elapsed := o.cfg.Clock.Since(started)

	switch {
	case err == nil:
		o.transition(id, domain.ExportStatusDone, "Export complete")
		o.cfg.Jobs.Update(func(j *domain.ExportJob) {
			j.ArtifactName = result.name
			j.ArtifactPath = result.path
			j.MimeType = result.mimeType
		})
		o.cfg.Events.Publish(jobs.Event{
			JobID:        id,
			Type:         jobs.EventTypeResult,
			Status:       domain.ExportStatusDone,
			Progress:     100,
			Message:      "Export delivered",
			ArtifactName: result.name,
			ArtifactPath: result.path,
			MimeType:     result.mimeType,
		})
		o.cfg.Metrics.ExportFinished(metrics.OutcomeDone, elapsed)
		logger.Info("export finished", "artifact", result.path, "elapsed", elapsed)

	case ctx.Err() != nil:
		_ = o.cfg.Jobs.Cancel()
		o.publishStatus(id, domain.ExportStatusCancelled, "Export cancelled")
		o.cfg.Jobs.Reset()
		o.publishStatus(id, domain.ExportStatusIdle, "")
		o.cfg.Metrics.ExportFinished(metrics.OutcomeCancelled, elapsed)
		logger.Info("export cancelled", "elapsed", elapsed)

	default:
		o.fallback(logger, id, a, err)
		o.cfg.Metrics.ExportFinished(metrics.OutcomeFallback, elapsed)
	}
}

// execute runs priming, rendering and finalizing. Every resource it
// acquires is released before it returns.
func (o *Orchestrator) execute(ctx context.Context, logger hclog.Logger, id string, a *asset.MediaAsset, settings domain.OutputSettings) (delivery, error) {
	source, err := o.cfg.Sources(a)
	if err != nil {
		return delivery{}, err
	}
	defer source.Close()

	meta, err := source.Load(ctx)
	if err != nil {
		return delivery{}, err
	}
	logger.Debug("source loaded", "duration", meta.Duration, "width", meta.Width, "height", meta.Height, "audio", meta.HasAudio)

	width, height := settings.Resolution.Dimensions()
	profile := o.cfg.Profiles.For(settings.Quality)
	target := render.NewTarget(profile.Scaler)
	defer target.Release()
	if err := target.Configure(width, height); err != nil {
		return delivery{}, err
	}
	if err := source.Seek(0); err != nil {
		return delivery{}, domain.NewError(domain.KindLoad, "seek", "cannot rewind source", err)
	}

	video := mux.CaptureVideoTrack(target, settings.FPS, o.cfg.FrameBuffer)
	defer func() { o.cfg.Metrics.AddFramesDropped(video.Dropped()) }()
	if err := target.DrawFrame(source); err != nil {
		return delivery{}, err
	}
	audio, hasAudio := mux.CaptureAudioTrack(source)
	stream := mux.Combine(video, audio, width, height)
	defer stream.Close()

	session, err := encoder.NewSession(o.cfg.Recorder, encoder.PreferencesFor(settings.Format))
	if err != nil {
		return delivery{}, err
	}
	format := session.Format()
	logger.Debug("format negotiated", "mime", format.MimeType, "audio", hasAudio)
	o.cfg.Jobs.Update(func(j *domain.ExportJob) { j.MimeType = format.MimeType })

	if err := ctx.Err(); err != nil {
		return delivery{}, err
	}
	o.transition(id, domain.ExportStatusRendering, fmt.Sprintf("Rendering %dx%d at %d fps", width, height, settings.FPS))

	opts := encoder.Options{
		Bitrate: settings.Resolution.Bitrate(),
		FPS:     int(settings.FPS),
		Profile: profile,
	}
	if err := session.Start(ctx, stream, opts); err != nil {
		return delivery{}, err
	}
	if err := o.renderLoop(ctx, id, source, target, meta.Duration, settings.FPS); err != nil {
		session.Discard()
		return delivery{}, err
	}

	o.transition(id, domain.ExportStatusFinalizing, "Finalizing output")
	stream.Close()
	artifact, err := session.Stop(ctx)
	if err != nil {
		session.Discard()
		return delivery{}, err
	}
	logger.Debug("recording finalized", "bytes", len(artifact.Data))

	name := ArtifactName(settings.Resolution, a.Name, artifact.Extension)
	path, err := o.cfg.Sink.Deliver(name, artifact.MimeType, bytes.NewReader(artifact.Data))
	if err != nil {
		return delivery{}, fmt.Errorf("deliver artifact: %w", err)
	}
	return delivery{name: name, path: path, mimeType: artifact.MimeType}, nil
}

// renderLoop plays the source and draws one frame per tick until playback
// ends. Ticks while the source is paused draw nothing.
func (o *Orchestrator) renderLoop(ctx context.Context, id string, source media.Source, target *render.Target, duration float64, fps domain.FrameRate) error {
	if err := source.Play(); err != nil {
		return domain.NewError(domain.KindLoad, "play", "cannot start playback", err)
	}
	defer source.Pause()

	ticker := o.cfg.Clock.NewTicker(fps.Interval())
	defer ticker.Stop()
	ended := source.Ended()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ended:
			o.reportProgress(id, source.CurrentTime(), duration)
			return nil
		case <-ticker.Chan():
			if source.Paused() {
				continue
			}
			if err := target.DrawFrame(source); err != nil {
				return err
			}
			o.cfg.Metrics.IncFramesRendered()
			o.reportProgress(id, source.CurrentTime(), duration)
		}
	}
}

func (o *Orchestrator) reportProgress(id string, position, duration float64) {
	if p, changed := o.cfg.Jobs.SetProgress(ProgressPercent(position, duration)); changed {
		o.cfg.Events.Publish(jobs.Event{
			JobID:    id,
			Type:     jobs.EventTypeProgress,
			Status:   o.cfg.Jobs.Current().Status,
			Progress: p,
		})
	}
}

// fallback delivers the untouched original under a recognisable name.
func (o *Orchestrator) fallback(logger hclog.Logger, id string, a *asset.MediaAsset, cause error) {
	logger.Error("export failed, delivering original", "error", cause)
	o.transition(id, domain.ExportStatusErrored, "Export failed")
	o.cfg.Events.Publish(jobs.Event{
		JobID:   id,
		Type:    jobs.EventTypeError,
		Status:  domain.ExportStatusErrored,
		Message: cause.Error(),
	})

	name := FallbackName(a.Name)
	path, err := o.deliverOriginal(name, a)
	o.cfg.Jobs.Update(func(j *domain.ExportJob) {
		j.Error = cause.Error()
		if err == nil {
			j.Fallback = true
			j.ArtifactName = name
			j.ArtifactPath = path
			j.MimeType = a.MimeType
		}
	})
	if err != nil {
		logger.Error("fallback delivery failed", "error", err)
		o.cfg.Events.Publish(jobs.Event{
			JobID:   id,
			Type:    jobs.EventTypeError,
			Status:  domain.ExportStatusErrored,
			Message: fmt.Sprintf("deliver original: %v", err),
		})
		return
	}
	o.cfg.Events.Publish(jobs.Event{
		JobID:        id,
		Type:         jobs.EventTypeResult,
		Status:       domain.ExportStatusErrored,
		Message:      "Original file delivered",
		ArtifactName: name,
		ArtifactPath: path,
		MimeType:     a.MimeType,
		Fallback:     true,
	})
}

func (o *Orchestrator) deliverOriginal(name string, a *asset.MediaAsset) (string, error) {
	r, err := a.Payload.Open()
	if err != nil {
		return "", err
	}
	defer r.Close()
	return o.cfg.Sink.Deliver(name, a.MimeType, r)
}

func (o *Orchestrator) transition(id string, status domain.ExportStatus, message string) {
	if err := o.cfg.Jobs.Transition(status); err != nil {
		o.cfg.Logger.Warn("export transition rejected", "export_id", id, "status", status, "error", err)
		return
	}
	o.cfg.Logger.Debug("export status", "export_id", id, "status", status)
	o.publishStatus(id, status, message)
}

func (o *Orchestrator) publishStatus(id string, status domain.ExportStatus, message string) {
	o.cfg.Events.Publish(jobs.Event{
		JobID:   id,
		Type:    jobs.EventTypeStatus,
		Status:  status,
		Message: message,
	})
}
