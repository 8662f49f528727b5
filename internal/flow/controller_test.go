package flow

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-upscaler/internal/asset"
	"video-upscaler/internal/config"
	"video-upscaler/internal/domain"
	"video-upscaler/internal/jobs"
)

type fakeExports struct{ running atomic.Bool }

func (f *fakeExports) InFlight() bool { return f.running.Load() }

type fakeCursor struct{ paused bool }

func (c *fakeCursor) Play() error          { c.paused = false; return nil }
func (c *fakeCursor) Pause()               { c.paused = true }
func (c *fakeCursor) Paused() bool         { return c.paused }
func (c *fakeCursor) CurrentTime() float64 { return 0 }
func (c *fakeCursor) Seek(float64) error   { return nil }

type fixture struct {
	ctrl     *Controller
	clock    clockwork.FakeClock
	registry *asset.Registry
	exports  *fakeExports
}

func newFixture() *fixture {
	clock := clockwork.NewFakeClock()
	exports := &fakeExports{}
	return &fixture{
		ctrl: New(Options{
			Clock:     clock,
			Increment: func() float64 { return 2 },
			Exports:   exports,
			Events:    jobs.NewEventBus(1000),
		}),
		clock:    clock,
		registry: asset.NewRegistry(),
		exports:  exports,
	}
}

func (f *fixture) newAsset(t *testing.T, name string) *asset.MediaAsset {
	t.Helper()
	a, err := asset.New(f.registry, name, "video/mp4", 1000, asset.BytesPayload("data"))
	require.NoError(t, err)
	return a
}

func (f *fixture) runProcessing(t *testing.T) {
	t.Helper()
	require.NoError(t, f.ctrl.StartProcessing())
	require.Eventually(t, func() bool {
		f.clock.Advance(200 * time.Millisecond)
		return f.ctrl.Step() == domain.StepResult
	}, 5*time.Second, time.Millisecond)
}

// TestHappyPathReachesResult walks upload, configure, process and result.
func TestHappyPathReachesResult(t *testing.T) {
	f := newFixture()
	assert.Equal(t, domain.StepUpload, f.ctrl.Step())
	assert.Equal(t, config.DefaultOutputSettings(), f.ctrl.Settings())

	require.NoError(t, f.ctrl.SelectAsset(f.newAsset(t, "clip.mp4")))
	assert.Equal(t, domain.StepConfigure, f.ctrl.Step())

	settings := domain.OutputSettings{Resolution: domain.Resolution1080p, FPS: 30, Format: domain.FormatWebM, Quality: domain.QualityFast}
	require.NoError(t, f.ctrl.UpdateSettings(settings))

	f.runProcessing(t)
	snap := f.ctrl.Snapshot()
	assert.Equal(t, domain.StepResult, snap.Step)
	assert.True(t, snap.Processing.IsComplete)
	assert.Equal(t, "Complete!", snap.Processing.StatusMessage)
	assert.Equal(t, int64(1800), snap.EstimatedSizeBytes)
	require.NotNil(t, snap.Asset)
	assert.Equal(t, "clip.mp4", snap.Asset.Name)
	assert.Contains(t, snap.Asset.PreviewURL, "blob:")

	var steps []domain.AppStep
	for _, e := range f.ctrl.Events().Since(0) {
		if e.Type == jobs.EventTypeStep {
			steps = append(steps, e.Step)
		}
	}
	assert.Equal(t, []domain.AppStep{domain.StepConfigure, domain.StepProcess, domain.StepResult}, steps)
}

// TestOperationsRequireTheirStep verifies precursor checks.
func TestOperationsRequireTheirStep(t *testing.T) {
	f := newFixture()
	assert.ErrorIs(t, f.ctrl.StartProcessing(), ErrInvalidStep)
	assert.ErrorIs(t, f.ctrl.UpdateSettings(config.DefaultOutputSettings()), ErrInvalidStep)
	assert.ErrorIs(t, f.ctrl.Back(), ErrInvalidStep)
	_, err := f.ctrl.MountComparison(&fakeCursor{}, &fakeCursor{})
	assert.ErrorIs(t, err, ErrInvalidStep)
	assert.True(t, domain.IsKind(f.ctrl.SelectAsset(nil), domain.KindValidation))

	require.NoError(t, f.ctrl.SelectAsset(f.newAsset(t, "a.mp4")))
	assert.ErrorIs(t, f.ctrl.SelectAsset(f.newAsset(t, "b.mp4")), ErrInvalidStep)

	bad := config.DefaultOutputSettings()
	bad.Resolution = "8K"
	assert.True(t, domain.IsKind(f.ctrl.UpdateSettings(bad), domain.KindValidation))
}

// TestResetReleasesHandleOnce verifies handle ownership on reset.
func TestResetReleasesHandleOnce(t *testing.T) {
	f := newFixture()
	a := f.newAsset(t, "clip.mp4")
	require.NoError(t, f.ctrl.SelectAsset(a))
	require.NoError(t, f.ctrl.UpdateSettings(domain.OutputSettings{Resolution: domain.Resolution1080p, FPS: 50, Format: domain.FormatMOV, Quality: domain.QualityHigh}))

	require.NoError(t, f.ctrl.Reset())
	assert.Equal(t, domain.StepUpload, f.ctrl.Step())
	assert.Nil(t, f.ctrl.Asset())
	assert.Equal(t, config.DefaultOutputSettings(), f.ctrl.Settings())
	assert.Equal(t, 0, f.registry.Live())
	assert.ErrorIs(t, a.Preview.Release(), asset.ErrHandleReleased)

	require.NoError(t, f.ctrl.Reset())
}

// TestResetRefusedWhileExporting verifies the in-flight guard.
func TestResetRefusedWhileExporting(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.ctrl.SelectAsset(f.newAsset(t, "clip.mp4")))
	f.runProcessing(t)

	f.exports.running.Store(true)
	assert.ErrorIs(t, f.ctrl.Reset(), ErrExportInFlight)
	assert.Equal(t, domain.StepResult, f.ctrl.Step())
	assert.Equal(t, 1, f.registry.Live())

	f.exports.running.Store(false)
	require.NoError(t, f.ctrl.Reset())
}

// TestBackKeepsAssetAndReplacementReleases verifies back navigation.
func TestBackKeepsAssetAndReplacementReleases(t *testing.T) {
	f := newFixture()
	first := f.newAsset(t, "first.mp4")
	require.NoError(t, f.ctrl.SelectAsset(first))
	f.runProcessing(t)

	require.NoError(t, f.ctrl.Back())
	assert.Equal(t, domain.StepConfigure, f.ctrl.Step())
	require.NoError(t, f.ctrl.Back())
	assert.Equal(t, domain.StepUpload, f.ctrl.Step())
	assert.Same(t, first, f.ctrl.Asset())
	assert.Equal(t, 1, f.registry.Live())

	second := f.newAsset(t, "second.mp4")
	require.NoError(t, f.ctrl.SelectAsset(second))
	assert.Same(t, second, f.ctrl.Asset())
	assert.Equal(t, 1, f.registry.Live())
	_, err := first.Preview.Open()
	assert.ErrorIs(t, err, asset.ErrHandleRevoked)
}

// TestCancelProcessingStopsSimulator verifies no late transition to result.
func TestCancelProcessingStopsSimulator(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.ctrl.SelectAsset(f.newAsset(t, "clip.mp4")))
	require.NoError(t, f.ctrl.StartProcessing())
	f.clock.Advance(200 * time.Millisecond)

	require.NoError(t, f.ctrl.CancelProcessing())
	for i := 0; i < 100; i++ {
		f.clock.Advance(200 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, domain.StepUpload, f.ctrl.Step())
	assert.Equal(t, 0.0, f.ctrl.Snapshot().Processing.Progress)
}

// TestComparisonClosedBeforeRelease verifies sessions end with the asset.
func TestComparisonClosedBeforeRelease(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.ctrl.SelectAsset(f.newAsset(t, "clip.mp4")))
	f.runProcessing(t)

	session, err := f.ctrl.MountComparison(&fakeCursor{paused: true}, &fakeCursor{paused: true})
	require.NoError(t, err)
	require.NoError(t, f.ctrl.Reset())
	assert.True(t, session.Closed())

	require.NoError(t, f.ctrl.SelectAsset(f.newAsset(t, "next.mp4")))
	f.runProcessing(t)
	session, err = f.ctrl.MountComparison(&fakeCursor{}, &fakeCursor{})
	require.NoError(t, err)
	require.NoError(t, f.ctrl.Back())
	assert.True(t, session.Closed())
}
