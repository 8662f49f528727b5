package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-upscaler/internal/asset"
	"video-upscaler/internal/domain"
	"video-upscaler/internal/encoder"
	"video-upscaler/internal/jobs"
	"video-upscaler/internal/media"
	"video-upscaler/internal/mux"
)

// memSink keeps delivered artifacts in memory.
type memSink struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (s *memSink) Deliver(name, _ string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files == nil {
		s.files = make(map[string][]byte)
	}
	s.files[name] = data
	return "mem://" + name, nil
}

func (s *memSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.files))
	for name := range s.files {
		out = append(out, name)
	}
	return out
}

// countingRecorder emits one chunk describing how many frames it consumed.
type countingRecorder struct {
	supported map[string]bool
	startErr  error
}

func (r *countingRecorder) IsTypeSupported(mimeType string) bool { return r.supported[mimeType] }

func (r *countingRecorder) Start(_ context.Context, stream *mux.Stream, _ encoder.Format, _ encoder.Options) (encoder.Recording, error) {
	if r.startErr != nil {
		return nil, r.startErr
	}
	rec := &countingRecording{stream: stream, chunks: make(chan []byte, 1)}
	go func() {
		n := 0
		for range stream.Video.Frames() {
			n++
		}
		rec.chunks <- []byte(fmt.Sprintf("frames=%d audio=%t", n, stream.HasAudio()))
		close(rec.chunks)
	}()
	return rec, nil
}

type countingRecording struct {
	stream *mux.Stream
	chunks chan []byte
}

func (r *countingRecording) Chunks() <-chan []byte { return r.chunks }
func (r *countingRecording) Stop()                 { r.stream.Close() }
func (r *countingRecording) Abort()                { r.stream.Close() }
func (r *countingRecording) Err() error            { return nil }

// inspectingRecorder remembers what each Start was asked to encode and
// fails Stop with the queued errors, one per recording.
type inspectingRecorder struct {
	countingRecorder

	mu       sync.Mutex
	opts     []encoder.Options
	streams  []streamShape
	stopErrs []error
}

type streamShape struct {
	width, height int
	audio         bool
}

func (r *inspectingRecorder) Start(ctx context.Context, stream *mux.Stream, format encoder.Format, opts encoder.Options) (encoder.Recording, error) {
	r.mu.Lock()
	r.opts = append(r.opts, opts)
	r.streams = append(r.streams, streamShape{width: stream.Width, height: stream.Height, audio: stream.HasAudio()})
	var stopErr error
	if len(r.stopErrs) > 0 {
		stopErr, r.stopErrs = r.stopErrs[0], r.stopErrs[1:]
	}
	r.mu.Unlock()

	rec, err := r.countingRecorder.Start(ctx, stream, format, opts)
	if err != nil {
		return nil, err
	}
	return &failingRecording{Recording: rec, err: stopErr}, nil
}

func (r *inspectingRecorder) started() ([]encoder.Options, []streamShape) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]encoder.Options(nil), r.opts...), append([]streamShape(nil), r.streams...)
}

type failingRecording struct {
	encoder.Recording
	err error
}

func (r *failingRecording) Err() error { return r.err }

type harness struct {
	orch  *Orchestrator
	sink  *memSink
	clock clockwork.FakeClock
	asset *asset.MediaAsset
}

func newHarness(t *testing.T, dec *media.SyntheticDecoder, rec encoder.Recorder) *harness {
	t.Helper()
	return newHarnessFor(t, "holiday.clip.mp4", "video/mp4", 11, []byte("original-mp4"), dec, rec)
}

func newHarnessFor(t *testing.T, name, mimeType string, size int64, original []byte, dec *media.SyntheticDecoder, rec encoder.Recorder) *harness {
	t.Helper()
	clock := clockwork.NewFakeClock()
	sink := &memSink{}
	a, err := asset.New(asset.NewRegistry(), name, mimeType, size, asset.BytesPayload(original))
	require.NoError(t, err)

	orch := New(Config{
		Recorder: rec,
		Sources: func(*asset.MediaAsset) (media.Source, error) {
			return media.NewPlayer(dec, media.WithClock(clock)), nil
		},
		Sink:   sink,
		Clock:  clock,
		Logger: hclog.NewNullLogger(),
		Events: jobs.NewEventBus(1000),
	})
	return &harness{orch: orch, sink: sink, clock: clock, asset: a}
}

func (h *harness) settings() domain.OutputSettings {
	return domain.OutputSettings{
		Resolution: domain.Resolution1080p,
		FPS:        domain.FrameRate30,
		Format:     domain.FormatMP4H264,
		Quality:    domain.QualityFast,
	}
}

func (h *harness) runToCompletion(t *testing.T) domain.ExportJob {
	t.Helper()
	done := h.orch.Done()
	require.Eventually(t, func() bool {
		h.clock.Advance(50 * time.Millisecond)
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 20*time.Second, 2*time.Millisecond)
	return h.orch.Current()
}

func shortClip() *media.SyntheticDecoder {
	return media.NewSyntheticDecoder(media.Metadata{Duration: 0.4, Width: 32, Height: 18, FrameRate: 30})
}

// TestExportDeliversRenamedArtifact runs the happy path end to end.
func TestExportDeliversRenamedArtifact(t *testing.T) {
	h := newHarness(t, shortClip(), &countingRecorder{supported: map[string]bool{`video/mp4; codecs="avc1.42E01E, mp4a.40.2"`: true}})

	job, err := h.orch.Start(context.Background(), Request{Asset: h.asset, Settings: h.settings()})
	require.NoError(t, err)
	assert.Equal(t, 1920, job.Width)
	assert.Equal(t, 1080, job.Height)
	assert.Equal(t, 15_000_000, job.Bitrate)

	final := h.runToCompletion(t)
	assert.Equal(t, domain.ExportStatusDone, final.Status)
	assert.Equal(t, 100, final.Progress)
	assert.False(t, final.Fallback)
	assert.Equal(t, "upscaled_1080p_holiday.clip.mp4", final.ArtifactName)
	assert.Equal(t, []string{"upscaled_1080p_holiday.clip.mp4"}, h.sink.names())
	assert.Contains(t, string(h.sink.files[final.ArtifactName]), "audio=false")

	var statuses []domain.ExportStatus
	last := -1
	for _, e := range h.orch.Events().Since(0) {
		switch e.Type {
		case jobs.EventTypeStatus:
			statuses = append(statuses, e.Status)
		case jobs.EventTypeProgress:
			assert.Greater(t, e.Progress, last, "progress must increase")
			last = e.Progress
		}
	}
	assert.Equal(t, []domain.ExportStatus{
		domain.ExportStatusPriming,
		domain.ExportStatusRendering,
		domain.ExportStatusFinalizing,
		domain.ExportStatusDone,
	}, statuses)
}

// TestExportFallsBackToOriginal verifies the errored path delivers bytes.
func TestExportFallsBackToOriginal(t *testing.T) {
	dec := shortClip()
	dec.ProbeErr = errors.New("moov atom not found")
	h := newHarness(t, dec, &countingRecorder{supported: map[string]bool{"video/webm": true}})

	_, err := h.orch.Start(context.Background(), Request{Asset: h.asset, Settings: h.settings()})
	require.NoError(t, err)
	final := h.runToCompletion(t)

	assert.Equal(t, domain.ExportStatusErrored, final.Status)
	assert.True(t, final.Fallback)
	assert.Contains(t, final.Error, "moov atom not found")
	assert.Equal(t, "upscaled_holiday.clip.mp4", final.ArtifactName)
	assert.Equal(t, "original-mp4", string(h.sink.files["upscaled_holiday.clip.mp4"]))
}

// TestExport4KWithAudio exports a QuickTime upload to 4K MP4 at 60 fps.
func TestExport4KWithAudio(t *testing.T) {
	dec := media.NewSyntheticDecoder(media.Metadata{Duration: 0.1, Width: 32, Height: 18, FrameRate: 30, HasAudio: true})
	dec.AudioTrack = media.AudioStream{SourcePath: "clip.mov", StreamIndex: 1}
	rec := &inspectingRecorder{countingRecorder: countingRecorder{supported: map[string]bool{`video/mp4; codecs="avc1.42E01E, mp4a.40.2"`: true}}}
	h := newHarnessFor(t, "clip.mov", "video/quicktime", 50*1024*1024, []byte("original-mov"), dec, rec)

	settings := domain.OutputSettings{
		Resolution: domain.Resolution4K,
		FPS:        domain.FrameRate60,
		Format:     domain.FormatMP4H264,
		Quality:    domain.QualityBalanced,
	}
	job, err := h.orch.Start(context.Background(), Request{Asset: h.asset, Settings: settings})
	require.NoError(t, err)
	assert.Equal(t, 3840, job.Width)
	assert.Equal(t, 2160, job.Height)
	assert.Equal(t, 50_000_000, job.Bitrate)

	final := h.runToCompletion(t)
	require.Equal(t, domain.ExportStatusDone, final.Status, final.Error)
	assert.False(t, final.Fallback)
	assert.Equal(t, "upscaled_4K_clip.mp4", final.ArtifactName)
	assert.Equal(t, []string{"upscaled_4K_clip.mp4"}, h.sink.names())
	assert.Contains(t, string(h.sink.files["upscaled_4K_clip.mp4"]), "audio=true")

	opts, streams := rec.started()
	require.Len(t, opts, 1)
	assert.Equal(t, 50_000_000, opts[0].Bitrate)
	assert.Equal(t, 60, opts[0].FPS)
	require.Len(t, streams, 1)
	assert.Equal(t, streamShape{width: 3840, height: 2160, audio: true}, streams[0])
}

// TestExportRecorderFailureFallsBackThenRetries checks a recorder error at stop
// delivers the original and a later export still runs to done.
func TestExportRecorderFailureFallsBackThenRetries(t *testing.T) {
	rec := &inspectingRecorder{
		countingRecorder: countingRecorder{supported: map[string]bool{`video/mp4; codecs="avc1.42E01E, mp4a.40.2"`: true}},
		stopErrs:         []error{errors.New("boom")},
	}
	h := newHarnessFor(t, "clip.mov", "video/quicktime", 12, []byte("original-mov"), shortClip(), rec)

	_, err := h.orch.Start(context.Background(), Request{Asset: h.asset, Settings: h.settings()})
	require.NoError(t, err)
	final := h.runToCompletion(t)

	assert.Equal(t, domain.ExportStatusErrored, final.Status)
	assert.True(t, final.Fallback)
	assert.Contains(t, final.Error, "recorder failed")
	assert.Contains(t, final.Error, "boom")
	assert.Equal(t, "upscaled_clip.mov", final.ArtifactName)
	assert.Equal(t, "original-mov", string(h.sink.files["upscaled_clip.mov"]))

	second, err := h.orch.Start(context.Background(), Request{Asset: h.asset, Settings: h.settings()})
	require.NoError(t, err)
	assert.NotEqual(t, final.ID, second.ID)
	again := h.runToCompletion(t)

	assert.Equal(t, domain.ExportStatusDone, again.Status)
	assert.False(t, again.Fallback)
	assert.Empty(t, again.Error)
	assert.Equal(t, "upscaled_1080p_clip.mp4", again.ArtifactName)
	assert.ElementsMatch(t, []string{"upscaled_clip.mov", "upscaled_1080p_clip.mp4"}, h.sink.names())

	opts, _ := rec.started()
	assert.Len(t, opts, 2)
}

// TestExportFallsBackWhenNoFormat verifies negotiation failure is an encode error.
func TestExportFallsBackWhenNoFormat(t *testing.T) {
	h := newHarness(t, shortClip(), &countingRecorder{})

	_, err := h.orch.Start(context.Background(), Request{Asset: h.asset, Settings: h.settings()})
	require.NoError(t, err)
	final := h.runToCompletion(t)

	assert.True(t, final.Fallback)
	assert.Contains(t, final.Error, "no supported output format")
}

// TestExportSecondStartIsNoOp verifies the in-flight guard.
func TestExportSecondStartIsNoOp(t *testing.T) {
	h := newHarness(t, shortClip(), &countingRecorder{supported: map[string]bool{"video/webm": true}})

	first, err := h.orch.Start(context.Background(), Request{Asset: h.asset, Settings: h.settings()})
	require.NoError(t, err)
	second, err := h.orch.Start(context.Background(), Request{Asset: h.asset, Settings: h.settings()})
	assert.ErrorIs(t, err, jobs.ErrJobAlreadyRunning)
	assert.Equal(t, first.ID, second.ID)

	final := h.runToCompletion(t)
	assert.Equal(t, domain.ExportStatusDone, final.Status)
	assert.Equal(t, "upscaled_1080p_holiday.clip.webm", final.ArtifactName)
}

// TestExportCancelDeliversNothing verifies cancel returns to idle silently.
func TestExportCancelDeliversNothing(t *testing.T) {
	h := newHarness(t, media.NewSyntheticDecoder(media.Metadata{Duration: 30, Width: 32, Height: 18}),
		&countingRecorder{supported: map[string]bool{"video/webm": true}})

	_, err := h.orch.Start(context.Background(), Request{Asset: h.asset, Settings: h.settings()})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return h.orch.Current().Status == domain.ExportStatusRendering
	}, 5*time.Second, time.Millisecond)

	require.NoError(t, h.orch.Cancel())
	_, err = h.orch.Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.ExportStatusIdle, h.orch.Current().Status)
	assert.Empty(t, h.sink.names())
	assert.ErrorIs(t, h.orch.Cancel(), jobs.ErrNoRunningJob)
}

// TestExportRejectsInvalidRequest verifies synchronous validation.
func TestExportRejectsInvalidRequest(t *testing.T) {
	h := newHarness(t, shortClip(), &countingRecorder{})

	_, err := h.orch.Start(context.Background(), Request{Settings: h.settings()})
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	bad := h.settings()
	bad.FPS = 24
	_, err = h.orch.Start(context.Background(), Request{Asset: h.asset, Settings: bad})
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	assert.False(t, h.orch.InFlight())
}

// TestNamingAndProgress covers the pure helpers.
func TestNamingAndProgress(t *testing.T) {
	assert.Equal(t, "upscaled_4K_clip.webm", ArtifactName(domain.Resolution4K, "clip.mov", "webm"))
	assert.Equal(t, "upscaled_1080p_noext.mp4", ArtifactName(domain.Resolution1080p, "noext", "mp4"))
	assert.Equal(t, "upscaled_clip.mov", FallbackName("clip.mov"))

	assert.Equal(t, 0, ProgressPercent(1, 0))
	assert.Equal(t, 50, ProgressPercent(5, 10))
	assert.Equal(t, 100, ProgressPercent(11, 10))
	assert.Equal(t, 0, ProgressPercent(-1, 10))
	assert.Equal(t, 33, ProgressPercent(1, 3))
}

// TestDirSinkNeverOverwrites verifies unique naming on disk.
func TestDirSinkNeverOverwrites(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "downloads")
	sink := NewDirSink(dir)

	first, err := sink.Deliver("out.mp4", "video/mp4", strings.NewReader("one"))
	require.NoError(t, err)
	second, err := sink.Deliver("out.mp4", "video/mp4", strings.NewReader("two"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "out.mp4"), first)
	assert.Equal(t, filepath.Join(dir, "out (1).mp4"), second)
	data, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	_, err = sink.Deliver("../escape.mp4", "video/mp4", strings.NewReader("x"))
	assert.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temp files must not remain")
}
