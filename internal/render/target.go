// Package render paints enhanced source frames onto an off-screen surface
// sized to the export resolution.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	xdraw "golang.org/x/image/draw"

	"video-upscaler/internal/config"
	"video-upscaler/internal/domain"
)

// FrameSampler is the part of a media source the target reads from.
type FrameSampler interface {
	Frame() (image.Image, bool)
	CurrentTime() float64
}

// Frame is one rendered picture and the playback time it was sampled at.
// Image must not be modified by receivers.
type Frame struct {
	Image     *image.RGBA
	Timestamp float64
}

// FrameSink receives every rendered frame in render order.
type FrameSink interface {
	WriteFrame(Frame)
}

// Target is an off-screen RGBA surface with a fixed size per job.
type Target struct {
	mu       sync.Mutex
	width    int
	height   int
	canvas   *image.RGBA
	scaler   xdraw.Interpolator
	filter   *Filter
	sinks    map[int]FrameSink
	nextSink int
	frames   int
	released bool
}

// NewTarget creates an unconfigured target using the named scaler.
func NewTarget(scaler string) *Target {
	return &Target{
		scaler: ScalerByName(scaler),
		filter: NewFilter(EnhanceMatrix()),
		sinks:  make(map[int]FrameSink),
	}
}

// ScalerByName maps profile scaler names to interpolators.
func ScalerByName(name string) xdraw.Interpolator {
	switch name {
	case config.ScalerApproxBiLinear:
		return xdraw.ApproxBiLinear
	case config.ScalerCatmullRom:
		return xdraw.CatmullRom
	default:
		return xdraw.BiLinear
	}
}

// Configure allocates the surface and paints it opaque black so the first
// frame any consumer sees already has the final dimensions.
func (t *Target) Configure(width, height int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.released {
		return domain.NewError(domain.KindResource, "configure", "render target released", nil)
	}
	if width <= 0 || height <= 0 {
		return domain.NewError(domain.KindResource, "configure", fmt.Sprintf("invalid surface size %dx%d", width, height), nil)
	}
	if t.canvas != nil {
		if width == t.width && height == t.height {
			return nil
		}
		return domain.NewError(domain.KindResource, "configure",
			fmt.Sprintf("surface already configured at %dx%d", t.width, t.height), nil)
	}

	t.width, t.height = width, height
	t.canvas = image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(t.canvas, t.canvas.Bounds(), image.NewUniform(color.RGBA{A: 0xff}), image.Point{}, draw.Src)
	return nil
}

// Size returns the configured dimensions.
func (t *Target) Size() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.width, t.height
}

// Attach registers a sink and returns a function that detaches it.
func (t *Target) Attach(sink FrameSink) (detach func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextSink
	t.nextSink++
	t.sinks[id] = sink
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.sinks, id)
	}
}

// DrawFrame samples the source, resamples into the surface, applies the
// enhancement filter and hands a copy to every sink. When the source has no
// frame yet the current (opaque) surface content is emitted unchanged.
func (t *Target) DrawFrame(src FrameSampler) error {
	img, ok := src.Frame()
	ts := src.CurrentTime()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.released || t.canvas == nil {
		return domain.NewError(domain.KindResource, "draw", "render target unavailable", nil)
	}
	if ok {
		t.scaler.Scale(t.canvas, t.canvas.Bounds(), img, img.Bounds(), xdraw.Src, nil)
		t.filter.Apply(t.canvas)
	}
	t.frames++

	if len(t.sinks) == 0 {
		return nil
	}
	frame := Frame{Image: cloneRGBA(t.canvas), Timestamp: ts}
	for _, sink := range t.sinks {
		sink.WriteFrame(frame)
	}
	return nil
}

// FramesDrawn returns how many times DrawFrame painted the surface.
func (t *Target) FramesDrawn() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames
}

// Snapshot returns a copy of the surface.
func (t *Target) Snapshot() (*image.RGBA, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released || t.canvas == nil {
		return nil, domain.NewError(domain.KindResource, "snapshot", "render target unavailable", nil)
	}
	return cloneRGBA(t.canvas), nil
}

// Release drops the surface and all sinks.
func (t *Target) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.released = true
	t.canvas = nil
	t.sinks = make(map[int]FrameSink)
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := &image.RGBA{
		Pix:    make([]byte, len(src.Pix)),
		Stride: src.Stride,
		Rect:   src.Rect,
	}
	copy(dst.Pix, src.Pix)
	return dst
}
