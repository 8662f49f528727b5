// Package mux captures render output and audio into one encodable stream.
package mux

import (
	"math"
	"sync"

	"video-upscaler/internal/domain"
	"video-upscaler/internal/render"
)

// DefaultBuffer is the number of frames a track holds for a lagging encoder.
const DefaultBuffer = 8

// FramePublisher is a render surface that pushes frames to sinks.
type FramePublisher interface {
	Attach(sink render.FrameSink) (detach func())
}

// VideoTrack is a rate-limited frame stream captured from a render target.
// At most one frame is kept per 1/fps slot of playback time and timestamps
// never decrease.
type VideoTrack struct {
	fps    float64
	frames chan render.Frame
	detach func()

	mu       sync.Mutex
	lastSlot int64
	lastTS   float64
	started  bool
	closed   bool
	dropped  int
}

// CaptureVideoTrack subscribes to target at the given frame rate.
func CaptureVideoTrack(target FramePublisher, fps domain.FrameRate, buffer int) *VideoTrack {
	if fps <= 0 {
		fps = domain.FrameRate30
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	track := &VideoTrack{
		fps:    float64(fps),
		frames: make(chan render.Frame, buffer),
	}
	track.detach = target.Attach(track)
	return track
}

// WriteFrame implements render.FrameSink.
func (v *VideoTrack) WriteFrame(frame render.Frame) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}
	slot := int64(math.Floor(frame.Timestamp*v.fps + 1e-6))
	if v.started && (frame.Timestamp < v.lastTS || slot <= v.lastSlot) {
		return
	}

	select {
	case v.frames <- frame:
		v.started = true
		v.lastSlot = slot
		v.lastTS = frame.Timestamp
	default:
		v.dropped++
	}
}

// Frames returns the captured frames. The channel is closed by Close.
func (v *VideoTrack) Frames() <-chan render.Frame {
	return v.frames
}

// FPS returns the capture rate.
func (v *VideoTrack) FPS() float64 {
	return v.fps
}

// Dropped returns how many frames were discarded because the buffer was full.
func (v *VideoTrack) Dropped() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dropped
}

// Close detaches from the target and ends the track. Safe to call twice.
func (v *VideoTrack) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	close(v.frames)
	v.mu.Unlock()

	if v.detach != nil {
		v.detach()
	}
}
