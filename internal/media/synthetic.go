package media

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"sync"
	"time"
)

// SyntheticDecoder generates deterministic gradient frames. It stands in for
// a real decoder in previews, demos and tests.
type SyntheticDecoder struct {
	Meta Metadata
	// ProbeErr, when set, is returned by Probe.
	ProbeErr error
	// ProbeDelay delays Probe; the context still cancels it.
	ProbeDelay time.Duration
	// FirstFrameAt hides frames before this timestamp.
	FirstFrameAt float64
	// AudioTrack is reported by Audio when Meta.HasAudio is set.
	AudioTrack AudioStream

	mu     sync.Mutex
	cache  map[int]*image.RGBA
	closed bool
}

// NewSyntheticDecoder returns a decoder producing meta.
func NewSyntheticDecoder(meta Metadata) *SyntheticDecoder {
	if meta.FrameRate <= 0 {
		meta.FrameRate = 30
	}
	return &SyntheticDecoder{Meta: meta}
}

// Probe returns the configured metadata.
func (d *SyntheticDecoder) Probe(ctx context.Context) (Metadata, error) {
	if d.ProbeDelay > 0 {
		select {
		case <-time.After(d.ProbeDelay):
		case <-ctx.Done():
			return Metadata{}, ctx.Err()
		}
	}
	if d.ProbeErr != nil {
		return Metadata{}, d.ProbeErr
	}
	return d.Meta, nil
}

// FrameAt returns the gradient frame for the frame index containing seconds.
func (d *SyntheticDecoder) FrameAt(seconds float64) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, errors.New("decoder closed")
	}
	if seconds < d.FirstFrameAt {
		return nil, nil
	}
	fps := d.Meta.FrameRate
	if fps <= 0 {
		fps = 30
	}
	idx := int(math.Floor(seconds * fps))
	if d.cache == nil {
		d.cache = make(map[int]*image.RGBA)
	}
	if img, ok := d.cache[idx]; ok {
		return img, nil
	}
	img := gradient(d.Meta.Width, d.Meta.Height, idx)
	d.cache[idx] = img
	return img, nil
}

// Audio reports the configured audio track.
func (d *SyntheticDecoder) Audio() (AudioStream, bool) {
	if !d.Meta.HasAudio {
		return AudioStream{}, false
	}
	return d.AudioTrack, true
}

// Close drops cached frames.
func (d *SyntheticDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.cache = nil
	return nil
}

func gradient(w, h, frame int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	shift := uint8(frame * 4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x*255/max(w-1, 1)) + shift,
				G: uint8(y * 255 / max(h-1, 1)),
				B: 128 - shift,
				A: 255,
			})
		}
	}
	return img
}
