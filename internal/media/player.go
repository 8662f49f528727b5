package media

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"video-upscaler/internal/domain"
)

// DefaultLoadTimeout bounds metadata loading.
const DefaultLoadTimeout = 10 * time.Second

// Player implements Source over a Decoder with wall-clock playback.
type Player struct {
	decoder     Decoder
	clock       clockwork.Clock
	loadTimeout time.Duration

	mu       sync.Mutex
	meta     Metadata
	loaded   bool
	position float64
	anchor   time.Time
	playing  bool
	ended    chan struct{}
	isEnded  bool
	stopWait chan struct{}
	closed   bool
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithClock replaces the wall clock.
func WithClock(clock clockwork.Clock) PlayerOption {
	return func(p *Player) { p.clock = clock }
}

// WithLoadTimeout replaces DefaultLoadTimeout.
func WithLoadTimeout(d time.Duration) PlayerOption {
	return func(p *Player) {
		if d > 0 {
			p.loadTimeout = d
		}
	}
}

// NewPlayer wraps decoder.
func NewPlayer(decoder Decoder, opts ...PlayerOption) *Player {
	p := &Player{
		decoder:     decoder,
		clock:       clockwork.NewRealClock(),
		loadTimeout: DefaultLoadTimeout,
		ended:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Load probes metadata, failing with a load error on timeout or bad data.
func (p *Player) Load(ctx context.Context) (Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, p.loadTimeout)
	defer cancel()

	type probeResult struct {
		meta Metadata
		err  error
	}
	done := make(chan probeResult, 1)
	go func() {
		meta, err := p.decoder.Probe(ctx)
		done <- probeResult{meta: meta, err: err}
	}()

	var res probeResult
	select {
	case res = <-done:
	case <-ctx.Done():
		return Metadata{}, domain.NewError(domain.KindLoad, "load", "metadata did not arrive", ctx.Err())
	}
	if res.err != nil {
		return Metadata{}, domain.NewError(domain.KindLoad, "load", "cannot decode source", res.err)
	}
	if res.meta.Duration <= 0 || math.IsNaN(res.meta.Duration) || math.IsInf(res.meta.Duration, 0) {
		return Metadata{}, domain.NewError(domain.KindLoad, "load", fmt.Sprintf("invalid duration %v", res.meta.Duration), nil)
	}
	if res.meta.Width <= 0 || res.meta.Height <= 0 {
		return Metadata{}, domain.NewError(domain.KindLoad, "load", fmt.Sprintf("invalid dimensions %dx%d", res.meta.Width, res.meta.Height), nil)
	}

	p.mu.Lock()
	p.meta = res.meta
	p.loaded = true
	p.mu.Unlock()
	return res.meta, nil
}

// Seek moves the playback position, clamped to the source duration.
func (p *Player) Seek(seconds float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		return fmt.Errorf("seek before load")
	}
	seconds = math.Max(0, math.Min(seconds, p.meta.Duration))
	p.position = seconds
	if p.isEnded && seconds < p.meta.Duration {
		p.ended = make(chan struct{})
		p.isEnded = false
	}
	if p.playing {
		p.anchor = p.clock.Now()
		p.watchLocked()
	}
	return nil
}

// Play starts advancing the playback position.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		return fmt.Errorf("play before load")
	}
	if p.closed {
		return fmt.Errorf("play after close")
	}
	if p.playing {
		return nil
	}
	if p.isEnded {
		p.position = 0
		p.ended = make(chan struct{})
		p.isEnded = false
	}
	p.playing = true
	p.anchor = p.clock.Now()
	p.watchLocked()
	return nil
}

// Pause freezes the playback position.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauseLocked()
}

func (p *Player) pauseLocked() {
	if !p.playing {
		return
	}
	p.position = p.currentLocked()
	p.playing = false
	p.stopWatchLocked()
}

// Paused reports whether playback is stopped, including after the end.
func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.playing
}

// CurrentTime returns the playback position in seconds.
func (p *Player) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentLocked()
}

func (p *Player) currentLocked() float64 {
	if !p.playing {
		return p.position
	}
	t := p.position + p.clock.Since(p.anchor).Seconds()
	return math.Min(t, p.meta.Duration)
}

// Ended is closed once playback reaches the end.
func (p *Player) Ended() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ended
}

// Frame samples the decoder at the current playback time.
func (p *Player) Frame() (image.Image, bool) {
	p.mu.Lock()
	loaded := p.loaded && !p.closed
	t := p.currentLocked()
	p.mu.Unlock()

	if !loaded {
		return nil, false
	}
	img, err := p.decoder.FrameAt(t)
	if err != nil || img == nil {
		return nil, false
	}
	return img, true
}

// Audio returns the decoder's audio track, if any.
func (p *Player) Audio() (AudioStream, bool) {
	return p.decoder.Audio()
}

// Metadata returns the loaded metadata.
func (p *Player) Metadata() Metadata {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.meta
}

// Close stops playback and releases the decoder.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.pauseLocked()
	p.closed = true
	p.mu.Unlock()
	return p.decoder.Close()
}

// watchLocked arms a timer that marks the end of playback.
func (p *Player) watchLocked() {
	p.stopWatchLocked()

	remaining := time.Duration((p.meta.Duration - p.position) * float64(time.Second))
	stop := make(chan struct{})
	p.stopWait = stop
	timer := p.clock.After(remaining)
	go func() {
		select {
		case <-timer:
			p.markEnded(stop)
		case <-stop:
		}
	}()
}

func (p *Player) stopWatchLocked() {
	if p.stopWait != nil {
		close(p.stopWait)
		p.stopWait = nil
	}
}

// markEnded closes the ended channel unless the watch was superseded.
func (p *Player) markEnded(watch chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopWait != watch {
		return
	}
	p.stopWait = nil
	p.position = p.meta.Duration
	p.playing = false
	if !p.isEnded {
		p.isEnded = true
		close(p.ended)
	}
}
