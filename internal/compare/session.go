// Package compare keeps the original and enhanced previews of the result
// view in step.
package compare

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"video-upscaler/internal/asset"
)

const (
	// SyncInterval is how often the follower is checked against the leader.
	SyncInterval = 200 * time.Millisecond
	// DriftTolerance is the largest drift, in seconds, left uncorrected.
	DriftTolerance = 0.1
)

// Cursor is one playback position over the preview.
type Cursor interface {
	Play() error
	Pause()
	Paused() bool
	CurrentTime() float64
	Seek(seconds float64) error
}

// Resync returns where the follower must seek to, if anywhere.
func Resync(leader, follower, tolerance float64) (float64, bool) {
	if math.Abs(leader-follower) > tolerance {
		return leader, true
	}
	return 0, false
}

// Session drives two cursors over one preview handle.
type Session struct {
	leader   Cursor
	follower Cursor
	clock    clockwork.Clock

	mu      sync.Mutex
	resyncs int
	closed  bool
	stop    chan struct{}
	done    chan struct{}
}

// Open mounts a comparison over a live handle. The leader is the enhanced
// view, the follower the original.
func Open(handle *asset.Handle, leader, follower Cursor, clock clockwork.Clock) (*Session, error) {
	if _, err := handle.Open(); err != nil {
		return nil, fmt.Errorf("open comparison: %w", err)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Session{
		leader:   leader,
		follower: follower,
		clock:    clock,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run(clock.NewTicker(SyncInterval))
	return s, nil
}

func (s *Session) run(ticker clockwork.Ticker) {
	defer close(s.done)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.Chan():
			s.sync()
		}
	}
}

func (s *Session) sync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if target, ok := Resync(s.leader.CurrentTime(), s.follower.CurrentTime(), DriftTolerance); ok {
		if err := s.follower.Seek(target); err == nil {
			s.resyncs++
		}
	}
}

// Toggle plays both cursors when the leader is paused, otherwise pauses both.
func (s *Session) Toggle() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("comparison closed")
	}
	if !s.leader.Paused() {
		s.leader.Pause()
		s.follower.Pause()
		return nil
	}
	if err := s.follower.Seek(s.leader.CurrentTime()); err != nil {
		return err
	}
	if err := s.leader.Play(); err != nil {
		return err
	}
	return s.follower.Play()
}

// Times returns the leader and follower positions.
func (s *Session) Times() (leader, follower float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leader.CurrentTime(), s.follower.CurrentTime()
}

// Resyncs returns how many corrective seeks were made.
func (s *Session) Resyncs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resyncs
}

// Close stops the sync timer and pauses both cursors. Safe to call twice.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.stop)
	s.leader.Pause()
	s.follower.Pause()
	s.mu.Unlock()
	<-s.done
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
