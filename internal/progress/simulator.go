package progress

import (
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"video-upscaler/internal/domain"
)

const (
	// TickInterval is the cadence of simulated progress updates.
	TickInterval = 200 * time.Millisecond
	// CompletionDelay separates the "Complete!" state from OnComplete.
	CompletionDelay = 800 * time.Millisecond
)

// Options configures a Simulator.
type Options struct {
	Clock clockwork.Clock
	// Increment returns the progress added per tick. Defaults to a uniform
	// value in [0, MaxIncrement).
	Increment  func() float64
	OnUpdate   func(domain.ProcessingState)
	OnComplete func()
}

// Simulator produces fake processing progress on a ticker.
type Simulator struct {
	opts Options

	mu        sync.Mutex
	state     domain.ProcessingState
	cancelled bool
	stop      chan struct{}
	done      chan struct{}
}

// Start begins ticking immediately.
func Start(opts Options) *Simulator {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Increment == nil {
		opts.Increment = func() float64 { return rand.Float64() * MaxIncrement }
	}
	s := &Simulator{
		opts:  opts,
		state: Initial(),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go s.run(opts.Clock.NewTicker(TickInterval))
	return s
}

// State returns the latest progress.
func (s *Simulator) State() domain.ProcessingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the simulator stops for any reason.
func (s *Simulator) Done() <-chan struct{} {
	return s.done
}

// Cancel stops the simulator. No callback fires after Cancel returns, so
// callbacks must not call Cancel themselves.
func (s *Simulator) Cancel() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	close(s.stop)
	s.mu.Unlock()
}

func (s *Simulator) run(ticker clockwork.Ticker) {
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			ticker.Stop()
			return
		case <-ticker.Chan():
		}

		s.mu.Lock()
		if s.cancelled {
			s.mu.Unlock()
			ticker.Stop()
			return
		}
		s.state = Tick(s.state, s.opts.Increment())
		state := s.state
		if s.opts.OnUpdate != nil {
			s.opts.OnUpdate(state)
		}
		s.mu.Unlock()

		if state.IsComplete {
			break
		}
	}
	ticker.Stop()

	timer := s.opts.Clock.NewTimer(CompletionDelay)
	defer timer.Stop()
	select {
	case <-s.stop:
		return
	case <-timer.Chan():
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	s.cancelled = true
	close(s.stop)
	if s.opts.OnComplete != nil {
		s.opts.OnComplete()
	}
}
