package encoder

import (
	"bytes"
	"context"
	"sync"

	"video-upscaler/internal/domain"
	"video-upscaler/internal/mux"
)

// Artifact is the finished encoded output.
type Artifact struct {
	Data      []byte
	MimeType  string
	Extension string
}

// Session drives one Recording and accumulates its chunks.
type Session struct {
	recorder Recorder
	format   Format

	mu         sync.Mutex
	rec        Recording
	chunks     [][]byte
	collected  chan struct{}
	onFinalize func(Artifact)
	finalize   sync.Once
	artifact   Artifact
	discarded  bool
}

// NewSession negotiates the output format against recorder.
func NewSession(recorder Recorder, preferences []string) (*Session, error) {
	format, err := Negotiate(preferences, recorder.IsTypeSupported)
	if err != nil {
		return nil, err
	}
	return &Session{recorder: recorder, format: format}, nil
}

// Format returns the negotiated format.
func (s *Session) Format() Format {
	return s.format
}

// OnFinalize registers fn to run exactly once with the finished artifact.
func (s *Session) OnFinalize(fn func(Artifact)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFinalize = fn
}

// Start begins recording stream.
func (s *Session) Start(ctx context.Context, stream *mux.Stream, opts Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec != nil {
		return domain.NewError(domain.KindEncode, "start", "session already started", nil)
	}
	if s.discarded {
		return domain.NewError(domain.KindEncode, "start", "session discarded", nil)
	}
	rec, err := s.recorder.Start(ctx, stream, s.format, opts)
	if err != nil {
		return domain.NewError(domain.KindEncode, "start", "recorder failed to start", err)
	}
	s.rec = rec
	s.collected = make(chan struct{})
	go s.collect(rec)
	return nil
}

func (s *Session) collect(rec Recording) {
	defer close(s.collected)
	for chunk := range rec.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		s.mu.Lock()
		if !s.discarded {
			s.chunks = append(s.chunks, chunk)
		}
		s.mu.Unlock()
	}
}

// Stop ends the recording, waits until every buffered chunk has been
// delivered and returns the artifact. The finalize callback runs once.
func (s *Session) Stop(ctx context.Context) (Artifact, error) {
	s.mu.Lock()
	rec, collected := s.rec, s.collected
	s.mu.Unlock()
	if rec == nil {
		return Artifact{}, domain.NewError(domain.KindEncode, "stop", "session not started", nil)
	}

	rec.Stop()
	select {
	case <-collected:
	case <-ctx.Done():
		rec.Abort()
		return Artifact{}, domain.NewError(domain.KindEncode, "stop", "finalize interrupted", ctx.Err())
	}
	if err := rec.Err(); err != nil {
		return Artifact{}, domain.NewError(domain.KindEncode, "stop", "recorder failed", err)
	}

	s.mu.Lock()
	if s.discarded {
		s.mu.Unlock()
		return Artifact{}, domain.NewError(domain.KindEncode, "stop", "session discarded", nil)
	}
	var notify func(Artifact)
	s.finalize.Do(func() {
		s.artifact = Artifact{
			Data:      bytes.Join(s.chunks, nil),
			MimeType:  s.format.MimeType,
			Extension: s.format.Extension,
		}
		s.chunks = nil
		notify = s.onFinalize
	})
	artifact := s.artifact
	s.mu.Unlock()

	if notify != nil {
		notify(artifact)
	}
	return artifact, nil
}

// Discard aborts the recording and drops every chunk.
func (s *Session) Discard() {
	s.mu.Lock()
	s.discarded = true
	s.chunks = nil
	rec := s.rec
	s.mu.Unlock()
	if rec != nil {
		rec.Abort()
	}
}
