package encoder

import (
	"context"

	"video-upscaler/internal/config"
	"video-upscaler/internal/mux"
)

// Options tunes one recording.
type Options struct {
	Bitrate int
	FPS     int
	Profile config.Profile
}

// Recorder is a platform encoder.
type Recorder interface {
	IsTypeSupported(mimeType string) bool
	Start(ctx context.Context, stream *mux.Stream, format Format, opts Options) (Recording, error)
}

// Recording is one running encode.
type Recording interface {
	// Chunks delivers encoded bytes in order and is closed after the last
	// chunk once the recording has been stopped or has failed.
	Chunks() <-chan []byte
	// Stop ends input; buffered data is still delivered on Chunks.
	Stop()
	// Abort ends the recording without waiting for buffered data.
	Abort()
	// Err reports the failure, if any, after Chunks is closed.
	Err() error
}
