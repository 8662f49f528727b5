// Package media adapts a source video to a playable, sampleable stream.
package media

import (
	"context"
	"image"
)

// Metadata describes a loaded source.
type Metadata struct {
	Duration  float64 `json:"duration"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FrameRate float64 `json:"frameRate"`
	HasAudio  bool    `json:"hasAudio"`
}

// AudioStream identifies an extractable audio track.
type AudioStream struct {
	// SourcePath is the file holding the track; empty for in-memory sources.
	SourcePath  string
	StreamIndex int
	Codec       string
	SampleRate  int
	Channels    int
}

// Source is a playable media asset. Playback advances on its own clock, so
// every Frame and CurrentTime read is a snapshot of a moving target.
type Source interface {
	Load(ctx context.Context) (Metadata, error)
	Seek(seconds float64) error
	Play() error
	Pause()
	Paused() bool
	CurrentTime() float64
	// Ended is closed when playback reaches the end of the source.
	Ended() <-chan struct{}
	// Frame samples the picture at the current playback time. It reports
	// false until a real frame is available.
	Frame() (image.Image, bool)
	Audio() (AudioStream, bool)
	Close() error
}

// Decoder provides metadata and pictures of a media asset by timestamp.
type Decoder interface {
	Probe(ctx context.Context) (Metadata, error)
	FrameAt(seconds float64) (image.Image, error)
	Audio() (AudioStream, bool)
	Close() error
}
