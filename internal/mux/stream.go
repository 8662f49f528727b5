package mux

import "video-upscaler/internal/media"

// AudioSource is the part of a media source that can surrender its audio.
type AudioSource interface {
	Audio() (media.AudioStream, bool)
}

// CaptureAudioTrack returns the source's audio track. A source without audio
// is not an error.
func CaptureAudioTrack(source AudioSource) (*media.AudioStream, bool) {
	audio, ok := source.Audio()
	if !ok {
		return nil, false
	}
	return &audio, true
}

// Stream is the combined input handed to an encoder.
type Stream struct {
	Video  *VideoTrack
	Audio  *media.AudioStream
	Width  int
	Height int
}

// Combine joins a video track with an optional audio track.
func Combine(video *VideoTrack, audio *media.AudioStream, width, height int) *Stream {
	return &Stream{Video: video, Audio: audio, Width: width, Height: height}
}

// HasAudio reports whether the stream carries audio.
func (s *Stream) HasAudio() bool {
	return s.Audio != nil
}

// Close ends the video track.
func (s *Stream) Close() {
	s.Video.Close()
}
