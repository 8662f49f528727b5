package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"video-upscaler/internal/ffmpeg"
	"video-upscaler/internal/mux"
)

const (
	defaultChunkSize = 256 * 1024
	probeTimeout     = 10 * time.Second
)

// FFmpegRecorder encodes raw RGBA frames with an ffmpeg child process and
// streams the container bytes back in chunks.
type FFmpegRecorder struct {
	Path      string
	Runner    ffmpeg.Runner
	Logger    hclog.Logger
	ChunkSize int

	probeOnce sync.Once
	encoders  map[string]bool
}

// NewFFmpegRecorder creates a recorder using the ffmpeg binary at path.
func NewFFmpegRecorder(path string, logger hclog.Logger) *FFmpegRecorder {
	if path == "" {
		path = "ffmpeg"
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &FFmpegRecorder{
		Path:      path,
		Runner:    ffmpeg.ExecRunner{},
		Logger:    logger,
		ChunkSize: defaultChunkSize,
	}
}

// CodecsFor returns the ffmpeg video and audio encoders for a format.
func CodecsFor(format Format) (video, audio string) {
	switch format.Codec {
	case CodecHEVC:
		return "libx265", "aac"
	case CodecVP9:
		return "libvpx-vp9", "libopus"
	default:
		return "libx264", "aac"
	}
}

// IsTypeSupported reports whether the local ffmpeg build has encoders for
// mimeType. Encoders are listed once per recorder.
func (r *FFmpegRecorder) IsTypeSupported(mimeType string) bool {
	r.probeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()
		encoders, err := ffmpeg.ListEncoders(ctx, r.Runner, r.Path)
		if err != nil {
			r.Logger.Warn("ffmpeg encoder probe failed", "error", err)
			encoders = map[string]bool{}
		}
		r.encoders = encoders
	})
	video, audio := CodecsFor(FormatFromMime(mimeType))
	return r.encoders[video] && r.encoders[audio]
}

// BuildArgs assembles the ffmpeg command line for one recording.
func BuildArgs(stream *mux.Stream, format Format, opts Options) []string {
	fps := opts.FPS
	if fps <= 0 {
		fps = int(stream.Video.FPS())
	}
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", stream.Width, stream.Height),
		"-r", strconv.Itoa(fps),
		"-i", "pipe:0",
	}
	if stream.HasAudio() {
		args = append(args, "-i", stream.Audio.SourcePath)
	}
	args = append(args, "-map", "0:v:0")
	if stream.HasAudio() {
		args = append(args, "-map", fmt.Sprintf("1:%d", stream.Audio.StreamIndex), "-shortest")
	}

	video, audio := CodecsFor(format)
	args = append(args, "-c:v", video, "-b:v", strconv.Itoa(opts.Bitrate), "-pix_fmt", "yuv420p")
	switch format.Codec {
	case CodecVP9:
		args = append(args, "-speed", strconv.Itoa(opts.Profile.VP9Speed), "-row-mt", "1")
	case CodecHEVC:
		args = append(args, "-preset", opts.Profile.X264Preset, "-tag:v", "hvc1")
	default:
		args = append(args, "-preset", opts.Profile.X264Preset)
	}
	if stream.HasAudio() {
		args = append(args, "-c:a", audio)
	}

	if format.Container == "mp4" {
		args = append(args, "-movflags", "frag_keyframe+empty_moov+default_base_moof", "-f", "mp4")
	} else {
		args = append(args, "-f", "webm")
	}
	return append(args, "pipe:1")
}

// Start launches ffmpeg and begins feeding it frames from stream.
func (r *FFmpegRecorder) Start(ctx context.Context, stream *mux.Stream, format Format, opts Options) (Recording, error) {
	if stream.HasAudio() && stream.Audio.SourcePath == "" {
		r.Logger.Warn("audio track has no file source, recording video only")
		stream = mux.Combine(stream.Video, nil, stream.Width, stream.Height)
	}

	args := BuildArgs(stream, format, opts)
	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, r.Path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	rec := &ffmpegRecording{
		stream: stream,
		cancel: cancel,
		chunks: make(chan []byte, 16),
		log:    ffmpeg.CommandLog{Command: r.Path, Args: args},
	}
	cmd.Stderr = &rec.stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	r.Logger.Debug("ffmpeg recording started", "command", rec.log.String())

	chunkSize := r.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		defer stdin.Close()
		if err := writeFrames(stdin, stream); err != nil {
			r.Logger.Debug("ffmpeg frame pipe closed", "error", err)
		}
	}()
	go rec.readOutput(cmd, stdout, writeDone, chunkSize)
	return rec, nil
}

type ffmpegRecording struct {
	stream *mux.Stream
	cancel context.CancelFunc
	chunks chan []byte
	stderr bytes.Buffer
	log    ffmpeg.CommandLog

	mu      sync.Mutex
	err     error
	aborted bool
}

func (r *ffmpegRecording) Chunks() <-chan []byte {
	return r.chunks
}

func (r *ffmpegRecording) Stop() {
	r.stream.Close()
}

func (r *ffmpegRecording) Abort() {
	r.mu.Lock()
	r.aborted = true
	r.mu.Unlock()
	r.stream.Close()
	r.cancel()
}

func (r *ffmpegRecording) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *ffmpegRecording) readOutput(cmd *exec.Cmd, stdout io.Reader, writeDone <-chan struct{}, chunkSize int) {
	defer close(r.chunks)
	defer r.cancel()

	for {
		buf := make([]byte, chunkSize)
		n, err := io.ReadFull(stdout, buf)
		if n > 0 {
			r.chunks <- buf[:n]
		}
		if err != nil {
			break
		}
	}
	<-writeDone

	waitErr := cmd.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	if waitErr != nil && !r.aborted {
		log := r.log
		log.Stderr = r.stderr.String()
		log.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			log.ExitCode = exitErr.ExitCode()
		}
		r.err = &ffmpeg.CommandError{Log: log, Err: waitErr}
	}
}

// writeFrames pipes frames as raw RGBA. Empty 1/fps slots between captured
// frames repeat the previous picture so the output keeps real time.
func writeFrames(w io.Writer, stream *mux.Stream) error {
	fps := stream.Video.FPS()
	var last *image.RGBA
	next := int64(0)
	for frame := range stream.Video.Frames() {
		slot := int64(math.Floor(frame.Timestamp*fps + 1e-6))
		for last != nil && next < slot {
			if err := writeRGBA(w, last, stream.Width, stream.Height); err != nil {
				return err
			}
			next++
		}
		if err := writeRGBA(w, frame.Image, stream.Width, stream.Height); err != nil {
			return err
		}
		last = frame.Image
		next = slot + 1
	}
	return nil
}

func writeRGBA(w io.Writer, img *image.RGBA, width, height int) error {
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return fmt.Errorf("frame is %dx%d, stream is %dx%d", b.Dx(), b.Dy(), width, height)
	}
	if img.Stride == width*4 {
		_, err := w.Write(img.Pix[:width*height*4])
		return err
	}
	for y := 0; y < height; y++ {
		off := y * img.Stride
		if _, err := w.Write(img.Pix[off : off+width*4]); err != nil {
			return err
		}
	}
	return nil
}
