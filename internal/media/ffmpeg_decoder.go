package media

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"video-upscaler/internal/ffmpeg"
)

// FFmpegDecoder reads metadata with ffprobe and frames from an ffmpeg
// rawvideo pipe. Frames are read sequentially; seeking backwards restarts
// the pipe at the requested offset.
type FFmpegDecoder struct {
	path       string
	ffmpegPath string
	prober     *ffmpeg.Prober

	mu      sync.Mutex
	probe   ffmpeg.ProbeResult
	probed  bool
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	reader  *bufio.Reader
	start   float64
	index   int
	current *image.RGBA
	eof     bool
}

// NewFFmpegDecoder decodes the file at path.
func NewFFmpegDecoder(path string) *FFmpegDecoder {
	return &FFmpegDecoder{
		path:       path,
		ffmpegPath: "ffmpeg",
		prober:     ffmpeg.NewProber(),
	}
}

// Probe runs ffprobe on the file.
func (d *FFmpegDecoder) Probe(ctx context.Context) (Metadata, error) {
	res, err := d.prober.Probe(ctx, d.path)
	if err != nil {
		return Metadata{}, err
	}

	d.mu.Lock()
	d.probe = res
	d.probed = true
	d.mu.Unlock()

	return Metadata{
		Duration:  res.Duration,
		Width:     res.Width,
		Height:    res.Height,
		FrameRate: res.FrameRate,
		HasAudio:  res.HasAudio,
	}, nil
}

// FrameAt returns the last decoded frame at or before seconds.
func (d *FFmpegDecoder) FrameAt(seconds float64) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.probed {
		return nil, errors.New("frame before probe")
	}
	fps := d.probe.FrameRate
	if fps <= 0 {
		fps = 30
	}

	if d.reader == nil || seconds < d.start || (d.current != nil && seconds < d.frameTime(d.index-1, fps)) {
		if err := d.restartLocked(seconds); err != nil {
			return nil, err
		}
	}

	for !d.eof && (d.current == nil || d.frameTime(d.index, fps) <= seconds) {
		if err := d.readFrameLocked(); err != nil {
			return nil, err
		}
	}
	if d.current == nil {
		return nil, nil
	}
	return d.current, nil
}

func (d *FFmpegDecoder) frameTime(index int, fps float64) float64 {
	return d.start + float64(index)/fps
}

func (d *FFmpegDecoder) readFrameLocked() error {
	w, h := d.probe.Width, d.probe.Height
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	if _, err := io.ReadFull(d.reader, img.Pix); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			d.eof = true
			return nil
		}
		return fmt.Errorf("read frame: %w", err)
	}
	d.current = img
	d.index++
	return nil
}

func (d *FFmpegDecoder) restartLocked(seconds float64) error {
	d.stopLocked()

	args := []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-ss", strconv.FormatFloat(seconds, 'f', 3, 64),
		"-i", d.path,
		"-an",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-",
	}
	cmd := exec.Command(d.ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg decoder: %w", err)
	}

	d.cmd = cmd
	d.stdout = stdout
	d.reader = bufio.NewReaderSize(stdout, d.probe.Width*d.probe.Height*4)
	d.start = seconds
	d.index = 0
	d.current = nil
	d.eof = false
	return nil
}

func (d *FFmpegDecoder) stopLocked() {
	if d.cmd == nil {
		return
	}
	_ = d.stdout.Close()
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	_ = d.cmd.Wait()
	d.cmd = nil
	d.stdout = nil
	d.reader = nil
}

// Audio returns the first audio stream of the file.
func (d *FFmpegDecoder) Audio() (AudioStream, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.probed || !d.probe.HasAudio {
		return AudioStream{}, false
	}
	return AudioStream{
		SourcePath:  d.path,
		StreamIndex: d.probe.AudioIndex,
		Codec:       d.probe.AudioCodec,
		SampleRate:  d.probe.SampleRate,
		Channels:    d.probe.Channels,
	}, true
}

// Close stops the frame pipe.
func (d *FFmpegDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	return nil
}
