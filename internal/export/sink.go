package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Sink receives finished artifacts.
type Sink interface {
	// Deliver stores the artifact and returns where it ended up.
	Deliver(name, mimeType string, r io.Reader) (string, error)
}

// DirSink writes artifacts into a directory, never overwriting an existing
// file: "clip.mp4" becomes "clip (1).mp4" when taken.
type DirSink struct {
	Dir string
}

// NewDirSink creates a sink for dir.
func NewDirSink(dir string) *DirSink {
	return &DirSink{Dir: dir}
}

// Deliver implements Sink.
func (s *DirSink) Deliver(name, _ string, r io.Reader) (string, error) {
	if strings.ContainsAny(name, `/\`) || name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.Dir, ".upscaler-*.part")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("close artifact: %w", err)
	}

	target := s.freePath(name)
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("move artifact: %w", err)
	}
	return target, nil
}

func (s *DirSink) freePath(name string) string {
	target := filepath.Join(s.Dir, name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		if _, err := os.Stat(target); os.IsNotExist(err) {
			return target
		}
		target = filepath.Join(s.Dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
	}
}
