package asset

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// Payload is the byte content of a media asset.
type Payload interface {
	// Open returns a fresh reader over the whole payload.
	Open() (io.ReadSeekCloser, error)
	// Path returns a filesystem path when the payload lives on disk.
	Path() (string, bool)
}

// FilePayload is a payload backed by a file on disk.
type FilePayload struct {
	path string
}

// NewFilePayload wraps path.
func NewFilePayload(path string) FilePayload {
	return FilePayload{path: path}
}

// Open opens the file.
func (p FilePayload) Open() (io.ReadSeekCloser, error) {
	return os.Open(p.path)
}

// Path returns the file path.
func (p FilePayload) Path() (string, bool) {
	return p.path, true
}

// BytesPayload is an in-memory payload.
type BytesPayload []byte

// Open returns a reader over the bytes.
func (p BytesPayload) Open() (io.ReadSeekCloser, error) {
	return nopCloser{bytes.NewReader(p)}, nil
}

// Path reports that the payload is not on disk.
func (p BytesPayload) Path() (string, bool) {
	return "", false
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }

// MediaAsset is a user-supplied video and its preview handle.
type MediaAsset struct {
	Name     string
	Size     int64
	MimeType string
	Payload  Payload
	Preview  *Handle
}

// New validates the input and registers a preview handle for it.
func New(registry *Registry, name, mimeType string, size int64, payload Payload) (*MediaAsset, error) {
	if err := Validate(name, mimeType, size); err != nil {
		return nil, err
	}
	return &MediaAsset{
		Name:     name,
		Size:     size,
		MimeType: normalizeMime(mimeType),
		Payload:  payload,
		Preview:  registry.Create(payload),
	}, nil
}

// Open stats and sniffs a file on disk, then builds the asset.
func Open(registry *Registry, path string) (*MediaAsset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("input is a directory: %s", path)
	}

	mimeType := ""
	if mt, err := mimetype.DetectFile(path); err == nil {
		mimeType = mt.String()
	}

	return New(registry, filepath.Base(path), mimeType, info.Size(), NewFilePayload(path))
}

// ReadAll returns the original bytes of the asset.
func (a *MediaAsset) ReadAll() ([]byte, error) {
	r, err := a.Payload.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
