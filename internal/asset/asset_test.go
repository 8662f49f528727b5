package asset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-upscaler/internal/domain"
)

// TestValidateAcceptsMimeOrExtension checks either signal admits the file.
func TestValidateAcceptsMimeOrExtension(t *testing.T) {
	cases := []struct {
		name     string
		mimeType string
	}{
		{"clip.mov", "video/quicktime"},
		{"clip.bin", "video/mp4"},
		{"CLIP.MKV", ""},
		{"clip.webm", "application/octet-stream"},
		{"clip", "video/x-matroska; charset=binary"},
	}
	for _, tc := range cases {
		assert.NoError(t, Validate(tc.name, tc.mimeType, 1024), tc.name)
	}
}

// TestValidateRejectsFormat checks the user-visible format message.
func TestValidateRejectsFormat(t *testing.T) {
	err := Validate("notes.txt", "text/plain", 10)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	assert.Equal(t, "Invalid file format. Please upload MP4, AVI, MOV, MKV, or WebM.", UserMessage(err))
}

// TestValidateRejectsSize checks the 2 GiB boundary.
func TestValidateRejectsSize(t *testing.T) {
	assert.NoError(t, Validate("clip.mp4", "video/mp4", MaxFileSize))

	err := Validate("clip.mp4", "video/mp4", MaxFileSize+1)
	require.Error(t, err)
	assert.Equal(t, "File too large. Maximum size is 2GB.", UserMessage(err))
}

// TestNewRejectsWithoutCreatingHandle checks no asset or handle on failure.
func TestNewRejectsWithoutCreatingHandle(t *testing.T) {
	registry := NewRegistry()
	a, err := New(registry, "clip.txt", "text/plain", 1, BytesPayload("x"))
	require.Error(t, err)
	assert.Nil(t, a)
	assert.Zero(t, registry.Live())
}

// TestHandleReleaseExactlyOnce checks double release and read-after-release.
func TestHandleReleaseExactlyOnce(t *testing.T) {
	registry := NewRegistry()
	a, err := New(registry, "clip.mov", "video/quicktime", 4, BytesPayload("data"))
	require.NoError(t, err)
	assert.Equal(t, 1, registry.Live())
	assert.Equal(t, "blob:"+a.Preview.ID(), a.Preview.URL())

	_, err = a.Preview.Open()
	require.NoError(t, err)

	require.NoError(t, a.Preview.Release())
	assert.Zero(t, registry.Live())
	assert.ErrorIs(t, a.Preview.Release(), ErrHandleReleased)

	_, err = a.Preview.Open()
	assert.ErrorIs(t, err, ErrHandleRevoked)

	_, err = registry.Resolve("never-issued")
	assert.ErrorIs(t, err, ErrHandleNotFound)
}

// TestOpenSniffsFileOnDisk checks stat, sniffing and payload round trip.
func TestOpenSniffsFileOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mov")
	require.NoError(t, os.WriteFile(path, []byte("not really a movie"), 0o644))

	registry := NewRegistry()
	a, err := Open(registry, path)
	require.NoError(t, err)
	assert.Equal(t, "clip.mov", a.Name)
	assert.EqualValues(t, 18, a.Size)

	data, err := a.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "not really a movie", string(data))

	p, ok := a.Payload.Path()
	assert.True(t, ok)
	assert.Equal(t, path, p)
}

// TestOpenMissingFile checks stat errors surface before validation.
func TestOpenMissingFile(t *testing.T) {
	_, err := Open(NewRegistry(), filepath.Join(t.TempDir(), "absent.mp4"))
	assert.Error(t, err)
	assert.False(t, domain.IsKind(err, domain.KindValidation))
}
