package asset

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"video-upscaler/internal/domain"
)

// MaxFileSize is the largest accepted upload.
const MaxFileSize int64 = 2 * 1024 * 1024 * 1024

const maxFileSizeDisplay = "2GB"

// AllowedMimeTypes are the accepted container MIME types.
var AllowedMimeTypes = []string{"video/mp4", "video/avi", "video/quicktime", "video/x-matroska", "video/webm"}

// AllowedExtensions are accepted when the MIME type is not recognised.
var AllowedExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".webm"}

const (
	msgInvalidFormat = "Invalid file format. Please upload MP4, AVI, MOV, MKV, or WebM."
	msgTooLarge      = "File too large. Maximum size is " + maxFileSizeDisplay + "."
)

// Validate checks type and size before an asset is created. Either a known
// MIME type or a known extension is enough to accept the type.
func Validate(name, mimeType string, size int64) error {
	mimeOK := lo.Contains(AllowedMimeTypes, normalizeMime(mimeType))
	extOK := lo.Contains(AllowedExtensions, strings.ToLower(filepath.Ext(name)))
	if !mimeOK && !extOK {
		return domain.NewError(domain.KindValidation, "validate", msgInvalidFormat, nil)
	}
	if size > MaxFileSize {
		return domain.NewError(domain.KindValidation, "validate", msgTooLarge, nil)
	}
	return nil
}

// normalizeMime strips parameters and lowercases a MIME type.
func normalizeMime(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// UserMessage returns the user-visible text of a validation failure.
func UserMessage(err error) string {
	var derr *domain.Error
	if errors.As(err, &derr) && derr.Kind == domain.KindValidation {
		return derr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
