// Package encoder negotiates an output container and records a captured
// stream into an in-memory artifact.
package encoder

import (
	"strings"

	"github.com/samber/lo"

	"video-upscaler/internal/domain"
)

// Guaranteed baseline when no preferred type is supported.
const BaselineMimeType = "video/webm"

const (
	mimeMP4AVC  = `video/mp4; codecs="avc1.42E01E, mp4a.40.2"`
	mimeMP4     = "video/mp4"
	mimeMP4HEVC = `video/mp4; codecs="hvc1"`
	mimeWebMVP9 = "video/webm;codecs=vp9"
	mimeWebM    = "video/webm"
)

// DefaultPreferences is the negotiation order used for H.264 and the
// containers the recorder cannot write (AVI, MOV).
var DefaultPreferences = []string{mimeMP4AVC, mimeMP4, mimeWebMVP9, mimeWebM}

// Video codec families.
const (
	CodecH264 = "h264"
	CodecHEVC = "hevc"
	CodecVP9  = "vp9"
)

// Format is a negotiated output type.
type Format struct {
	MimeType  string `json:"mimeType"`
	Container string `json:"container"`
	Extension string `json:"extension"`
	Codec     string `json:"codec"`
}

// FormatFromMime derives container, extension and codec from a MIME type.
func FormatFromMime(mimeType string) Format {
	lower := strings.ToLower(mimeType)
	if strings.Contains(lower, "mp4") {
		codec := CodecH264
		if strings.Contains(lower, "hvc1") || strings.Contains(lower, "hev1") {
			codec = CodecHEVC
		}
		return Format{MimeType: mimeType, Container: "mp4", Extension: "mp4", Codec: codec}
	}
	return Format{MimeType: mimeType, Container: "webm", Extension: "webm", Codec: CodecVP9}
}

// PreferencesFor moves the user's advisory container to the front of the
// negotiation order.
func PreferencesFor(format domain.FileFormat) []string {
	switch format {
	case domain.FormatMP4HEVC:
		return append([]string{mimeMP4HEVC}, DefaultPreferences...)
	case domain.FormatWebM:
		return []string{mimeWebMVP9, mimeWebM, mimeMP4AVC, mimeMP4}
	default:
		return append([]string(nil), DefaultPreferences...)
	}
}

// Negotiate picks the first supported preference, then the baseline.
func Negotiate(preferences []string, supported func(string) bool) (Format, error) {
	if mimeType, ok := lo.Find(preferences, supported); ok {
		return FormatFromMime(mimeType), nil
	}
	if supported(BaselineMimeType) {
		return FormatFromMime(BaselineMimeType), nil
	}
	return Format{}, domain.NewError(domain.KindEncode, "negotiate", "no supported output format", nil)
}
