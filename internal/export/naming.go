package export

import (
	"math"
	"path/filepath"
	"strings"

	"video-upscaler/internal/domain"
)

// ArtifactName names a successful export: upscaled_<resolution>_<stem>.<ext>.
func ArtifactName(res domain.Resolution, originalName, extension string) string {
	stem := strings.TrimSuffix(originalName, filepath.Ext(originalName))
	return "upscaled_" + string(res) + "_" + stem + "." + extension
}

// FallbackName names the original bytes delivered after a failed export.
func FallbackName(originalName string) string {
	return "upscaled_" + originalName
}

// ProgressPercent maps playback position to a whole percentage in [0, 100].
func ProgressPercent(position, duration float64) int {
	if duration <= 0 || math.IsNaN(position) {
		return 0
	}
	p := int(math.Round(position / duration * 100))
	return max(0, min(100, p))
}
