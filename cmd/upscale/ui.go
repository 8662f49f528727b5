package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/manifoldco/promptui"

	"video-upscaler/internal/asset"
	"video-upscaler/internal/domain"
	"video-upscaler/internal/flow"
)

var (
	infoStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7C3AED")).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B")).
			Bold(true)
)

// chooser picks one of items; it returns the index of the choice.
type chooser func(label string, items []string, initial int) (int, error)

func selectPrompt(label string, items []string, initial int) (int, error) {
	prompt := promptui.Select{
		Label:     label,
		Items:     items,
		CursorPos: initial,
		Size:      len(items),
	}
	idx, _, err := prompt.Run()
	return idx, err
}

// resolveSettings fills output settings from flags, then prompts for what is
// still unset unless -y was given.
func resolveSettings(opts options, current domain.OutputSettings, choose chooser) (domain.OutputSettings, error) {
	settings := current
	if opts.resolution != "" {
		settings.Resolution = domain.Resolution(opts.resolution)
	}
	if opts.fps != 0 {
		settings.FPS = domain.FrameRate(opts.fps)
	}
	if opts.format != "" {
		settings.Format = domain.FileFormat(opts.format)
	}
	if opts.quality != "" {
		settings.Quality = domain.QualityPreset(opts.quality)
	}

	if !opts.assumeYes {
		var err error
		if opts.resolution == "" {
			if settings.Resolution, err = pick(choose, "Resolution", domain.Resolutions, settings.Resolution, func(r domain.Resolution) string { return string(r) }); err != nil {
				return settings, err
			}
		}
		if opts.fps == 0 {
			if settings.FPS, err = pick(choose, "Frame rate", domain.FrameRates, settings.FPS, func(f domain.FrameRate) string { return strconv.Itoa(int(f)) + " fps" }); err != nil {
				return settings, err
			}
		}
		if opts.format == "" {
			if settings.Format, err = pick(choose, "Format", domain.FileFormats, settings.Format, func(f domain.FileFormat) string { return string(f) }); err != nil {
				return settings, err
			}
		}
		if opts.quality == "" {
			if settings.Quality, err = pick(choose, "Quality", domain.QualityPresets, settings.Quality, func(q domain.QualityPreset) string { return string(q) }); err != nil {
				return settings, err
			}
		}
	}

	return settings, settings.Validate()
}

func pick[T comparable](choose chooser, label string, values []T, current T, name func(T) string) (T, error) {
	items := make([]string, len(values))
	initial := 0
	for i, v := range values {
		items[i] = name(v)
		if v == current {
			initial = i
		}
	}
	idx, err := choose(label, items, initial)
	if err != nil {
		return current, err
	}
	if idx < 0 || idx >= len(values) {
		return current, fmt.Errorf("%s: choice %d out of range", label, idx)
	}
	return values[idx], nil
}

func printAsset(a *asset.MediaAsset) {
	content := fmt.Sprintf("%s %s\n%s %s\n%s %s",
		labelStyle.Render("File:"), a.Name,
		labelStyle.Render("Size:"), formatSize(a.Size),
		labelStyle.Render("Type:"), a.MimeType,
	)
	fmt.Println(infoStyle.Render(content))
}

func printEstimate(snap flow.Snapshot) {
	content := fmt.Sprintf("%s %s @ %d fps, %s, %s\n%s %s",
		labelStyle.Render("Output:"), snap.Settings.Resolution, snap.Settings.FPS, snap.Settings.Format, snap.Settings.Quality,
		labelStyle.Render("Estimated size:"), formatSize(snap.EstimatedSizeBytes),
	)
	fmt.Println(infoStyle.Render(content))
}

func printJob(job domain.ExportJob) {
	switch {
	case job.Status == domain.ExportStatusDone:
		fmt.Println(successStyle.Render("✓ Saved " + job.ArtifactPath))
	case job.Fallback:
		fmt.Println(warnStyle.Render("! Export failed, original saved as " + job.ArtifactPath))
		fmt.Println(labelStyle.Render("  cause: ") + job.Error)
	case job.Status == domain.ExportStatusIdle:
		fmt.Println(warnStyle.Render("! Export cancelled"))
	default:
		fmt.Println(errorStyle.Render("✗ Export failed: " + job.Error))
	}
}

// formatSize converts bytes to a human-readable size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
