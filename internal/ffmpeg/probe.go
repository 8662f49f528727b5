package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ProbeResult is the subset of ffprobe output the pipeline needs.
type ProbeResult struct {
	Duration float64
	// Width and Height are the displayed size, after rotation.
	Width       int
	Height      int
	Rotation    int
	FrameRate   float64
	VideoCodec  string
	HasAudio    bool
	AudioIndex  int
	AudioCodec  string
	SampleRate  int
	Channels    int
	FormatName  string
	BitrateBits int64
}

type probeOutput struct {
	Streams []struct {
		Index        int    `json:"index"`
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Duration     string `json:"duration"`
		SampleRate   string `json:"sample_rate"`
		Channels     int    `json:"channels"`
		Tags         struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
		SideDataList []struct {
			SideDataType string  `json:"side_data_type"`
			Rotation     float64 `json:"rotation"`
		} `json:"side_data_list"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Bitrate  string `json:"bit_rate"`
		Format   string `json:"format_name"`
	} `json:"format"`
}

// Prober runs ffprobe through a Runner.
type Prober struct {
	Path   string
	Runner Runner
}

// NewProber returns a prober using ffprobe from PATH.
func NewProber() *Prober {
	return &Prober{Path: "ffprobe", Runner: ExecRunner{}}
}

// Probe reads container and stream metadata of a media file.
func (p *Prober) Probe(ctx context.Context, path string) (ProbeResult, error) {
	args := []string{"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path}
	log, err := p.Runner.Run(ctx, p.Path, args...)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("run ffprobe: %w", err)
	}
	return ParseProbe([]byte(log.Stdout))
}

// ParseProbe decodes ffprobe JSON output.
func ParseProbe(data []byte) (ProbeResult, error) {
	var probe probeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return ProbeResult{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	result := ProbeResult{FormatName: probe.Format.Format}
	videoFound := false
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if videoFound {
				continue
			}
			videoFound = true
			result.Width = stream.Width
			result.Height = stream.Height
			rotation := parseFloat(stream.Tags.Rotate)
			for _, sd := range stream.SideDataList {
				if sd.SideDataType == "Display Matrix" {
					rotation = sd.Rotation
				}
			}
			result.Rotation = normalizeRotation(rotation)
			// ffmpeg autorotates decoded frames, so quarter turns swap the frame size.
			if result.Rotation == 90 || result.Rotation == 270 {
				result.Width, result.Height = result.Height, result.Width
			}
			result.VideoCodec = stream.CodecName
			result.FrameRate = parseRate(stream.AvgFrameRate)
			if result.FrameRate == 0 {
				result.FrameRate = parseRate(stream.RFrameRate)
			}
			if result.Duration == 0 {
				result.Duration = parseFloat(stream.Duration)
			}
		case "audio":
			if result.HasAudio {
				continue
			}
			result.HasAudio = true
			result.AudioIndex = stream.Index
			result.AudioCodec = stream.CodecName
			result.Channels = stream.Channels
			result.SampleRate, _ = strconv.Atoi(stream.SampleRate)
		}
	}
	if !videoFound {
		return ProbeResult{}, fmt.Errorf("no video stream found")
	}

	if d := parseFloat(probe.Format.Duration); d > 0 {
		result.Duration = d
	}
	if probe.Format.Bitrate != "" {
		if bitrate, err := strconv.ParseInt(probe.Format.Bitrate, 10, 64); err == nil {
			result.BitrateBits = bitrate
		}
	}
	return result, nil
}

// normalizeRotation maps a rotation in degrees to 0, 90, 180 or 270.
func normalizeRotation(deg float64) int {
	quarter := int(math.Round(deg/90)) % 4
	if quarter < 0 {
		quarter += 4
	}
	return quarter * 90
}

// parseRate parses ffprobe rational rates such as "30000/1001".
func parseRate(raw string) float64 {
	num, den, found := strings.Cut(strings.TrimSpace(raw), "/")
	if !found {
		return parseFloat(num)
	}
	n := parseFloat(num)
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}
