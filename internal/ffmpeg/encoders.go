package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// ListEncoders returns the encoder names reported by `ffmpeg -encoders`.
func ListEncoders(ctx context.Context, runner Runner, ffmpegPath string) (map[string]bool, error) {
	log, err := runner.Run(ctx, ffmpegPath, "-hide_banner", "-encoders")
	if err != nil {
		return nil, fmt.Errorf("list ffmpeg encoders: %w", err)
	}
	return ParseEncoders(log.Stdout), nil
}

// ParseEncoders extracts encoder names from `ffmpeg -encoders` output. Rows
// look like " V....D libx264    libx264 H.264 / AVC ...".
func ParseEncoders(output string) map[string]bool {
	encoders := make(map[string]bool)
	scanner := bufio.NewScanner(strings.NewReader(output))
	pastHeader := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "------") {
			pastHeader = true
			continue
		}
		if !pastHeader {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[0]) != 6 {
			continue
		}
		encoders[fields[1]] = true
	}
	return encoders
}
