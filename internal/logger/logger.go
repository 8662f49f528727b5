package logger

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// New returns a structured logger with the given level and format.
// level: "trace", "debug", "info", "warn", "error" (default "info").
// format: "json" or "text" (default "text").
func New(name, level, format string) hclog.Logger {
	return NewWithOutput(name, level, format, os.Stderr)
}

// NewWithOutput is New writing to w.
func NewWithOutput(name, level, format string, w io.Writer) hclog.Logger {
	lvl := hclog.LevelFromString(strings.ToLower(strings.TrimSpace(level)))
	if lvl == hclog.NoLevel {
		lvl = hclog.Info
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      lvl,
		Output:     w,
		JSONFormat: strings.EqualFold(strings.TrimSpace(format), "json"),
	})
}
