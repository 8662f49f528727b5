package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewJSONFormat checks JSON output carries message and fields.
func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("upscaler", "debug", "json", &buf)
	log.Info("export started", "job_id", "job-1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "export started", entry["@message"])
	assert.Equal(t, "job-1", entry["job_id"])
	assert.Equal(t, "upscaler", entry["@module"])
}

// TestNewUnknownLevelDefaultsToInfo checks level fallback.
func TestNewUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("upscaler", "loud", "text", &buf)
	log.Debug("hidden")
	assert.Empty(t, buf.String())

	log.Info("shown")
	assert.Contains(t, buf.String(), "shown")
}
