package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/dmpath/internal/config"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	l.Info().Msg("dropped")
	cl := Component(l, "module")
	cl.Warn().Str("module", "sim").Msg("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "module", entry["component"])
	assert.Equal(t, "sim", entry["module"])
	assert.Contains(t, entry, "time")
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LoggingConfig{Level: "debug", Format: "console"}, &buf)
	require.NoError(t, err)

	l.Debug().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
	_, err = New(config.LoggingConfig{Format: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)
}
