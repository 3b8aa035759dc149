package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("subscriber connected", "subscriber_id", "abc")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "subscriber connected", entry["msg"])
	assert.Equal(t, "abc", entry["subscriber_id"])
}

func TestSetLevelAppliesToDerivedLoggers(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Level: "warn"}, &buf)
	require.NoError(t, err)
	child := logger.With("component", "hub")

	child.Info("dropped")
	assert.Zero(t, buf.Len())

	require.NoError(t, logger.SetLevel("debug"))
	child.Debug("kept")
	assert.Contains(t, buf.String(), "kept")
	assert.Equal(t, slog.LevelDebug, logger.Level())
}

func TestParseLevelRejectsUnknown(t *testing.T) {
	_, err := ParseLevel("verbose")
	assert.Error(t, err)

	_, err = NewLogger(Config{Format: "xml"}, nil)
	assert.Error(t, err)
}
