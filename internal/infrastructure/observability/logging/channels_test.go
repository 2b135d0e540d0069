package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelAttributeAndLevels(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewChanneledLogger(&LoggerConfig{
		Output:       &buf,
		JSONFormat:   true,
		DefaultLevel: slog.LevelInfo,
	})
	require.NoError(t, err)

	logger.Gateway().Debug("hidden")
	assert.Zero(t, buf.Len())

	logger.Gateway().Info("cache installed", "version", "v2")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "gateway", entry["channel"])
	assert.Equal(t, "v2", entry["version"])

	buf.Reset()
	require.NoError(t, logger.SetChannelLevel(ChannelGateway, slog.LevelDebug))
	logger.Gateway().Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
	assert.Equal(t, "DEBUG", logger.GetChannelLevels()["gateway"])
	assert.Equal(t, "INFO", logger.GetChannelLevels()["forms"])

	assert.Error(t, logger.SetChannelLevel(Channel("nope"), slog.LevelDebug))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}
