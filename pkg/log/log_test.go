package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureJSON(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev, prevLevel := Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})
	return &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	return line
}

func TestWithFleet(t *testing.T) {
	buf := captureJSON(t)

	logger := WithFleet("ASG-web-prod-1a2b3c4d")
	logger.Info().Msg("Creating fleet")

	line := decodeLine(t, buf)
	assert.Equal(t, "fleet", line["component"])
	assert.Equal(t, "ASG-web-prod-1a2b3c4d", line["fleet"])
	assert.Equal(t, "Creating fleet", line["message"])
}

func TestWithTarget(t *testing.T) {
	buf := captureJSON(t)

	logger := WithTarget("prod", "web")
	logger.Warn().Msg("Launch spec left orphaned")

	line := decodeLine(t, buf)
	assert.Equal(t, "prod", line["env"])
	assert.Equal(t, "web", line["target"])
	assert.Equal(t, "warn", line["level"])
}

func TestErrorf(t *testing.T) {
	buf := captureJSON(t)

	Errorf("deploy failed", errors.New("boom"))

	line := decodeLine(t, buf)
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "deploy failed", line["message"])
}

func TestInitLevel(t *testing.T) {
	buf := captureJSON(t)
	Init(Config{Level: WarnLevel, JSONOutput: true, Output: buf})

	logger := WithComponent("lock")
	logger.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("kept")
	assert.Equal(t, "lock", decodeLine(t, buf)["component"])
}
