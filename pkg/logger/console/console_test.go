package console

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLogger(ConsoleLoggerParams{Format: "json", Output: &buf, Prefix: "worker"})

	l.Info("[Graph] Event failed", "event_id", 3)
	l.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "[Graph] Event failed", entry["msg"])
	assert.Equal(t, "worker", entry["prefix"])
	assert.EqualValues(t, 3, entry["event_id"])
}

func TestConsoleLoggerDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLogger(ConsoleLoggerParams{Debug: true, Format: "logfmt", Output: &buf})

	l.Debug("record exists", "event_id", 9)
	assert.Contains(t, buf.String(), "level=debug")
	assert.Contains(t, buf.String(), "event_id=9")
}
