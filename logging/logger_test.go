package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	_ Logger = (*GraphLogger)(nil)
	_ Logger = (*SlogAdapter)(nil)
	_ Logger = NoOpLogger{}
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		assert.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}

	return out
}

func TestGraphLogger_ContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf})

	l.WithComponent("engine").WithSession("sess-1").Info("engine.session.start", "graph_key", "abc")

	lines := decodeLines(t, &buf)
	assert.Len(t, lines, 1)
	assert.Equal(t, "engine.session.start", lines[0]["msg"])
	assert.Equal(t, "engine", lines[0]["component"])
	assert.Equal(t, "sess-1", lines[0]["session_id"])
	assert.Equal(t, "abc", lines[0]["graph_key"])
}

func TestGraphLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelWarn, Format: "json", Output: &buf})

	l.Debug("dropped")
	l.Info("dropped")
	l.Warn("kept")

	lines := decodeLines(t, &buf)
	assert.Len(t, lines, 1)
	assert.Equal(t, "kept", lines[0]["msg"])
}

func TestGraphLogger_LogNodeExecution(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: &buf})

	l.LogNodeExecution("calculation", 5*time.Millisecond, true, nil)
	l.LogNodeExecution("data_fetch", time.Millisecond, false, errors.New("db down"))

	lines := decodeLines(t, &buf)
	assert.Len(t, lines, 2)
	assert.Equal(t, "graph.node.success", lines[0]["msg"])
	assert.Equal(t, "graph.node.error", lines[1]["msg"])
	assert.Equal(t, "db down", lines[1]["error"])
	assert.Equal(t, "ERROR", lines[1]["level"])
}

func TestGraphLogger_LogLLMCallAndGraphExecution(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: &buf}).WithContext("run", 7)

	l.LogLLMCall("gpt-4o-mini", time.Second, false, errors.New("rate limited"))
	l.LogGraphExecution("k1", 5, time.Second, true, nil)

	lines := decodeLines(t, &buf)
	assert.Len(t, lines, 2)
	assert.Equal(t, "llm.call.failed", lines[0]["msg"])
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "gpt-4o-mini", lines[0]["model"])
	assert.Equal(t, "engine.session.completed", lines[1]["msg"])
	assert.Equal(t, float64(5), lines[1]["step_count"])
	assert.Equal(t, float64(7), lines[1]["run"])
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	assert.NoError(t, err)
	assert.Equal(t, LogLevelDebug, lvl)

	lvl, err = ParseLevel("")
	assert.NoError(t, err)
	assert.Equal(t, LogLevelInfo, lvl)

	_, err = ParseLevel("chatty")
	assert.Error(t, err)
}

func TestOrNoOp(t *testing.T) {
	assert.Equal(t, NoOpLogger{}, OrNoOp(nil))

	l := NewDefaultSlogLogger()
	assert.Equal(t, l, OrNoOp(l))
}
