package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerInWritesEventsToStdout(t *testing.T) {
	dir := t.TempDir()
	l := NewLoggerIn(dir)

	assert.Same(t, os.Stdout, l.out)
	assert.Equal(t, filepath.Join(dir, "llm.jsonl"), l.llmLogPath)
}

func TestLoggerSplitsLLMTranscripts(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, dir)

	l.LogStep("s-1", 3, "completed", 0.9, 0)
	l.LogLLM("s-1", "prompt", "response", nil)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var evt Event
	require.NoError(t, json.Unmarshal(lines[0], &evt))
	assert.Equal(t, EventTypeStep, evt.Type)
	assert.Equal(t, 3, evt.StepID)

	data, err := os.ReadFile(filepath.Join(dir, "llm.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"llm"`)
	assert.NotContains(t, string(data), `"type":"step"`)
}

func TestNilLoggerDiscards(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() { l.LogHeartbeat() })
}
