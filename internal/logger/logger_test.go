package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerCreatesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l, err := NewLogger(dir)
	require.NoError(t, err)

	l.LogSynthesis("post", "/posts", 2, 3)
	require.NoError(t, l.Close())

	files, err := filepath.Glob(filepath.Join(dir, "run_*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "Synthesized 2 valid and 3 invalid bodies for post /posts")
}

func TestLogCase(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	l.LogCase("run-1", "Adds a post - valid #1", "FAIL", 1500*time.Microsecond, []string{"status code"})
	assert.Contains(t, buf.String(), "[run-1] FAIL: Adds a post - valid #1 (2ms)")
	assert.Contains(t, buf.String(), "    status code")
	assert.NoError(t, l.Close())
}

func TestLogLLMInteraction(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	l.LogLLMInteraction("Synthesize", "schema", nil, errors.New("rate limited"))
	assert.Contains(t, buf.String(), "LLM Operation: Synthesize")
	assert.Contains(t, buf.String(), "Error: rate limited")
	assert.NotContains(t, buf.String(), "Output:")
}
