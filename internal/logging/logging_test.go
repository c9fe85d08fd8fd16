package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("write failed")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"DEBUG":   slog.LevelDebug,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"Warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNewTextFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "WARN", "text")

	logger.Info("quiet")
	logger.Warn("loud", "cycle", 3)

	out := buf.String()
	assert.NotContains(t, out, "quiet")
	assert.Contains(t, out, "msg=loud")
	assert.Contains(t, out, "cycle=3")
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "INFO", "JSON").Info("transfer complete", "role", "initiator")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "transfer complete", rec["msg"])
	assert.Equal(t, "initiator", rec["role"])
}

func TestInitTeesToFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "handshake.log")
	logger, closer, err := Init("DEBUG", "text", path)
	require.NoError(t, err)

	logger.Debug("to file")
	slog.Info("via default")
	require.NoError(t, closer.Close())
	require.NoError(t, closer.Close(), "second close is a no-op")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
	assert.Contains(t, string(data), "via default")
}

func TestInitBadFile(t *testing.T) {
	_, _, err := Init("INFO", "text", filepath.Join(t.TempDir(), "missing", "x.log"))
	assert.Error(t, err)
}

func TestTeeWriterErrorPropagation(t *testing.T) {
	w := &teeWriter{target: failingWriter{}}
	n, err := w.Write([]byte("x"))
	assert.Equal(t, 1, n)
	assert.Error(t, err)

	var buf bytes.Buffer
	w = &teeWriter{target: &buf}
	_, err = w.Write([]byte("line\n"))
	assert.NoError(t, err)
	assert.True(t, strings.HasSuffix(buf.String(), "line\n"))
}
