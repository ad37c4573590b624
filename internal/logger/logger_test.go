package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWithWriterJSONRespectsLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, err := NewWithWriter(Config{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("session write failed", zap.String("account_id", "acc-1"))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "session write failed", entry["msg"])
	assert.Equal(t, "acc-1", entry["account_id"])
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want zapcore.Level
	}{
		{raw: "debug", want: zapcore.DebugLevel},
		{raw: "", want: zapcore.InfoLevel},
		{raw: "WARNING", want: zapcore.WarnLevel},
		{raw: "error", want: zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.raw)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	_, err := NewWithWriter(Config{Level: "info", Format: "xml"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log format")
}

func TestNewWritesToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "lsc.log")
	log, err := New(Config{Level: "info", Format: "console", Output: path})
	require.NoError(t, err)

	log.Info("hello")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestOrNop(t *testing.T) {
	t.Parallel()

	assert.NotNil(t, OrNop(nil))
	existing := zap.NewExample()
	assert.Same(t, existing, OrNop(existing))
}
