package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withSettings(t *testing.T, cfg Config) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Configure(cfg))
	SetOutput(&buf)
	t.Cleanup(func() {
		_ = Configure(Config{})
		SetOutput(os.Stdout)
	})
	return &buf
}

func TestZerologLoggerMethods(t *testing.T) {
	assert.NoError(t, os.Setenv("APP_ENV", "dev"))
	defer func() { assert.NoError(t, os.Unsetenv("APP_ENV")) }()
	l := NewZerologLogger("test")
	if l == nil {
		t.Fatalf("nil logger")
	}
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Infow("info", map[string]any{"k": 2})
	l.Warnf("warn")
	l.Errorf("error")
}

func TestZerologJSONFields(t *testing.T) {
	buf := withSettings(t, Config{Level: "info", Format: "json"})
	l := New("bridge")
	l.Debugf("hidden")
	l.Infow("relay switched", map[string]any{"relay": "r1"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, "debug is below the configured level")
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "bridge", rec["component"])
	assert.Equal(t, "relay switched", rec["message"])
	assert.Equal(t, "r1", rec["relay"])
	assert.Equal(t, "info", rec["level"])
}

func TestLogrusBackend(t *testing.T) {
	buf := withSettings(t, Config{Level: "debug", Format: "json", Backend: "logrus"})
	l := New("mqtt")
	_, ok := l.(*LogrusLogger)
	require.True(t, ok)
	l.Debugw("frame", map[string]any{"topic": "farm/d/command"})

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "mqtt", rec["component"])
	assert.Equal(t, "frame", rec["msg"])
	assert.Equal(t, "farm/d/command", rec["topic"])
}

func TestConfigureRejectsUnknownValues(t *testing.T) {
	assert.Error(t, Configure(Config{Level: "loud"}))
	assert.Error(t, Configure(Config{Format: "xml"}))
	assert.Error(t, Configure(Config{Backend: "slog"}))
}
