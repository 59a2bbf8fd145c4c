package logger

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func captureStdout(t *testing.T, fn func()) string {
	orig := os.Stdout
	defer func() { os.Stdout = orig }()

	r, w, err := os.Pipe()
	require.NoError(t, err, "failed to create stdout pipe")
	os.Stdout = w

	fn()

	err = w.Close()
	require.NoError(t, err, "failed to close stdout pipe")
	out, err := io.ReadAll(r)
	require.NoError(t, err, "failed to read stdout pipe")

	return string(out)
}

func TestLogger_parseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"unknown", slog.LevelInfo},
	}

	for _, tt := range tests {
		require.Equal(t, tt.expected, parseLevel(tt.input), "parseLevel(%q)", tt.input)
	}
}

func TestLogger_New(t *testing.T) {
	t.Run("production is JSON", func(t *testing.T) {
		out := captureStdout(t, func() {
			logger, err := New(EnvProduction, LevelInfo)
			require.NoError(t, err)

			logger.Info("test message", "key", "value")
		})

		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &entry), "production log should be valid JSON")
		require.Equal(t, "test message", entry["msg"])
		require.Equal(t, "value", entry["key"])
	})

	t.Run("dev is text", func(t *testing.T) {
		out := captureStdout(t, func() {
			logger, err := New(EnvDev, LevelInfo)
			require.NoError(t, err)

			logger.Info("test message", "key", "value")
		})

		require.Contains(t, out, "test message")
		require.Contains(t, out, "key=value")
	})

	t.Run("unknown environment fails", func(t *testing.T) {
		_, err := New("staging", LevelInfo)
		require.Error(t, err)
	})
}

func TestLogger_Levels(t *testing.T) {
	t.Run("below threshold is skipped", func(t *testing.T) {
		out := captureStdout(t, func() {
			NewLogger(LevelWarn).Info("too quiet")
		})
		require.Empty(t, out)
	})

	t.Run("at threshold is logged", func(t *testing.T) {
		out := captureStdout(t, func() {
			NewLogger(LevelWarn).Warn("loud enough")
		})
		require.Contains(t, out, "loud enough")
	})
}

func TestLogger_With(t *testing.T) {
	out := captureStdout(t, func() {
		NewLogger(LevelInfo).With("component", "test").Info("test message")
	})

	require.Contains(t, out, "component=test")
	require.Contains(t, out, "test message")
}

func TestLogger_NewNoOpLogger(t *testing.T) {
	out := captureStdout(t, func() {
		logger := NewNoOpLogger()
		logger.Debug("debug message")
		logger.Info("info message")
		logger.Warn("warn message")
		logger.Error("error message")
	})

	require.Empty(t, out, "NoOp logger should not write anywhere")
}
