package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

// captureLog points the global logger at a buffer while keeping the
// runtime-adjustable level.
func captureLog() *bytes.Buffer {
	var buf bytes.Buffer
	Log = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: &level}))
	return &buf
}

func TestSetLevelTakesEffectAtRuntime(t *testing.T) {
	Init("info")
	buf := captureLog()

	Debug("hidden")
	if buf.Len() > 0 {
		t.Error("debug message visible at info level")
	}

	SetLevel("debug")
	buf.Reset()
	Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("debug message hidden after SetLevel(debug)")
	}

	SetLevel("error")
	buf.Reset()
	Info("hidden again")
	if buf.Len() > 0 {
		t.Error("info message visible at error level")
	}
}

func TestParseLevelFallsBackToInfo(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"garbage": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestHelpersSafeWithoutInit(t *testing.T) {
	Log = nil
	// Must not panic.
	Debug("a")
	Info("b")
	Warn("c")
	Error("d")
}
