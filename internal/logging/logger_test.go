package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerWithWriter(t *testing.T) {
	var buf bytes.Buffer
	lg := NewLoggerWithWriter(&buf)
	lg.Info("analysis started", "path", "/tmp/sample")
	if err := lg.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "binlift") {
		t.Errorf("output %q missing default prefix", out)
	}
	if !strings.Contains(out, "analysis started") {
		t.Errorf("output %q missing message", out)
	}
}

func TestLogLevelFromEnv(t *testing.T) {
	t.Setenv("BINLIFT_LOG_LEVEL", "warn")

	var buf bytes.Buffer
	lg := NewLoggerWithWriter(&buf)
	lg.Info("suppressed")
	lg.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Errorf("info message leaked through warn level: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("warn message missing from %q", out)
	}
}

func TestIsDebug(t *testing.T) {
	t.Setenv("BINLIFT_LOG_LEVEL", "debug")
	if !IsDebug() {
		t.Error("IsDebug() = false with debug level set")
	}
	t.Setenv("BINLIFT_LOG_LEVEL", "info")
	if IsDebug() {
		t.Error("IsDebug() = true with info level set")
	}
}
