package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConfigureWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	ConfigureWriter(&buf, "debug", "text")

	Debug("cluster assigned", "cluster_id", "c1")
	Error("insert failed", errTest("boom"), "batch", 2)

	out := buf.String()
	if !strings.Contains(out, "cluster_id=c1") {
		t.Errorf("Expected text output with cluster_id, got %q", out)
	}
	if !strings.Contains(out, "error=boom") {
		t.Errorf("Expected error attribute, got %q", out)
	}
}

func TestConfigureWriter_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	ConfigureWriter(&buf, "warn", "json")

	Info("should be dropped")
	Warn("kept")

	out := buf.String()
	if strings.Contains(out, "should be dropped") {
		t.Errorf("Expected info to be filtered, got %q", out)
	}
	if !strings.Contains(out, `"msg":"kept"`) {
		t.Errorf("Expected warn in JSON output, got %q", out)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
