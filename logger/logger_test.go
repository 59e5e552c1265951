package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "radio.log")
	if err := Init(Config{Level: "warn", Outputs: []string{path}}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()

	Info("hidden below level")
	Warn("Stream failed", "url", "http://radio.example")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "hidden below level") {
		t.Error("expected info message to be filtered")
	}
	if !strings.Contains(out, "Stream failed") || !strings.Contains(out, "url=http://radio.example") {
		t.Errorf("unexpected log output %q", out)
	}
}

func TestInitRejectsUnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}

	if err := Init(Config{Outputs: []string{filepath.Join(blocker, "radio.log")}}); err == nil {
		t.Error("expected error when log directory is a file")
	}
	if Logger() == nil {
		t.Error("expected previous logger to stay usable")
	}
}
