package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitStderrOnly(t *testing.T) {
	if err := Init(Config{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if Logger == nil {
		t.Fatal("Logger is nil after initialization")
	}
	if file != nil {
		t.Error("no file should be opened without a directory")
	}
	Info("stderr only")
}

func TestInitWithDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	if err := Init(Config{Dir: dir, Quiet: true}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()

	Info("feeding complete", "dispensed_g", 62.0)
	Debug("hidden at info level")

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "feeding complete") || !strings.Contains(out, "dispensed_g") {
		t.Errorf("log file missing entry: %q", out)
	}
	if strings.Contains(out, "hidden at info level") {
		t.Error("debug message written at info level")
	}
}

func TestInitDebugMode(t *testing.T) {
	dir := t.TempDir()

	if err := Init(Config{Debug: true, Dir: dir, Quiet: true}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()

	Debug("visible in debug mode")

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "visible in debug mode") {
		t.Error("debug message missing in debug mode")
	}
}

func TestWriter(t *testing.T) {
	dir := t.TempDir()
	if err := Init(Config{Dir: dir, Quiet: true}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()

	if _, err := Writer().Write([]byte("GET /index.json 200\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(dir, FileName))
	if !strings.Contains(string(data), "GET /index.json 200") {
		t.Errorf("writer output missing: %q", data)
	}
}

func TestLogFunctionsWithoutInit(t *testing.T) {
	Logger = nil

	// These should not panic when Logger is nil
	Debug("Test debug message")
	Info("Test info message")
	Warn("Test warning message")
	Error("Test error message")
	if With("k", "v") != nil {
		t.Error("With should return nil before Init")
	}
	if Writer() == nil {
		t.Error("Writer should never be nil")
	}
}

func TestCloseWithoutFile(t *testing.T) {
	file = nil
	if err := Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
