package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitRejectsBadConfig(t *testing.T) {
	if err := Init(WithLevel("noisy")); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if err := Init(WithFormat("xml")); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	err := Init(
		WithLevel("debug"),
		WithFormat("json"),
		WithFile(path),
		WithVersion("test"),
		WithComponent("planline"),
	)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	Info("hello from the test")
	child := New("storage")
	child.Warn("child entry")

	if err := Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "hello from the test") {
		t.Errorf("missing root entry in %q", out)
	}
	if !strings.Contains(out, "child entry") || !strings.Contains(out, "storage") {
		t.Errorf("missing component-tagged child entry in %q", out)
	}
}

func TestShutdownDeactivatesLogging(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	if err := Init(WithFormat("json"), WithFile(path)); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	// After Shutdown both the wrappers and New are inert.
	Info("dropped")
	New("web").Info("also dropped")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(data), "dropped") {
		t.Errorf("entry written after Shutdown: %q", data)
	}

	if err := Shutdown(); err == nil {
		t.Error("expected error from double Shutdown")
	}
}
