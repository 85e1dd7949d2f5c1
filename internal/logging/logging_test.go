package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"

	"taskflow/internal/config"
)

func restoreLogger(t *testing.T) {
	t.Helper()
	level := log.GetLevel()
	t.Cleanup(func() {
		log.SetLevel(level)
		log.SetOutput(os.Stderr)
		log.SetFormatter(&log.TextFormatter{})
	})
}

func TestSetupWritesToFile(t *testing.T) {
	restoreLogger(t)
	path := filepath.Join(t.TempDir(), "logs", "taskflow.log")
	closeLog, err := Setup(config.Config{LogLevel: "debug", LogFile: path}, nil)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	log.WithField("op", "load").Debug("hello")
	if err := closeLog(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello") || !strings.Contains(string(data), "op=load") {
		t.Fatalf("unexpected log contents %q", data)
	}
}

func TestSetupFallbackAndLevel(t *testing.T) {
	restoreLogger(t)
	var buf bytes.Buffer
	if _, err := Setup(config.Config{LogLevel: "warn"}, &buf); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	log.Info("dropped")
	log.Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestSetupRejectsBadLevel(t *testing.T) {
	restoreLogger(t)
	if _, err := Setup(config.Config{LogLevel: "loud"}, nil); err == nil {
		t.Fatalf("expected error")
	}
}
