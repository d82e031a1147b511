package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewDefaultsToInfo(t *testing.T) {
	logger, err := New("", "")
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	if logger.GetLevel() != logrus.InfoLevel {
		t.Errorf("level: want info, got %v", logger.GetLevel())
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("verbose", ""); err == nil {
		t.Error("New: want error for an unknown level")
	}
}

func TestNewWithFileWritesThere(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fastcap.log")
	logger, err := New("debug", path)
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	logger.Info("hello")
	if logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("level: want debug, got %v", logger.GetLevel())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log file: want it to contain %q, got %q", "hello", data)
	}
}
