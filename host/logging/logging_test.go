package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.log")
	cfg := DefaultConfig()
	cfg.Filename = path
	cfg.Level = "warn"

	log := New(cfg)
	log.Info("hidden")
	log.Warn("bus voltage low")
	log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines:\n%s", len(lines), data)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("entry is not json: %v", err)
	}
	if entry["level"] != "WARN" || entry["msg"] != "bus voltage low" {
		t.Errorf("entry %v", entry)
	}
	// ISO8601, e.g. 2024-01-02T15:04:05.000Z0700
	if ts, _ := entry["ts"].(string); !strings.Contains(ts, "T") {
		t.Errorf("timestamp %q", entry["ts"])
	}
}

func TestUnknownLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.log")
	log := New(Config{Level: "loud", Filename: path})
	log.Debug("hidden")
	log.Info("shown")
	log.Sync()

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "hidden") || !strings.Contains(string(data), "shown") {
		t.Errorf("log:\n%s", data)
	}
}
