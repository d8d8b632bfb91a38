package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerToJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(NewLoggerTo(&buf, Config{Level: "debug", Format: "json"}), "engine")
	logger.Debug().Str("currency", "USD").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line should be json: %v (%s)", err, buf.String())
	}
	if entry["component"] != "engine" {
		t.Fatalf("component field missing: %#v", entry)
	}
	if entry["level"] != "debug" {
		t.Fatalf("unexpected level: %#v", entry["level"])
	}
}

func TestNewLoggerToDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, Config{Level: "bogus"})
	logger.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at default level, got %s", buf.String())
	}
}
