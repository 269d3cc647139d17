package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewWithWriterFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "debug")
	log.Debug().Str("device_id", "dev-1").Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("invalid json log line %q: %v", buf.String(), err)
	}
	if line["service"] != serviceName || line["device_id"] != "dev-1" || line["message"] != "hello" {
		t.Fatalf("unexpected fields: %v", line)
	}
}

func TestNewWithWriterLevelFallback(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "loud")
	log.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug line written at default level: %q", buf.String())
	}
	log.Info().Msg("shown")
	if buf.Len() == 0 {
		t.Fatal("info line missing")
	}
}
