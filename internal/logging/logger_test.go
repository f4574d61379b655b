package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestWithPeerFields(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})
	t.Cleanup(func() { Init(DefaultConfig()) })

	logger := WithPeer("window", "user:42")
	logger.Info().Msg("window loaded")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	if entry["component"] != "window" {
		t.Errorf("component = %v, want %q", entry["component"], "window")
	}
	if entry["peer"] != "user:42" {
		t.Errorf("peer = %v, want %q", entry["peer"], "user:42")
	}
}
