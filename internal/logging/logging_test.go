package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "warn", false)
	l.Infof("hidden %d", 1)
	l.Warnf("shown %d", 2)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %q", out)
	}
	if !strings.HasPrefix(out, "WARN\tshown 2") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "debug", true)
	l.Errorf("boom: %s", "x")
	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}
	if payload["level"] != "error" || payload["msg"] != "boom: x" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestNilAndDiscard(t *testing.T) {
	var l *Logger
	l.Infof("no panic")
	if l.Enabled(Error) {
		t.Fatalf("nil logger must be disabled")
	}
	if Discard().Enabled(Error) {
		t.Fatalf("discard logger must be disabled")
	}
}
