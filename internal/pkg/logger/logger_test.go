package logger

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestStdLoggerSuppressesDebugWhenQuiet(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, false)

	log.Debug("hidden", nil)
	log.Info("hidden", nil)
	log.Warn("shown", map[string]interface{}{"b": 2, "a": 1})
	log.Error("failed", errors.New("boom"), nil)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("quiet logger wrote debug/info: %q", out)
	}
	if !strings.Contains(out, "[WARN] shown a=1 b=2") {
		t.Fatalf("expected sorted warn fields, got %q", out)
	}
	if !strings.Contains(out, "[ERROR] failed boom") {
		t.Fatalf("expected error line, got %q", out)
	}
}
