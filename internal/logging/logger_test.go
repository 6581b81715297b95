package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func restore(t *testing.T) {
	t.Helper()
	original := Logger()
	level := Level()
	t.Cleanup(func() {
		SetLogger(original)
		SetLevel(level)
	})
}

func TestSetAndGetLogger(t *testing.T) {
	restore(t)

	var buf bytes.Buffer
	customLogger := slog.New(slog.NewJSONHandler(&buf, nil))
	SetLogger(customLogger)

	if Logger() != customLogger {
		t.Error("Logger() did not return the logger set by SetLogger()")
	}
}

func TestSetOutput(t *testing.T) {
	restore(t)

	var buf bytes.Buffer
	SetOutput(&buf)
	Info("stake refreshed", "count", 3)

	output := buf.String()
	if !strings.Contains(output, "stake refreshed") {
		t.Errorf("expected output to contain message, got: %s", output)
	}
	if !strings.Contains(output, `"count":3`) {
		t.Errorf("expected JSON attribute, got: %s", output)
	}
}

func TestSetLevel(t *testing.T) {
	restore(t)

	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(slog.LevelInfo)

	Debug("should not appear")
	if buf.Len() > 0 {
		t.Error("Debug messages should not appear at Info level")
	}

	SetLevel(slog.LevelDebug)
	Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Errorf("expected debug output after SetLevel, got: %s", buf.String())
	}
}

func TestSetTextOutput(t *testing.T) {
	restore(t)

	var buf bytes.Buffer
	SetTextOutput(&buf)
	Warn("allowance low")

	output := buf.String()
	if !strings.Contains(output, "level=WARN") {
		t.Errorf("expected text handler output, got: %s", output)
	}
}

func TestConfigure(t *testing.T) {
	restore(t)

	if err := Configure("verbose", FormatJSON); err == nil {
		t.Error("expected error for unknown level")
	}
	if err := Configure("info", Format("xml")); err == nil {
		t.Error("expected error for unknown format")
	}
	if err := Configure("warn", FormatText); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if Level() != slog.LevelWarn {
		t.Errorf("level = %v, want WARN", Level())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		err  bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("ParseLevel(%q) err = %v, want err %v", tt.in, err, tt.err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFieldHelpers(t *testing.T) {
	if a := StakeIndex(4); a.Key != "stake_index" || a.Value.Int64() != 4 {
		t.Errorf("StakeIndex = %v", a)
	}
	if a := Err(nil); a.Value.String() != "" {
		t.Errorf("Err(nil) = %v", a)
	}
	if a := Err(errors.New("boom")); a.Value.String() != "boom" {
		t.Errorf("Err = %v", a)
	}
	if a := Op("stake"); a.Key != "op" {
		t.Errorf("Op key = %s", a.Key)
	}
}

func TestAudit(t *testing.T) {
	restore(t)

	var buf bytes.Buffer
	SetOutput(&buf)

	Audit(AuditEvent{
		Operation: "stake_submitted",
		Actor:     "0x1111111111111111111111111111111111111111",
		Target:    "lock=1",
		Result:    "pending",
		TxHash:    "0x" + strings.Repeat("ab", 32),
	})

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal audit record: %v", err)
	}
	if rec["audit"] != true {
		t.Errorf("audit flag missing: %v", rec)
	}
	if rec["operation"] != "stake_submitted" {
		t.Errorf("operation = %v", rec["operation"])
	}
	if rec["tx_hash"] != "0x"+strings.Repeat("ab", 32) {
		t.Errorf("tx_hash should not be redacted, got %v", rec["tx_hash"])
	}
	if _, ok := rec["details"]; ok {
		t.Error("empty details should be omitted")
	}
}
