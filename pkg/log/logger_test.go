// Unit tests for the structured logger
//
// Copyright (C) 2026  RatOS Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New("test")
	l.SetWriter(&buf)
	l.SetColorize(false)
	l.SetLevel(WARN)

	l.Debug("debug msg")
	l.Info("info msg")
	l.Warn("warn msg")
	l.Error("error msg")

	out := buf.String()
	if strings.Contains(out, "debug msg") || strings.Contains(out, "info msg") {
		t.Errorf("messages below WARN should be suppressed, got: %s", out)
	}
	if !strings.Contains(out, "warn msg") || !strings.Contains(out, "error msg") {
		t.Errorf("WARN and ERROR messages missing, got: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want LogLevel
	}{
		{"debug", DEBUG},
		{"DEBUG", DEBUG},
		{"info", INFO},
		{"warning", WARN},
		{"warn", WARN},
		{"error", ERROR},
		{"bogus", INFO},
	}
	for _, c := range cases {
		if got := ParseLevel(c.in); got != c.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestTextFormatFields(t *testing.T) {
	var buf bytes.Buffer
	l := New("test")
	l.SetWriter(&buf)
	l.SetColorize(false)

	l.WithField("file", "print.gcode").WithField("line", 42).Info("processing")

	out := buf.String()
	if !strings.Contains(out, "processing") {
		t.Fatalf("message missing from output: %s", out)
	}
	if !strings.Contains(out, "file=print.gcode") || !strings.Contains(out, "line=42") {
		t.Errorf("fields missing from output: %s", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New("codec")
	l.SetWriter(&buf)
	l.SetFormat(FormatJSON)

	l.WithField("offset", 128).Warn("trailer length mismatch")

	var entry JSONLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v (%s)", err, buf.String())
	}
	if entry.Level != "WARN" {
		t.Errorf("level = %q, want WARN", entry.Level)
	}
	if entry.Logger != "codec" {
		t.Errorf("logger = %q, want codec", entry.Logger)
	}
	if entry.Message != "trailer length mismatch" {
		t.Errorf("message = %q", entry.Message)
	}
	if entry.Fields["offset"] != float64(128) {
		t.Errorf("offset field = %v, want 128", entry.Fields["offset"])
	}
}

func TestWithPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := New("root")
	l.SetWriter(&buf)
	l.SetColorize(false)

	sub := l.WithPrefix("window")
	sub.Info("buffer full")

	if !strings.Contains(buf.String(), "window: buffer full") {
		t.Errorf("prefix not applied: %s", buf.String())
	}
}
