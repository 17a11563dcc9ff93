package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(nopWriter{})
		SetLevel(INFO)
	})
	return &buf
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestLog_JSONEntry(t *testing.T) {
	buf := capture(t)
	Info("rule fired", "rule_id", "r1", "err", errors.New("boom"))

	var entry map[string]string
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}
	if entry["level"] != "INFO" || entry["msg"] != "rule fired" || entry["rule_id"] != "r1" || entry["err"] != "boom" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestLog_LevelThreshold(t *testing.T) {
	buf := capture(t)
	SetLevel(WARN)
	Info("hidden")
	Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("threshold not applied: %s", buf.String())
	}
}

func TestLog_RedactsPII(t *testing.T) {
	buf := capture(t)
	Info("send", "email", "jane.doe@example.com", "phone", "+15550109999", "note", "contact bob@example.org")
	out := buf.String()
	for _, leaked := range []string{"jane.doe", "5550109999", "bob@"} {
		if strings.Contains(out, leaked) {
			t.Errorf("leaked %q in %s", leaked, out)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"debug": DEBUG, "INFO": INFO, "warn": WARN, "error": ERROR, "bogus": INFO}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRedactEmail(t *testing.T) {
	if got := RedactEmail("john.doe@example.com"); got != "jo***@example.com" {
		t.Errorf("got %q", got)
	}
	if got := RedactEmail("ab@example.com"); got != "***@example.com" {
		t.Errorf("got %q", got)
	}
	if got := RedactPhone("+1 555 010 9999"); got != "***99" {
		t.Errorf("got %q", got)
	}
}
