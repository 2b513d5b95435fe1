package logging

import (
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func TestFormatter_BasicLine(t *testing.T) {
	f := &Formatter{}
	entry := &log.Entry{
		Time:    time.Date(2026, 8, 28, 10, 4, 12, 0, time.UTC),
		Level:   log.InfoLevel,
		Message: "message classified\n",
		Data:    log.Fields{},
	}

	out, err := f.Format(entry)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	line := string(out)
	if !strings.HasPrefix(line, "[2026-08-28 10:04:12] [--------] [info ]") {
		t.Errorf("line = %q", line)
	}
	if !strings.Contains(line, "message classified") {
		t.Errorf("line = %q", line)
	}
	if !strings.HasSuffix(line, "\n") {
		t.Error("line should end with newline")
	}
}

func TestFormatter_RequestIDAndFields(t *testing.T) {
	f := &Formatter{}
	entry := &log.Entry{
		Time:    time.Now(),
		Level:   log.WarnLevel,
		Message: "answer reviewed",
		Data: log.Fields{
			"request_id": "a1b2c3d4",
			"verdict":    "WARN",
		},
	}

	out, err := f.Format(entry)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	line := string(out)
	if !strings.Contains(line, "[a1b2c3d4]") {
		t.Errorf("line missing request id: %q", line)
	}
	if !strings.Contains(line, "[warn ]") {
		t.Errorf("line missing shortened warn level: %q", line)
	}
	if !strings.Contains(line, "| verdict=WARN") {
		t.Errorf("line missing data fields: %q", line)
	}
	// request_id must not be repeated in the field tail.
	if strings.Contains(line, "request_id=") {
		t.Errorf("request_id duplicated in tail: %q", line)
	}
}
