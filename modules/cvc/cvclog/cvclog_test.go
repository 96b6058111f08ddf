package cvclog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewReturnsConfiguredLogger(t *testing.T) {
	l := New()
	if l == nil {
		t.Fatal("New() returned nil")
	}
	if l.Formatter == nil {
		t.Fatal("New() logger has no formatter set")
	}
}

func TestTrackerStepNextSilentWhenNotDebug(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)
	l.SetLevel(logrus.DebugLevel)
	tr := NewTracker(l, false)
	tr.StepNext("step %d", 1) // must not panic regardless of debug state
	if buf.Len() != 0 {
		t.Fatalf("StepNext logged with debug off: %q", buf.String())
	}
}

func TestTrackerStepNextLogsWhenDebug(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)
	l.SetLevel(logrus.DebugLevel)
	tr := NewTracker(l, true)
	tr.StepNext("step %d", 1)
	tr.StepNext("step %d", 2)
	if out := buf.String(); !strings.Contains(out, "step 1") || !strings.Contains(out, "step 2") {
		t.Fatalf("StepNext did not log both steps with debug on: %q", out)
	}
}
