package tui

import (
	"io"
	"strings"
	"testing"

	"lspup/internal/notify"
)

func TestStatusWriterLineTracksPhaseAndPercent(t *testing.T) {
	sw := NewStatusWriter(io.Discard)
	defer sw.Stop()

	sw.Progress(notify.Update{Message: "Downloading langd v1.2.0"})
	sw.Progress(notify.Update{IncrementPercent: 30})
	sw.Progress(notify.Update{IncrementPercent: 30})

	line := sw.line(0)
	if !strings.Contains(line, "Downloading langd v1.2.0") {
		t.Fatalf("phase missing from line %q", line)
	}
	if !strings.Contains(line, "60%") {
		t.Fatalf("accumulated percentage missing from line %q", line)
	}
}

func TestStatusWriterPhaseChangeResetsPercent(t *testing.T) {
	sw := NewStatusWriter(io.Discard)
	defer sw.Stop()

	sw.Progress(notify.Update{IncrementPercent: 50})
	sw.Progress(notify.Update{Message: "Checking latest release"})

	line := sw.line(0)
	if strings.Contains(line, "%") {
		t.Fatalf("expected percentage cleared on phase change, got %q", line)
	}
	if !strings.Contains(line, "Checking latest release") {
		t.Fatalf("phase missing from line %q", line)
	}
}

func TestStatusWriterStopIsIdempotent(t *testing.T) {
	sw := NewStatusWriter(io.Discard)
	sw.Stop()
	sw.Stop()
}
