package tui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"lspup/internal/notify"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// StatusWriter renders install progress as a single in-place status line.
// It is the plain-terminal fallback for the download view and plugs into
// the installer directly as a notification sink: phase messages restart
// the line's timer, percentage increments accumulate next to it.
type StatusWriter struct {
	w io.Writer

	mu          sync.Mutex
	phase       string
	failed      bool
	percent     float64
	showPercent bool
	phaseStart  time.Time
	done        chan struct{}
	stopped     bool
}

// NewStatusWriter starts a background renderer that redraws the status
// line on w a few times a second until Stop is called.
func NewStatusWriter(w io.Writer) *StatusWriter {
	sw := &StatusWriter{
		w:          w,
		phaseStart: time.Now(),
		done:       make(chan struct{}),
	}
	go sw.loop()
	return sw
}

// Progress implements notify.Sink. A message begins a new phase and resets
// the timer and percentage; increments accumulate into the shown value.
func (sw *StatusWriter) Progress(u notify.Update) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if u.Message != "" {
		sw.phase = u.Message
		sw.failed = false
		sw.percent = 0
		sw.showPercent = false
		sw.phaseStart = time.Now()
	}
	if u.IncrementPercent > 0 {
		sw.percent += u.IncrementPercent
		if sw.percent > 100 {
			sw.percent = 100
		}
		sw.showPercent = true
	}
}

func (sw *StatusWriter) Infof(format string, args ...any) {
	sw.setPhase(fmt.Sprintf(format, args...), false)
}

func (sw *StatusWriter) Errorf(format string, args ...any) {
	sw.setPhase(fmt.Sprintf(format, args...), true)
}

func (sw *StatusWriter) setPhase(msg string, failed bool) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.phase = msg
	sw.failed = failed
	sw.showPercent = false
	sw.phaseStart = time.Now()
}

// Stop clears the status line and stops the renderer. Safe to call twice.
func (sw *StatusWriter) Stop() {
	sw.mu.Lock()
	if sw.stopped {
		sw.mu.Unlock()
		return
	}
	sw.stopped = true
	sw.mu.Unlock()
	close(sw.done)
	fmt.Fprintf(sw.w, "\r\033[K")
}

func (sw *StatusWriter) loop() {
	frame := 0
	ticker := time.NewTicker(125 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sw.done:
			return
		case <-ticker.C:
			fmt.Fprintf(sw.w, "\r\033[K%s", sw.line(frame))
			frame++
		}
	}
}

func (sw *StatusWriter) line(frame int) string {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	style := PhaseStyle
	if sw.failed {
		style = ErrorStyle
	}

	s := spinnerFrames[frame%len(spinnerFrames)] + " " + style.Render(sw.phase)
	if sw.showPercent {
		s += fmt.Sprintf(" %3.0f%%", sw.percent)
	}
	return s + " " + FaintStyle.Render("("+elapsed(time.Since(sw.phaseStart))+")")
}

func elapsed(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
