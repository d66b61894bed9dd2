// Package notify defines the sink through which long-running operations
// surface progress and user-facing outcomes. The installer and lifecycle
// manager report here without knowing whether the other end is a terminal
// spinner, a bubbletea program, or just a log file.
package notify

import "log"

// Update is a single progress report. Message and IncrementPercent are both
// optional; a zero increment with a message is a phase change.
type Update struct {
	Message          string
	IncrementPercent float64
}

// Sink accepts progress updates and terminal success/error notifications.
type Sink interface {
	Progress(Update)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// LogSink writes every notification to a standard logger.
type LogSink struct {
	Logger *log.Logger
}

func (s LogSink) Progress(u Update) {
	if u.Message != "" {
		s.Logger.Printf("progress: %s", u.Message)
	}
}

func (s LogSink) Infof(format string, args ...any) {
	s.Logger.Printf("info: "+format, args...)
}

func (s LogSink) Errorf(format string, args ...any) {
	s.Logger.Printf("error: "+format, args...)
}

// Discard drops all notifications.
type Discard struct{}

func (Discard) Progress(Update)       {}
func (Discard) Infof(string, ...any)  {}
func (Discard) Errorf(string, ...any) {}

// Multi fans notifications out to several sinks.
type Multi []Sink

func (m Multi) Progress(u Update) {
	for _, s := range m {
		s.Progress(u)
	}
}

func (m Multi) Infof(format string, args ...any) {
	for _, s := range m {
		s.Infof(format, args...)
	}
}

func (m Multi) Errorf(format string, args ...any) {
	for _, s := range m {
		s.Errorf(format, args...)
	}
}
