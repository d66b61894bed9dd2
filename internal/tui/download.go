package tui

import (
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"lspup/internal/notify"
)

// PhaseMsg announces a new phase of the install flow.
type PhaseMsg struct {
	Message string
}

// ProgressMsg carries the absolute download completion percentage in
// [0, 100]. A negative value means the total size is unknown.
type ProgressMsg struct {
	Percent float64
}

// DoneMsg signals that the background work finished.
type DoneMsg struct {
	Err error
}

// DownloadModel renders a single phase line with a progress bar underneath
// while the installer works.
type DownloadModel struct {
	title   string
	bar     progress.Model
	phase   string
	percent float64
	unknown bool
	done    bool
	err     error
}

// NewDownloadModel creates the install progress view.
func NewDownloadModel(title string) DownloadModel {
	return DownloadModel{
		title: title,
		bar:   progress.New(progress.WithDefaultGradient()),
	}
}

// Err returns the error carried by the final DoneMsg, if any.
func (m DownloadModel) Err() error { return m.err }

func (m DownloadModel) Init() tea.Cmd { return nil }

func (m DownloadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case PhaseMsg:
		m.phase = msg.Message
		return m, nil
	case ProgressMsg:
		if msg.Percent < 0 {
			m.unknown = true
			return m, nil
		}
		if msg.Percent > 100 {
			msg.Percent = 100
		}
		m.percent = msg.Percent
		return m, nil
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m DownloadModel) View() string {
	if m.done {
		return ""
	}
	view := TitleStyle.Render(m.title) + "\n"
	if m.phase != "" {
		view += PhaseStyle.Render(m.phase) + "\n"
	}
	if m.unknown {
		view += FaintStyle.Render("downloading (size unknown)") + "\n"
	} else {
		view += m.bar.ViewAs(m.percent/100) + "\n"
	}
	return view
}

// RunDownload runs workFn under the download view. workFn reports through
// the returned sink; its error becomes the return value once the program
// exits.
func RunDownload(out io.Writer, title string, workFn func(sink notify.Sink) error) error {
	p := tea.NewProgram(NewDownloadModel(title), tea.WithOutput(out))

	go func() {
		// Let bubbletea start its event loop and render the first frame.
		time.Sleep(50 * time.Millisecond)
		err := workFn(&programSink{p: p})
		p.Send(DoneMsg{Err: err})
	}()

	finalModel, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := finalModel.(DownloadModel); ok {
		return m.Err()
	}
	return nil
}

// programSink adapts notify.Sink to bubbletea message sending, summing
// percentage increments into the absolute value the model renders.
type programSink struct {
	p *tea.Program

	mu      sync.Mutex
	percent float64
}

func (s *programSink) Progress(u notify.Update) {
	if u.Message != "" {
		s.p.Send(PhaseMsg{Message: u.Message})
	}
	if u.IncrementPercent > 0 {
		s.mu.Lock()
		s.percent += u.IncrementPercent
		percent := s.percent
		s.mu.Unlock()
		s.p.Send(ProgressMsg{Percent: percent})
	}
}

func (s *programSink) Infof(format string, args ...any) {}

func (s *programSink) Errorf(format string, args ...any) {}
