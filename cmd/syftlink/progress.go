package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/openmined/syftlink/internal/sync"
)

type progressEventMsg sync.ProgressEvent

type progressDoneMsg struct{}

type progressModel struct {
	bar     progress.Model
	spinner spinner.Model
	total   int
	done    int
	failed  int
	current string
	final   bool
}

func newProgressModel(total int) progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = cyan

	return progressModel{
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner: s,
		total:   total,
	}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressEventMsg:
		if msg.Phase == sync.PhaseStart {
			m.current = msg.Path
			return m, nil
		}
		m.done++
		if msg.Err != nil {
			m.failed++
		}
		return m, m.bar.SetPercent(m.percent())

	case progressDoneMsg:
		m.final = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) percent() float64 {
	if m.total == 0 {
		return 1
	}
	return float64(m.done) / float64(m.total)
}

func (m progressModel) View() string {
	var b strings.Builder
	if m.final {
		b.WriteString(m.bar.ViewAs(m.percent()))
	} else {
		b.WriteString(m.spinner.View() + " " + m.bar.View())
	}
	b.WriteString(fmt.Sprintf(" %d/%d", m.done, m.total))
	if m.failed > 0 {
		b.WriteString(" " + red.Render(fmt.Sprintf("%d failed", m.failed)))
	}
	if !m.final && m.current != "" {
		b.WriteString("\n" + gray.Render(m.current))
	}
	return b.String() + "\n"
}

// progressView renders executor progress on a terminal. Emit blocks until the
// event loop has taken the event.
type progressView struct {
	program *tea.Program
	done    chan struct{}
}

func startProgressView(out io.Writer, plan []sync.Action) *progressView {
	total := 0
	for _, a := range plan {
		if a.Kind != sync.ActionNothing && a.Kind != sync.ActionForget {
			total++
		}
	}

	v := &progressView{
		program: tea.NewProgram(newProgressModel(total), tea.WithOutput(out), tea.WithInput(nil)),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(v.done)
		_, _ = v.program.Run()
	}()
	return v
}

func (v *progressView) Emit(ev sync.ProgressEvent) {
	v.program.Send(progressEventMsg(ev))
}

// Stop draws the final frame and waits for the program to exit.
func (v *progressView) Stop() {
	v.program.Send(progressDoneMsg{})
	<-v.done
}
