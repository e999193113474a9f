package cli

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ProgressSpinner shows a spinner on stderr while a lookup runs
type ProgressSpinner struct {
	message string
	out     io.Writer
	enabled bool

	program *tea.Program
	started bool
	done    chan struct{}
	once    sync.Once
}

// NewProgressSpinner creates a spinner. It degrades to a single line when
// color is off, in CI, or when stderr is not a terminal.
func NewProgressSpinner(message string, noColor bool) *ProgressSpinner {
	return newProgressSpinner(message, os.Stderr,
		!noColor && os.Getenv("CI") == "" && isTerminal(os.Stderr))
}

func newProgressSpinner(message string, out io.Writer, enabled bool) *ProgressSpinner {
	return &ProgressSpinner{
		message: message,
		out:     out,
		enabled: enabled,
		done:    make(chan struct{}),
	}
}

// Start begins the spinner in a goroutine
func (p *ProgressSpinner) Start() {
	p.started = true
	if !p.enabled {
		fmt.Fprintf(p.out, "%s...\n", p.message)
		close(p.done)
		return
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	p.program = tea.NewProgram(spinnerModel{
		spinner: s,
		message: p.message,
		style:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}, tea.WithOutput(p.out), tea.WithInput(nil))

	go func() {
		defer close(p.done)
		_, _ = p.program.Run()
	}()
}

// Stop stops the spinner and waits for the terminal to be restored
func (p *ProgressSpinner) Stop() {
	if !p.started {
		return
	}
	p.once.Do(func() {
		if p.program != nil {
			p.program.Send(stopMsg{})
		}
		<-p.done
	})
}

type stopMsg struct{}

type spinnerModel struct {
	spinner  spinner.Model
	message  string
	style    lipgloss.Style
	quitting bool
}

func (m spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stopMsg:
		m.quitting = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m spinnerModel) View() string {
	if m.quitting {
		return ""
	}
	return fmt.Sprintf("%s %s", m.spinner.View(), m.style.Render(m.message))
}
