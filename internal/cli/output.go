package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"cargo-relay/internal/database"
	"cargo-relay/internal/tracking"
)

// OutputFormatter handles different output formats
type OutputFormatter struct {
	format string
	quiet  bool
	out    io.Writer
	errOut io.Writer

	renderer *lipgloss.Renderer
	title    lipgloss.Style
	label    lipgloss.Style
	success  lipgloss.Style
	failure  lipgloss.Style
	muted    lipgloss.Style
}

// NewOutputFormatter creates a formatter writing to stdout and stderr
func NewOutputFormatter(config *Config) *OutputFormatter {
	return NewOutputFormatterTo(config, os.Stdout, os.Stderr)
}

// NewOutputFormatterTo creates a formatter writing to out and errOut. Color is
// used only when out is a terminal and color has not been turned off.
func NewOutputFormatterTo(config *Config, out, errOut io.Writer) *OutputFormatter {
	renderer := lipgloss.NewRenderer(out)
	if config.NoColor || !isTerminal(out) {
		renderer.SetColorProfile(termenv.Ascii)
	}

	return &OutputFormatter{
		format:   config.Format,
		quiet:    config.Quiet,
		out:      out,
		errOut:   errOut,
		renderer: renderer,
		title:    renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		label:    renderer.NewStyle().Bold(true),
		success:  renderer.NewStyle().Foreground(lipgloss.Color("82")),
		failure:  renderer.NewStyle().Foreground(lipgloss.Color("196")),
		muted:    renderer.NewStyle().Foreground(lipgloss.Color("244")),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// PrintTracking prints a tracking result. Text output is the chat rendering
// with the WhatsApp markup turned into terminal styling.
func (f *OutputFormatter) PrintTracking(result *tracking.Result, message string) error {
	if f.quiet {
		fmt.Fprintln(f.out, result.Kind)
		return nil
	}

	switch f.format {
	case "json":
		enc := json.NewEncoder(f.out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Result  *tracking.Result `json:"result"`
			Message string           `json:"message"`
		}{result, message})
	case "text":
		fmt.Fprintln(f.out, f.renderChat(message, result.IsSuccess()))
		return nil
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// renderChat styles *bold* spans; the first line is the title
func (f *OutputFormatter) renderChat(message string, ok bool) string {
	lines := strings.Split(message, "\n")
	for i, line := range lines {
		style := f.label
		if i == 0 {
			style = f.title
			if !ok {
				style = f.failure
			}
		}
		lines[i] = styleBold(line, style)
	}
	return strings.Join(lines, "\n")
}

// styleBold replaces *span* pairs with the styled span
func styleBold(line string, style lipgloss.Style) string {
	var b strings.Builder
	for {
		start := strings.IndexByte(line, '*')
		if start < 0 {
			break
		}
		end := strings.IndexByte(line[start+1:], '*')
		if end < 0 {
			break
		}
		end += start + 1
		b.WriteString(line[:start])
		b.WriteString(style.Render(line[start+1 : end]))
		line = line[end+1:]
	}
	b.WriteString(line)
	return b.String()
}

// PrintMessages prints stored messages
func (f *OutputFormatter) PrintMessages(messages []database.Message) error {
	if f.quiet {
		for _, m := range messages {
			fmt.Fprintln(f.out, m.ID)
		}
		return nil
	}

	switch f.format {
	case "json":
		return json.NewEncoder(f.out).Encode(messages)
	case "text":
		return f.printMessagesTable(messages)
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

func (f *OutputFormatter) printMessagesTable(messages []database.Message) error {
	if len(messages) == 0 {
		fmt.Fprintln(f.out, f.muted.Render("No messages found."))
		return nil
	}

	w := tabwriter.NewWriter(f.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tDIR\tPHONE\tTYPE\tCONTENT")
	for _, m := range messages {
		dir := "<-"
		if m.Direction == database.DirectionOutgoing {
			dir = "->"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			m.Timestamp.Format("2006-01-02 15:04"),
			dir,
			m.PhoneNumber,
			m.MessageType,
			truncate(firstLine(m.Content), 50))
	}
	return w.Flush()
}

// PrintSuccess prints a success message
func (f *OutputFormatter) PrintSuccess(message string) {
	if !f.quiet {
		fmt.Fprintln(f.out, f.success.Render("✓ "+message))
	}
}

// PrintError prints an error message
func (f *OutputFormatter) PrintError(err error) {
	fmt.Fprintln(f.errOut, f.failure.Render(fmt.Sprintf("✗ Error: %v", err)))
}

// PrintInfo prints an informational message
func (f *OutputFormatter) PrintInfo(message string) {
	if !f.quiet {
		fmt.Fprintln(f.out, f.muted.Render("ℹ "+message))
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// truncate shortens s to maxLen runes
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
