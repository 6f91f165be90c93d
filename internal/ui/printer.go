package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Color palette
	primaryColor = lipgloss.Color("#00D4AA")
	textColor    = lipgloss.Color("#E5E7EB")

	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6")).Bold(true)
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8B5CF6")).Bold(true)
	stepStyle     = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	headerStyle   = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	cellStyle     = lipgloss.NewStyle().Foreground(textColor)
	plainStyle    = lipgloss.NewStyle().Foreground(textColor)
	bannerStyle   = lipgloss.NewStyle().Foreground(primaryColor).Bold(true).Padding(1, 0)
)

// Printer renders styled pipeline output. All orchestration code receives a
// Printer explicitly instead of writing to package-level state.
type Printer struct {
	out io.Writer
}

// New returns a Printer writing to stdout.
func New() *Printer {
	return &Printer{out: os.Stdout}
}

// NewWithWriter returns a Printer writing to the given writer. Used by tests.
func NewWithWriter(w io.Writer) *Printer {
	return &Printer{out: w}
}

func (p *Printer) Success(message string) {
	fmt.Fprintf(p.out, "✅ %s\n", successStyle.Render(message))
}

func (p *Printer) Error(message string) {
	fmt.Fprintf(p.out, "❌ %s\n", errorStyle.Render(message))
}

func (p *Printer) Info(message string) {
	fmt.Fprintf(p.out, "ℹ️  %s\n", infoStyle.Render(message))
}

func (p *Printer) Warning(message string) {
	fmt.Fprintf(p.out, "⚠️  %s\n", warningStyle.Render(message))
}

func (p *Printer) Progress(message string) {
	fmt.Fprintf(p.out, "🔄 %s\n", progressStyle.Render(message))
}

func (p *Printer) Step(step int, message string) {
	fmt.Fprintf(p.out, "%s %s\n", stepStyle.Render(fmt.Sprintf("[%d]", step)), plainStyle.Render(message))
}

// Banner prints a titled section divider before a phase starts.
func (p *Printer) Banner(title string) {
	fmt.Fprint(p.out, bannerStyle.Render(fmt.Sprintf("━━━ %s ━━━", title)))
	fmt.Fprintln(p.out)
}

// Raw writes unstyled output, used for relaying external command output and
// diagnostic dumps.
func (p *Printer) Raw(s string) {
	fmt.Fprint(p.out, s)
	if !strings.HasSuffix(s, "\n") {
		fmt.Fprintln(p.out)
	}
}

func (p *Printer) Table(headers []string, rows [][]string) {
	for i, header := range headers {
		if i > 0 {
			fmt.Fprint(p.out, "  ")
		}
		fmt.Fprintf(p.out, "%-24s", headerStyle.Render(header))
	}
	fmt.Fprintln(p.out)

	for i := range headers {
		if i > 0 {
			fmt.Fprint(p.out, "  ")
		}
		fmt.Fprint(p.out, strings.Repeat("─", 24))
	}
	fmt.Fprintln(p.out)

	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				fmt.Fprint(p.out, "  ")
			}
			fmt.Fprintf(p.out, "%-24s", cellStyle.Render(cell))
		}
		fmt.Fprintln(p.out)
	}
}
