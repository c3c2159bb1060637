package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/wasm-tailcall/tailcall"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// style renders s with st only when w is a terminal.
func style(w io.Writer, st lipgloss.Style, s string) string {
	if !isTerminal(w) {
		return s
	}
	return st.Render(s)
}

func printReport(w io.Writer, report *tailcall.Report) {
	for _, fr := range report.Funcs {
		name := style(w, funcStyle, fr.Name)
		switch {
		case fr.Skipped != nil:
			fmt.Fprintf(w, "%s: skipped: %s\n", name, fr.Skipped.Detail)
		case fr.Sites > 0:
			fmt.Fprintf(w, "%s: %s\n", name, style(w, resultStyle, fmt.Sprintf("%d site(s) rewritten", fr.Sites)))
		default:
			fmt.Fprintf(w, "%s: unchanged\n", name)
		}
		for _, rej := range fr.Rejections {
			fmt.Fprintf(w, "  %s\n", style(w, helpStyle, rej.Error()))
		}
	}
	fmt.Fprintf(w, "%d site(s) in %d function(s)\n", report.Sites(), len(report.Funcs))
}
