package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-tailcall/engine"
	"github.com/wippyai/wasm-tailcall/errors"
	"github.com/wippyai/wasm-tailcall/runtime"
	"github.com/wippyai/wasm-tailcall/tailcall"
)

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <module.wasm>",
		Short: "Call functions interactively, original and rewritten side by side",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isTerminal(os.Stdout) || !isTerminal(os.Stdin) {
				return errors.InvalidInput(errors.PhaseConfig, "inspect requires a terminal")
			}
			m := newInspectModel(rootOpts, args[0])
			_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
			m.close()
			if err != nil {
				return err
			}
			return m.err
		},
	}
}

type inspectState int

const (
	stateSelectFunc inspectState = iota
	stateInputArgs
	stateShowResult
)

type funcInfo struct {
	name     string
	sig      *engine.Signature
	original *runtime.Unit
}

// outcome is the result of one form of a function.
type outcome struct {
	err    error
	result string
	label  string
}

type inspectModel struct {
	err      error
	opts     *RootOptions
	rt       *runtime.Runtime
	filename string
	data     []byte
	funcs    []funcInfo
	results  []outcome
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    inspectState
}

type loadedMsg struct {
	err   error
	rt    *runtime.Runtime
	data  []byte
	funcs []funcInfo
}

type callResultMsg struct {
	results []outcome
}

func newInspectModel(opts *RootOptions, filename string) *inspectModel {
	return &inspectModel{opts: opts, filename: filename, state: stateSelectFunc}
}

func (m *inspectModel) Init() tea.Cmd {
	return m.load
}

func (m *inspectModel) load() tea.Msg {
	ctx := context.Background()

	data, err := readModule(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}
	names, err := tailcall.Functions(data)
	if err != nil {
		return loadedMsg{err: err}
	}

	rt, err := m.opts.newRuntime(ctx)
	if err != nil {
		return loadedMsg{err: err}
	}

	var funcs []funcInfo
	for _, name := range names {
		// Only exported functions can be called.
		unit, err := rt.Load(ctx, data, name)
		if err != nil {
			continue
		}
		sig, err := unit.Signature()
		if err != nil || len(sig.Params) != 2 || len(sig.Results) != 1 {
			continue
		}
		funcs = append(funcs, funcInfo{name: name, sig: sig, original: unit})
	}
	if len(funcs) == 0 {
		rt.Close(ctx)
		return loadedMsg{err: fmt.Errorf("%s exports no function of the form (x, acc) -> acc", m.filename)}
	}
	return loadedMsg{rt: rt, data: data, funcs: funcs}
}

func (m *inspectModel) close() {
	if m.rt != nil {
		m.rt.Close(context.Background())
		m.rt = nil
	}
}

func (m *inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs) > 0 {
					m.prepareInputs()
					m.state = stateInputArgs
				}
				return m, nil

			case stateInputArgs:
				return m, m.call

			case stateShowResult:
				m.state = stateInputArgs
				m.results = nil
				return m, nil
			}

		case "tab", "shift+tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}
			return m, nil

		case "esc":
			m.state = stateSelectFunc
			m.inputs = nil
			m.results = nil
			return m, nil
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.rt = msg.rt
		m.data = msg.data
		m.funcs = msg.funcs

	case callResultMsg:
		m.results = msg.results
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		cmds := make([]tea.Cmd, len(m.inputs))
		for i := range m.inputs {
			m.inputs[i], cmds[i] = m.inputs[i].Update(msg)
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

func (m *inspectModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.sig.Params))
	for i, p := range f.sig.Params {
		ti := textinput.New()
		ti.Placeholder = engine.TypeName(p)
		ti.Prompt = f.sig.Names[i] + ": "
		ti.Width = 30
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *inspectModel) call() tea.Msg {
	ctx := context.Background()
	f := m.funcs[m.selected]

	values := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		values[i] = input.Value()
	}
	args, err := f.sig.ParseArgs(values)
	if err != nil {
		return callResultMsg{results: []outcome{{label: "input", err: err}}}
	}

	results := []outcome{callOutcome(ctx, "original", f.original, f.sig, args)}

	rewritten, err := m.rt.Rewrite(ctx, m.data, f.name)
	if err != nil {
		results = append(results, outcome{label: "rewritten", err: err})
	} else {
		label := fmt.Sprintf("rewritten (%d site(s))", rewritten.Sites)
		results = append(results, callOutcome(ctx, label, rewritten, f.sig, args))
	}
	return callResultMsg{results: results}
}

func callOutcome(ctx context.Context, label string, unit *runtime.Unit, sig *engine.Signature, args []any) outcome {
	out, err := unit.CallWithSignature(ctx, sig, args...)
	if err != nil {
		if engine.IsStackOverflow(err) {
			err = fmt.Errorf("stack overflow")
		}
		return outcome{label: label, err: err}
	}
	return outcome{label: label, result: fmt.Sprint(out)}
}

func (m *inspectModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if len(m.funcs) == 0 {
		return "Loading module..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("tailcall inspect"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		b.WriteString("Select a function:\n\n")
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + f.name + strings.TrimPrefix(f.sig.String(), "func")))
			} else {
				b.WriteString("  " + m.formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter choose • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", m.formatFunc(f)))
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("%s\n\n", m.formatFunc(f)))
		columns := make([]string, len(m.results))
		for i, r := range m.results {
			body := resultStyle.Render(r.result)
			if r.err != nil {
				body = errorStyle.Render(r.err.Error())
			}
			columns[i] = columnStyle.Render(typeStyle.Render(r.label) + "\n\n" + body)
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, columns...))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter call again • esc back • q quit"))
	}

	return b.String()
}

var columnStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	Padding(0, 1).
	Width(40)

func (m *inspectModel) formatFunc(f funcInfo) string {
	params := make([]string, len(f.sig.Params))
	for i, p := range f.sig.Params {
		params[i] = f.sig.Names[i] + ": " + typeStyle.Render(engine.TypeName(p))
	}
	result := " -> " + typeStyle.Render(engine.TypeName(f.sig.Results[0]))
	return funcStyle.Render(f.name) + "(" + strings.Join(params, ", ") + ")" + result
}
