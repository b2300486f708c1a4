// Package tui renders a flow's step screens in the terminal.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"safeplate/internal/engine"
	"safeplate/internal/field"
	"safeplate/internal/notify"
	"safeplate/internal/wizard"
)

const hintLimit = 6

// nextMsg carries the outcome of a Next or Retry issued off the UI loop.
type nextMsg struct{ err error }

// createdMsg carries reloaded lists after an auxiliary create.
type createdMsg struct {
	screen engine.Creator
	lists  engine.Lists
	err    error
}

// Model drives one wizard.Runner. The runner is only touched from Update;
// network calls run as commands and report back through messages.
type Model struct {
	ctx    context.Context
	runner *wizard.Runner
	notes  *notify.Recorder
	styles Styles

	input   textinput.Model
	focus   int
	busy    bool
	frozen  string
	message *notify.Notification
	seen    int
	landed  *string
	quit    bool
}

// New builds the model. notes must be the notifier the runner reports to.
func New(ctx context.Context, r *wizard.Runner, notes *notify.Recorder) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 200
	ti.Focus()
	landed := new(string)
	m := Model{ctx: ctx, runner: r, notes: notes, styles: DefaultStyles(), input: ti, landed: landed}
	r.OnLanding = func(to string) { *landed = to }
	m.load()
	return m
}

// Landed reports where the flow sent the user after a successful submit.
func (m Model) Landed() string { return *m.landed }

// Phase is the runner phase, for callers inspecting the final model.
func (m Model) Phase() wizard.Phase { return m.runner.Phase() }

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m *Model) inputs() []wizard.Input { return m.runner.Current().Inputs() }

// load puts the focused collector's current entry in the text box.
func (m *Model) load() {
	ins := m.inputs()
	if m.focus >= len(ins) {
		m.focus = len(ins) - 1
	}
	if m.focus < 0 {
		m.focus = 0
	}
	m.input.SetValue("")
	m.input.Placeholder = ""
	if len(ins) == 0 {
		return
	}
	c := ins[m.focus].Collector
	switch c := c.(type) {
	case *wizard.SelectionSet:
		m.input.Placeholder = "id, id=detail, -id (separate with ;)"
		if c.Mode() == wizard.WithQuantity {
			lo, hi := c.QuantityBounds()
			m.input.Placeholder = fmt.Sprintf("id, id=qty (%d-%d), id=+, id=-, -id (separate with ;)", lo, hi)
		}
	case *field.Toggle:
		m.input.Placeholder = "yes / no"
	default:
		m.input.SetValue(c.String())
	}
}

func (m *Model) pullNotes() {
	if m.notes == nil {
		return
	}
	all := m.notes.All()
	if len(all) > m.seen {
		n := all[len(all)-1]
		m.message = &n
		m.seen = len(all)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case nextMsg:
		m.busy = false
		m.pullNotes()
		if msg.err == nil && m.runner.Phase() == wizard.Done {
			m.quit = true
			return m, tea.Quit
		}
		m.focus = 0
		m.load()
		return m, nil
	case createdMsg:
		m.busy = false
		if msg.err != nil {
			m.message = &notify.Notification{Level: notify.Error, Title: "Create", Message: wizard.UserMessage(msg.err)}
			return m, nil
		}
		msg.screen.Refresh(msg.lists)
		m.message = &notify.Notification{Level: notify.Success, Title: "Create", Message: "Added"}
		m.load()
		return m, nil
	case tea.KeyMsg:
		if m.busy {
			if msg.Type == tea.KeyCtrlC {
				m.quit = true
				return m, tea.Quit
			}
			return m, nil
		}
		return m.handleKey(msg)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.quit = true
		return m, tea.Quit
	case tea.KeyEsc:
		if m.runner.Back() {
			m.focus = 0
			m.load()
			return m, nil
		}
		m.quit = true
		return m, tea.Quit
	case tea.KeyTab, tea.KeyDown:
		m.focus = (m.focus + 1) % max(1, len(m.inputs()))
		m.load()
		return m, nil
	case tea.KeyShiftTab, tea.KeyUp:
		n := max(1, len(m.inputs()))
		m.focus = (m.focus + n - 1) % n
		m.load()
		return m, nil
	case tea.KeyCtrlN:
		return m.advance()
	case tea.KeyCtrlA:
		return m.create()
	case tea.KeyEnter:
		ins := m.inputs()
		if len(ins) > 0 {
			ins[m.focus].Enter(m.input.Value())
			m.pullNotes()
		}
		if m.focus+1 < len(ins) {
			m.focus++
			m.load()
			return m, nil
		}
		return m.advance()
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// advance validates the screen and moves on, or submits on the last one.
func (m Model) advance() (tea.Model, tea.Cmd) {
	m.busy = true
	m.frozen = m.render()
	r, ctx := m.runner, m.ctx
	retry := r.Phase() == wizard.Failed
	return m, func() tea.Msg {
		if retry {
			return nextMsg{err: r.Retry(ctx)}
		}
		return nextMsg{err: r.Next(ctx)}
	}
}

// create adds the typed name to the list the screen can extend.
func (m Model) create() (tea.Model, tea.Cmd) {
	screen, ok := m.runner.Current().(engine.Creator)
	name := strings.TrimSpace(m.input.Value())
	if !ok || name == "" {
		return m, nil
	}
	m.busy = true
	m.frozen = m.render()
	ctx := m.ctx
	return m, func() tea.Msg {
		lists, err := screen.Catalog().Create(ctx, screen.Creates(), name)
		return createdMsg{screen: screen, lists: lists, err: err}
	}
}

func (m Model) View() string {
	if m.quit {
		return ""
	}
	if m.busy {
		return m.frozen + "\n" + m.styles.Muted.Render("working...") + "\n"
	}
	return m.render()
}

func (m Model) render() string {
	var b strings.Builder
	r := m.runner
	pos, total := r.Position()
	screen := r.Current()
	b.WriteString(m.styles.Title.Render(r.Flow().Title))
	b.WriteString("  ")
	b.WriteString(m.styles.Step.Render(fmt.Sprintf("step %d/%d: %s", pos+1, total, screen.Title())))
	b.WriteString("\n\n")
	for i, in := range screen.Inputs() {
		label := m.styles.Label
		marker := "  "
		if i == m.focus {
			label = m.styles.Focused
			marker = "▸ "
		}
		b.WriteString(marker + label.Render(in.Label()) + m.styles.Value.Render(in.String()) + "\n")
		if i == m.focus {
			b.WriteString("  " + m.input.View() + "\n")
			if h := hints(in.Collector, m.input.Value()); h != "" {
				b.WriteString("  " + m.styles.Muted.Render(h) + "\n")
			}
		}
	}
	if m.message != nil {
		style := m.styles.Levels[m.message.Level]
		b.WriteString("\n" + style.Render(m.message.Message) + "\n")
	}
	if r.Phase() == wizard.Failed {
		b.WriteString(m.styles.Muted.Render("submission failed; the draft is saved. ctrl+n retries.") + "\n")
	}
	help := "enter: apply • tab: next field • ctrl+n: continue • esc: back • ctrl+c: quit"
	if _, ok := screen.(engine.Creator); ok {
		help += " • ctrl+a: add typed name"
	}
	b.WriteString(m.styles.Help.Render(help))
	return b.String()
}

// hints lists the choices matching what is typed.
func hints(c field.Collector, q string) string {
	var out []string
	switch c := c.(type) {
	case *field.Select:
		for _, o := range c.Filter(q) {
			out = append(out, o.Label)
		}
	case *wizard.SelectionSet:
		for _, cand := range c.Candidates() {
			out = append(out, cand.ID+" "+cand.Label)
		}
	default:
		return ""
	}
	if len(out) > hintLimit {
		out = append(out[:hintLimit], fmt.Sprintf("(+%d)", len(out)-hintLimit))
	}
	return strings.Join(out, " · ")
}

// Run shows the flow until it is submitted or the user quits.
func Run(ctx context.Context, r *wizard.Runner, notes *notify.Recorder, opts ...tea.ProgramOption) (wizard.Phase, error) {
	final, err := tea.NewProgram(New(ctx, r, notes), opts...).Run()
	if err != nil {
		return r.Phase(), err
	}
	m, ok := final.(Model)
	if !ok {
		return r.Phase(), errors.New("unexpected model")
	}
	return m.Phase(), nil
}
