package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"safeplate/internal/field"
	"safeplate/internal/notify"
	"safeplate/internal/wizard"
)

type readingScreen struct {
	equipment *field.Text
	temp      *field.Decimal
}

func (s *readingScreen) ID() wizard.StepID { return "reading" }
func (s *readingScreen) Title() string     { return "Reading" }
func (s *readingScreen) Inputs() []wizard.Input {
	return []wizard.Input{{Key: "equipment", Collector: s.equipment}, {Key: "temperature", Collector: s.temp}}
}
func (s *readingScreen) Hydrate(v wizard.Values) { s.equipment.Set(v.Text("equipment")) }
func (s *readingScreen) Validate() error {
	return wizard.RunChecks(s.ID(),
		wizard.Require("Name the equipment", s.equipment.Present),
		wizard.Require("Enter the temperature", s.temp.Present))
}
func (s *readingScreen) Output() wizard.Values {
	return wizard.Values{"equipment": wizard.Text(s.equipment.String()), "temperature": wizard.Text(s.temp.String())}
}

func newRunner(t *testing.T, submit wizard.SubmitFunc) (*wizard.Runner, *notify.Recorder) {
	t.Helper()
	screen := &readingScreen{
		equipment: field.NewText(field.TextConfig{Label: "Equipment"}, nil),
		temp:      field.NewDecimal(field.DecimalConfig{Label: "Temperature", Min: -40, Max: 100, Precision: 1}, nil),
	}
	flow := wizard.Flow{
		Kind:    "reading",
		Title:   "Temperature reading",
		Screens: []wizard.Screen{screen},
		Assemble: func(f wizard.Values) (*wizard.Submission, error) {
			sub := wizard.NewSubmission("temperature/new")
			sub.Add("equipment", f.Text("equipment"))
			sub.Add("temperature", f.Text("temperature"))
			return sub, nil
		},
	}
	r, err := wizard.NewRunner(flow, submit)
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	notes := &notify.Recorder{}
	r.Notifier = notes
	return r, notes
}

func typeText(m tea.Model, s string) tea.Model {
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return m
}

// press sends a key and runs any command it returns, feeding the result back.
func press(m tea.Model, k tea.KeyType) tea.Model {
	m, cmd := m.Update(tea.KeyMsg{Type: k})
	if cmd == nil {
		return m
	}
	if msg := cmd(); msg != nil {
		if _, ok := msg.(nextMsg); ok {
			m, _ = m.Update(msg)
		}
	}
	return m
}

func TestEnterFillsFieldsAndSubmits(t *testing.T) {
	var got map[string]string
	r, _ := newRunner(t, func(_ context.Context, sub *wizard.Submission) error {
		got = sub.Map()
		return nil
	})
	var m tea.Model = New(context.Background(), r, nil)
	m = typeText(m, "Cold room")
	m = press(m, tea.KeyEnter)
	if r.Phase() != wizard.Editing {
		t.Fatalf("first enter must only move focus, phase %v", r.Phase())
	}
	m = typeText(m, "3,5")
	m = press(m, tea.KeyEnter)
	if r.Phase() != wizard.Done {
		t.Fatalf("expected submission, phase %v", r.Phase())
	}
	if got["equipment"] != "Cold room" || got["temperature"] != "3.5" {
		t.Fatalf("unexpected parts %v", got)
	}
	if l := m.(Model).Landed(); l != wizard.DefaultLanding {
		t.Fatalf("landed = %q", l)
	}
}

func TestValidationMessageIsShown(t *testing.T) {
	r, notes := newRunner(t, func(context.Context, *wizard.Submission) error { return nil })
	var m tea.Model = New(context.Background(), r, notes)
	m = press(m, tea.KeyCtrlN)
	if r.Phase() == wizard.Done {
		t.Fatalf("empty screen must not submit")
	}
	if !strings.Contains(m.View(), "Name the equipment") {
		t.Fatalf("view should show the failed check:\n%s", m.View())
	}
}

func TestFailedSubmitOffersRetry(t *testing.T) {
	fail := true
	r, notes := newRunner(t, func(context.Context, *wizard.Submission) error {
		if fail {
			return errors.New("offline")
		}
		return nil
	})
	var m tea.Model = New(context.Background(), r, notes)
	m = typeText(m, "Fryer")
	m = press(m, tea.KeyEnter)
	m = typeText(m, "4")
	m = press(m, tea.KeyEnter)
	if r.Phase() != wizard.Failed {
		t.Fatalf("expected failed phase, got %v", r.Phase())
	}
	if !strings.Contains(m.View(), "offline") {
		t.Fatalf("view should show the error:\n%s", m.View())
	}
	fail = false
	m = press(m, tea.KeyCtrlN)
	if r.Phase() != wizard.Done {
		t.Fatalf("retry should submit, got %v", r.Phase())
	}
}

func TestEscOnFirstScreenQuits(t *testing.T) {
	r, _ := newRunner(t, func(context.Context, *wizard.Submission) error { return nil })
	m := New(context.Background(), r, nil)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}
