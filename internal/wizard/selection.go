package wizard

import (
	"fmt"
	"math"
	"strings"

	"safeplate/internal/field"
)

// Candidate is an entry that can be picked in a SelectionSet.
type Candidate struct {
	ID    string
	Label string
}

// Selected is a checked candidate with its detail.
type Selected struct {
	ID       string
	Label    string
	Quantity int
	Comment  string
}

// SelectionMode decides which detail a SelectionSet collects.
type SelectionMode int

const (
	WithQuantity SelectionMode = iota
	WithComment
)

// SelectionSet tracks which candidates are checked, in check order, each
// with a quantity or a comment. Details of unchecked or unknown ids are ignored.
// Quantities move like a field.Counter: out-of-range values are dropped.
type SelectionSet struct {
	label      string
	mode       SelectionMode
	candidates []Candidate
	quantity   field.CounterConfig
	order      []string
	detail     map[string]*Selected
	OnChange   func([]Selected)
}

func NewSelectionSet(label string, mode SelectionMode, candidates []Candidate) *SelectionSet {
	return &SelectionSet{
		label:      label,
		mode:       mode,
		candidates: candidates,
		quantity:   field.CounterConfig{Label: "Quantity", Min: 0, Max: math.MaxInt32},
		detail:     map[string]*Selected{},
	}
}

// SetQuantityBounds bounds the quantities of WithQuantity items. Items
// already checked are pulled back into range.
func (s *SelectionSet) SetQuantityBounds(cfg field.CounterConfig) {
	s.quantity = cfg
	changed := false
	for _, id := range s.order {
		sel := s.detail[id]
		if q := s.counter(sel.Quantity).Value(); q != sel.Quantity {
			sel.Quantity = q
			changed = true
		}
	}
	if changed {
		s.changed()
	}
}

// QuantityBounds returns the range quantities are kept in.
func (s *SelectionSet) QuantityBounds() (lo, hi int) {
	return s.counter(0).Bounds()
}

func (s *SelectionSet) counter(initial int) *field.Counter {
	cfg := s.quantity
	cfg.Initial = initial
	return field.NewCounter(cfg, nil)
}

func (s *SelectionSet) Label() string           { return s.label }
func (s *SelectionSet) Mode() SelectionMode     { return s.mode }
func (s *SelectionSet) Candidates() []Candidate { return s.candidates }
func (s *SelectionSet) Present() bool           { return len(s.order) > 0 }

func (s *SelectionSet) IsChecked(id string) bool {
	_, ok := s.detail[id]
	return ok
}

// SetCandidates replaces the candidate list, e.g. after a re-fetch.
// Checked ids that disappeared are unchecked; labels are refreshed.
func (s *SelectionSet) SetCandidates(c []Candidate) {
	s.candidates = c
	kept := s.order[:0]
	for _, id := range s.order {
		cand, ok := s.find(id)
		if !ok {
			delete(s.detail, id)
			continue
		}
		s.detail[id].Label = cand.Label
		kept = append(kept, id)
	}
	s.order = kept
}

func (s *SelectionSet) Check(id string) {
	cand, ok := s.find(id)
	if !ok || s.IsChecked(id) {
		return
	}
	sel := &Selected{ID: id, Label: cand.Label}
	if s.mode == WithQuantity {
		sel.Quantity = s.counter(1).Value()
	}
	s.detail[id] = sel
	s.order = append(s.order, id)
	s.changed()
}

func (s *SelectionSet) Uncheck(id string) {
	if !s.IsChecked(id) {
		return
	}
	delete(s.detail, id)
	for i, x := range s.order {
		if x == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.changed()
}

func (s *SelectionSet) Toggle(id string) {
	if s.IsChecked(id) {
		s.Uncheck(id)
		return
	}
	s.Check(id)
}

// SetQuantity sets the quantity of a checked item; values outside the
// quantity bounds are ignored.
func (s *SelectionSet) SetQuantity(id string, q int) {
	s.adjustQuantity(id, func(c *field.Counter) { c.Set(q) })
}

// StepQuantity moves the quantity of a checked item one step up or down.
func (s *SelectionSet) StepQuantity(id string, up bool) {
	s.adjustQuantity(id, func(c *field.Counter) {
		if up {
			c.Increment()
		} else {
			c.Decrement()
		}
	})
}

func (s *SelectionSet) adjustQuantity(id string, apply func(*field.Counter)) {
	sel, ok := s.detail[id]
	if !ok {
		return
	}
	c := s.counter(sel.Quantity)
	apply(c)
	if c.Value() == sel.Quantity {
		return
	}
	sel.Quantity = c.Value()
	s.changed()
}

func (s *SelectionSet) SetComment(id, comment string) {
	sel, ok := s.detail[id]
	if !ok || sel.Comment == comment {
		return
	}
	sel.Comment = comment
	s.changed()
}

// Selected returns the checked items in the order they were checked.
func (s *SelectionSet) Selected() []Selected {
	out := make([]Selected, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.detail[id])
	}
	return out
}

// Restore replaces the selection, skipping unknown ids.
func (s *SelectionSet) Restore(sel []Selected) {
	s.order = nil
	s.detail = map[string]*Selected{}
	for _, x := range sel {
		cand, ok := s.find(x.ID)
		if !ok || s.IsChecked(x.ID) {
			continue
		}
		x.Label = cand.Label
		s.detail[x.ID] = &x
		s.order = append(s.order, x.ID)
	}
}

func (s *SelectionSet) String() string {
	parts := make([]string, 0, len(s.order))
	for _, sel := range s.Selected() {
		switch {
		case s.mode == WithQuantity:
			parts = append(parts, fmt.Sprintf("%s x%d", sel.Label, sel.Quantity))
		case sel.Comment != "":
			parts = append(parts, fmt.Sprintf("%s (%s)", sel.Label, sel.Comment))
		default:
			parts = append(parts, sel.Label)
		}
	}
	return strings.Join(parts, ", ")
}

// Enter accepts "id" to toggle, "id=3" to check with a quantity, "id=+" or
// "id=-" to step a checked quantity, or "id=some comment" to check with a
// comment. "-id" unchecks.
func (s *SelectionSet) Enter(raw string) {
	for _, tok := range strings.Split(raw, ";") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if strings.HasPrefix(tok, "-") {
			s.Uncheck(strings.TrimSpace(tok[1:]))
			continue
		}
		id, detail, hasDetail := strings.Cut(tok, "=")
		id = strings.TrimSpace(id)
		if !hasDetail {
			s.Toggle(id)
			continue
		}
		wasChecked := s.IsChecked(id)
		s.Check(id)
		if s.mode == WithQuantity {
			detail = strings.TrimSpace(detail)
			if (detail == "+" || detail == "-") && !wasChecked {
				continue
			}
			s.adjustQuantity(id, func(c *field.Counter) { c.Enter(detail) })
			continue
		}
		s.SetComment(id, strings.TrimSpace(detail))
	}
}

func (s *SelectionSet) find(id string) (Candidate, bool) {
	for _, c := range s.candidates {
		if c.ID == id {
			return c, true
		}
	}
	return Candidate{}, false
}

func (s *SelectionSet) changed() {
	if s.OnChange != nil {
		s.OnChange(s.Selected())
	}
}
