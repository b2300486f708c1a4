package wizard

// Handoff is what a step passes to the next one when it forwards.
type Handoff struct {
	Token  string `json:"token"`
	Values Values `json:"values"`
}

// Accumulator collects the hand-offs a step received, in arrival order.
//
// Entering with a nil hand-off is a no-op. Re-delivering the hand-off that
// was received last (same token) replaces it rather than appending, so a
// screen that is shown again without a new forward does not grow the list.
// Distinct hand-offs are never deduplicated, even when their values match.
type Accumulator struct {
	Entries []Handoff `json:"entries"`
}

// Enter records h and reports whether the list changed.
func (a *Accumulator) Enter(h *Handoff) bool {
	if h == nil {
		return false
	}
	entry := Handoff{Token: h.Token, Values: h.Values.Clone()}
	if n := len(a.Entries); n > 0 && h.Token != "" && a.Entries[n-1].Token == h.Token {
		a.Entries[n-1] = entry
		return true
	}
	a.Entries = append(a.Entries, entry)
	return true
}

func (a *Accumulator) Len() int { return len(a.Entries) }

// Latest returns the most recent hand-off.
func (a *Accumulator) Latest() (Handoff, bool) {
	if len(a.Entries) == 0 {
		return Handoff{}, false
	}
	return a.Entries[len(a.Entries)-1], true
}
