package field

import "strings"

type Option struct {
	Value string
	Label string
}

// SelectConfig configures a Select.
type SelectConfig struct {
	Label       string
	Placeholder string
	Options     []Option
}

// Select is a searchable single choice.
type Select struct {
	cfg      SelectConfig
	value    string
	OnChange func(string)
}

func NewSelect(cfg SelectConfig, onChange func(string)) *Select {
	return &Select{cfg: cfg, OnChange: onChange}
}

func (s *Select) Label() string     { return s.cfg.Label }
func (s *Select) Value() string     { return s.value }
func (s *Select) Present() bool     { return s.value != "" }
func (s *Select) Options() []Option { return s.cfg.Options }

func (s *Select) String() string {
	for _, o := range s.cfg.Options {
		if o.Value == s.value {
			return o.Label
		}
	}
	return s.value
}

// SetOptions replaces the candidates. A current choice that disappeared is cleared.
func (s *Select) SetOptions(opts []Option) {
	s.cfg.Options = opts
	if s.value != "" && !s.has(s.value) {
		s.value = ""
		if s.OnChange != nil {
			s.OnChange("")
		}
	}
}

// Filter returns options whose label contains q, case-insensitively.
func (s *Select) Filter(q string) []Option {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return s.cfg.Options
	}
	var out []Option
	for _, o := range s.cfg.Options {
		if strings.Contains(strings.ToLower(o.Label), q) {
			out = append(out, o)
		}
	}
	return out
}

// Choose selects value; unknown values are ignored.
func (s *Select) Choose(value string) {
	if !s.has(value) || value == s.value {
		return
	}
	s.value = value
	if s.OnChange != nil {
		s.OnChange(value)
	}
}

// Enter accepts an option value, or a query matching exactly one label.
func (s *Select) Enter(raw string) {
	raw = strings.TrimSpace(raw)
	if s.has(raw) {
		s.Choose(raw)
		return
	}
	if m := s.Filter(raw); len(m) == 1 {
		s.Choose(m[0].Value)
		return
	}
	for _, o := range s.cfg.Options {
		if strings.EqualFold(o.Label, raw) {
			s.Choose(o.Value)
			return
		}
	}
}

func (s *Select) has(value string) bool {
	for _, o := range s.cfg.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// Toggle is a yes/no switch.
type Toggle struct {
	label    string
	on       bool
	OnChange func(bool)
}

func NewToggle(label string, initial bool, onChange func(bool)) *Toggle {
	return &Toggle{label: label, on: initial, OnChange: onChange}
}

func (t *Toggle) Label() string { return t.label }
func (t *Toggle) On() bool      { return t.on }
func (t *Toggle) Present() bool { return true }

func (t *Toggle) String() string {
	if t.on {
		return "yes"
	}
	return "no"
}

func (t *Toggle) Set(on bool) {
	if on == t.on {
		return
	}
	t.on = on
	if t.OnChange != nil {
		t.OnChange(on)
	}
}

func (t *Toggle) Enter(raw string) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "y", "yes", "true", "1", "oui", "on":
		t.Set(true)
	case "n", "no", "false", "0", "non", "off":
		t.Set(false)
	}
}
