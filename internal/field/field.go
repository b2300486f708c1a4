// Package field holds the input widgets that step screens are built from.
// A collector owns only its own value: it clamps or ignores bad input and
// reports every accepted change through its OnChange callback, synchronously.
// Cross-field rules belong to the step, never to a collector.
package field

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Collector is the common surface used to render and drive any widget.
type Collector interface {
	Label() string
	// String renders the current value; empty when unset.
	String() string
	// Enter applies raw user input. Input that cannot be parsed is ignored.
	Enter(raw string)
	// Present reports whether a value has been entered.
	Present() bool
}

// CounterConfig configures a Counter.
type CounterConfig struct {
	Label   string
	Min     int
	Max     int
	Step    int
	Initial int
}

// Counter is an integer stepper bounded to [Min,Max].
type Counter struct {
	cfg      CounterConfig
	value    int
	touched  bool
	OnChange func(int)
}

func NewCounter(cfg CounterConfig, onChange func(int)) *Counter {
	if cfg.Step <= 0 {
		cfg.Step = 1
	}
	if cfg.Max < cfg.Min {
		cfg.Max = cfg.Min
	}
	c := &Counter{cfg: cfg, OnChange: onChange}
	c.value = clampInt(cfg.Initial, cfg.Min, cfg.Max)
	return c
}

func (c *Counter) Label() string  { return c.cfg.Label }
func (c *Counter) Value() int     { return c.value }
func (c *Counter) Present() bool  { return c.touched }
func (c *Counter) String() string { return strconv.Itoa(c.value) }
func (c *Counter) Increment()     { c.Set(c.value + c.cfg.Step) }
func (c *Counter) Decrement()     { c.Set(c.value - c.cfg.Step) }

// Bounds returns the normalized [Min,Max] range.
func (c *Counter) Bounds() (lo, hi int) {
	return c.cfg.Min, c.cfg.Max
}

// Set applies v if it lies within bounds; out-of-range requests are dropped.
func (c *Counter) Set(v int) {
	if v < c.cfg.Min || v > c.cfg.Max {
		return
	}
	c.touched = true
	if v == c.value {
		return
	}
	c.value = v
	if c.OnChange != nil {
		c.OnChange(v)
	}
}

func (c *Counter) Enter(raw string) {
	switch strings.TrimSpace(raw) {
	case "+":
		c.Increment()
		return
	case "-":
		c.Decrement()
		return
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return
	}
	c.Set(v)
}

// DecimalConfig configures a Decimal.
type DecimalConfig struct {
	Label     string
	Min       float64
	Max       float64
	Precision int
}

// Decimal holds a bounded floating point reading (temperature, polarity).
type Decimal struct {
	cfg      DecimalConfig
	value    float64
	set      bool
	OnChange func(float64)
}

func NewDecimal(cfg DecimalConfig, onChange func(float64)) *Decimal {
	if cfg.Max < cfg.Min {
		cfg.Max = cfg.Min
	}
	return &Decimal{cfg: cfg, OnChange: onChange}
}

func (d *Decimal) Label() string  { return d.cfg.Label }
func (d *Decimal) Present() bool  { return d.set }
func (d *Decimal) Value() float64 { return d.value }

func (d *Decimal) String() string {
	if !d.set {
		return ""
	}
	return strconv.FormatFloat(d.value, 'f', d.cfg.Precision, 64)
}

// Set rounds v to the configured precision and drops it when out of range.
func (d *Decimal) Set(v float64) {
	if math.IsNaN(v) || v < d.cfg.Min || v > d.cfg.Max {
		return
	}
	p := math.Pow(10, float64(d.cfg.Precision))
	v = math.Round(v*p) / p
	if d.set && v == d.value {
		return
	}
	d.value, d.set = v, true
	if d.OnChange != nil {
		d.OnChange(v)
	}
}

func (d *Decimal) Clear() { d.value, d.set = 0, false }

func (d *Decimal) Enter(raw string) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	if raw == "" {
		return
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return
	}
	d.Set(v)
}

// TextConfig configures a Text.
type TextConfig struct {
	Label       string
	Placeholder string
	MaxLen      int
}

type Text struct {
	cfg      TextConfig
	value    string
	OnChange func(string)
}

func NewText(cfg TextConfig, onChange func(string)) *Text {
	return &Text{cfg: cfg, OnChange: onChange}
}

func (t *Text) Label() string       { return t.cfg.Label }
func (t *Text) Placeholder() string { return t.cfg.Placeholder }
func (t *Text) Value() string       { return t.value }
func (t *Text) String() string      { return t.value }
func (t *Text) Present() bool       { return strings.TrimSpace(t.value) != "" }

// Set truncates to MaxLen runes.
func (t *Text) Set(v string) {
	if t.cfg.MaxLen > 0 {
		if r := []rune(v); len(r) > t.cfg.MaxLen {
			v = string(r[:t.cfg.MaxLen])
		}
	}
	if v == t.value {
		return
	}
	t.value = v
	if t.OnChange != nil {
		t.OnChange(v)
	}
}

func (t *Text) Enter(raw string) { t.Set(raw) }

// DateConfig configures a Date or a Time collector.
type DateConfig struct {
	Label   string
	Layout  string
	Initial time.Time
}

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Date holds a calendar date or a time of day, depending on its layout.
type Date struct {
	cfg      DateConfig
	value    time.Time
	set      bool
	OnChange func(time.Time)
}

// NewDate builds a date picker; the layout defaults to DateLayout.
func NewDate(cfg DateConfig, onChange func(time.Time)) *Date {
	if cfg.Layout == "" {
		cfg.Layout = DateLayout
	}
	d := &Date{cfg: cfg, OnChange: onChange}
	if !cfg.Initial.IsZero() {
		d.value, d.set = cfg.Initial, true
	}
	return d
}

// NewTime builds a time-of-day picker.
func NewTime(cfg DateConfig, onChange func(time.Time)) *Date {
	if cfg.Layout == "" {
		cfg.Layout = TimeLayout
	}
	return NewDate(cfg, onChange)
}

func (d *Date) Label() string    { return d.cfg.Label }
func (d *Date) Present() bool    { return d.set }
func (d *Date) Value() time.Time { return d.value }

func (d *Date) String() string {
	if !d.set {
		return ""
	}
	return d.value.Format(d.cfg.Layout)
}

func (d *Date) Set(v time.Time) {
	if d.set && v.Equal(d.value) {
		return
	}
	d.value, d.set = v, true
	if d.OnChange != nil {
		d.OnChange(v)
	}
}

func (d *Date) Enter(raw string) {
	v, err := time.Parse(d.cfg.Layout, strings.TrimSpace(raw))
	if err != nil {
		return
	}
	d.Set(v)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
