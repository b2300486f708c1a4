package engine

import (
	"strconv"

	"safeplate/internal/device"
	"safeplate/internal/field"
	"safeplate/internal/wizard"
)

// form is a step screen built from named collectors. Its output holds one
// value per input; hydration feeds stored values back through the same
// collectors so that clamping and parsing rules still apply.
type form struct {
	id     wizard.StepID
	title  string
	inputs []wizard.Input
	checks func() []wizard.Check
}

func (f *form) ID() wizard.StepID      { return f.id }
func (f *form) Title() string          { return f.title }
func (f *form) Inputs() []wizard.Input { return f.inputs }

func (f *form) Validate() error {
	if f.checks == nil {
		return nil
	}
	return wizard.RunChecks(f.id, f.checks()...)
}

func (f *form) Output() wizard.Values {
	out := wizard.Values{}
	for _, in := range f.inputs {
		if v := valueOf(in.Collector); !v.IsZero() {
			out[in.Key] = v
		}
	}
	return out
}

func (f *form) Hydrate(v wizard.Values) {
	for _, in := range f.inputs {
		if x, ok := v[in.Key]; ok && !x.IsZero() {
			load(in.Collector, x)
		}
	}
}

func valueOf(c field.Collector) wizard.Value {
	switch c := c.(type) {
	case *field.Select:
		return wizard.Text(c.Value())
	case *field.Toggle:
		return wizard.Bool(c.On())
	case *device.Photo:
		if img := c.Image(); img != nil {
			return wizard.Image(*img)
		}
		return wizard.Value{}
	case *wizard.SelectionSet:
		sel := c.Selected()
		if len(sel) == 0 {
			return wizard.Value{}
		}
		items := make([]wizard.Item, len(sel))
		for i, s := range sel {
			it := wizard.Item{"id": s.ID, "name": s.Label}
			if c.Mode() == wizard.WithQuantity {
				it["quantity"] = strconv.Itoa(s.Quantity)
			} else {
				it["comment"] = s.Comment
			}
			items[i] = it
		}
		return wizard.List(items)
	}
	if !c.Present() {
		return wizard.Value{}
	}
	return wizard.Text(c.String())
}

func load(c field.Collector, v wizard.Value) {
	switch c := c.(type) {
	case *device.Photo:
		if v.Image != nil {
			img := *v.Image
			c.Set(&img)
		}
		return
	case *wizard.SelectionSet:
		sel := make([]wizard.Selected, 0, len(v.Items))
		for _, it := range v.Items {
			q, _ := strconv.Atoi(it["quantity"])
			sel = append(sel, wizard.Selected{ID: it["id"], Quantity: q, Comment: it["comment"]})
		}
		c.Restore(sel)
		return
	}
	c.Enter(v.Text)
}
