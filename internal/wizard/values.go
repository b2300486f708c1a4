package wizard

import (
	"strconv"

	"safeplate/internal/domain"
)

// Item is one element of a list field, e.g. {"product_id":"1","quantity":"2"}.
type Item map[string]string

// Value is one named output of a step. Exactly one of Text, Items or Image
// carries the value; the zero Value means absent.
type Value struct {
	Text  string                `json:"text,omitempty"`
	Items []Item                `json:"items,omitempty"`
	Image *domain.CapturedImage `json:"image,omitempty"`
}

func Text(s string) Value { return Value{Text: s} }
func Int(n int) Value     { return Value{Text: strconv.Itoa(n)} }
func Int64(n int64) Value { return Value{Text: strconv.FormatInt(n, 10)} }

// Float formats f with prec decimals, trimming nothing.
func Float(f float64, prec int) Value { return Value{Text: strconv.FormatFloat(f, 'f', prec, 64)} }

func Bool(b bool) Value { return Value{Text: strconv.FormatBool(b)} }

func List(items []Item) Value { return Value{Items: items} }

func Image(img domain.CapturedImage) Value { return Value{Image: &img} }

// IsZero reports whether v carries nothing.
func (v Value) IsZero() bool {
	return v.Text == "" && len(v.Items) == 0 && v.Image == nil
}

func (v Value) clone() Value {
	out := Value{Text: v.Text}
	if v.Image != nil {
		img := *v.Image
		out.Image = &img
	}
	if v.Items != nil {
		out.Items = make([]Item, len(v.Items))
		for i, it := range v.Items {
			cp := make(Item, len(it))
			for k, s := range it {
				cp[k] = s
			}
			out.Items[i] = cp
		}
	}
	return out
}

// Values maps field names to values.
type Values map[string]Value

func (v Values) Has(key string) bool { return !v[key].IsZero() }

func (v Values) Text(key string) string { return v[key].Text }

func (v Values) Items(key string) []Item { return v[key].Items }

func (v Values) Image(key string) *domain.CapturedImage { return v[key].Image }

// Bool reads a value written with Bool.
func (v Values) Bool(key string) bool {
	b, _ := strconv.ParseBool(v[key].Text)
	return b
}

// Clone returns a deep copy. Zero values are dropped.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, x := range v {
		if x.IsZero() {
			continue
		}
		out[k] = x.clone()
	}
	return out
}

// Merge returns a new map holding v overlaid with other. A zero value in
// other removes the key.
func (v Values) Merge(other Values) Values {
	out := v.Clone()
	for k, x := range other {
		if x.IsZero() {
			delete(out, k)
			continue
		}
		out[k] = x.clone()
	}
	return out
}
