// Package history groups dated records by calendar month for the history screens.
package history

import (
	"sort"
	"strings"
	"time"
)

// Unknown is the key of the group holding records whose date cannot be parsed.
const Unknown = "unknown"

var layouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

// ParseDate accepts the date formats the API emits.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// MonthKey returns "YYYY-MM" for a date string, or Unknown.
func MonthKey(s string) string {
	t, ok := ParseDate(s)
	if !ok {
		return Unknown
	}
	return t.Format("2006-01")
}

// Group is one month of records, newest first.
type Group[T any] struct {
	Key   string
	Items []T
}

// Label renders a group key for display, e.g. "March 2024".
func (g Group[T]) Label() string {
	if g.Key == Unknown {
		return "Unknown date"
	}
	t, err := time.Parse("2006-01", g.Key)
	if err != nil {
		return g.Key
	}
	return t.Format("January 2006")
}

// ByMonth groups items by the month of date(item). Months are sorted
// newest first and items within a month by date, newest first. Items
// with an unparseable date end up in a trailing Unknown group, in input order.
func ByMonth[T any](items []T, date func(T) string) []Group[T] {
	type dated struct {
		item T
		at   time.Time
	}
	buckets := map[string][]dated{}
	var unknown []T
	for _, it := range items {
		at, ok := ParseDate(date(it))
		if !ok {
			unknown = append(unknown, it)
			continue
		}
		key := at.Format("2006-01")
		buckets[key] = append(buckets[key], dated{item: it, at: at})
	}
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	out := make([]Group[T], 0, len(keys)+1)
	for _, k := range keys {
		b := buckets[k]
		sort.SliceStable(b, func(i, j int) bool { return b[i].at.After(b[j].at) })
		g := Group[T]{Key: k, Items: make([]T, len(b))}
		for i, d := range b {
			g.Items[i] = d.item
		}
		out = append(out, g)
	}
	if len(unknown) > 0 {
		out = append(out, Group[T]{Key: Unknown, Items: unknown})
	}
	return out
}
