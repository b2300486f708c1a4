package history

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

type rec struct {
	ID   int
	Date string
}

func TestByMonth(t *testing.T) {
	items := []rec{
		{1, "2024-01-20"},
		{2, "2024-03-15"},
		{3, "not a date"},
		{4, "2024-03-02 08:30:00"},
		{5, "2024-03-28T10:00:00Z"},
		{6, "2023-12-31"},
	}
	got := ByMonth(items, func(r rec) string { return r.Date })
	want := []Group[rec]{
		{Key: "2024-03", Items: []rec{{5, "2024-03-28T10:00:00Z"}, {2, "2024-03-15"}, {4, "2024-03-02 08:30:00"}}},
		{Key: "2024-01", Items: []rec{{1, "2024-01-20"}}},
		{Key: "2023-12", Items: []rec{{6, "2023-12-31"}}},
		{Key: Unknown, Items: []rec{{3, "not a date"}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("groups mismatch (-want +got):\n%s", diff)
	}
}

func TestMonthKey(t *testing.T) {
	assert.Equal(t, "2024-03", MonthKey("2024-03-15"))
	assert.Equal(t, Unknown, MonthKey(""))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "March 2024", Group[rec]{Key: "2024-03"}.Label())
	assert.Equal(t, "Unknown date", Group[rec]{Key: Unknown}.Label())
}

func TestByMonthEmpty(t *testing.T) {
	assert.Empty(t, ByMonth(nil, func(r rec) string { return r.Date }))
}
