package wizard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StepID names a step within a flow, e.g. "reception.metadata".
type StepID string

// Draft is the state of one traversal of a wizard. Step outputs are kept
// per step so that a revisited step can restore what was entered.
type Draft struct {
	ID        string                  `json:"id"`
	Kind      string                  `json:"kind"`
	Steps     map[StepID]Values       `json:"steps"`
	Order     []StepID                `json:"order"`
	Inbox     map[StepID]*Accumulator `json:"inbox"`
	Cursor    int                     `json:"cursor"`
	LastError string                  `json:"last_error,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
}

// NewDraft starts an empty draft for a flow kind.
func NewDraft(kind string) *Draft {
	return &Draft{
		ID:        uuid.NewString(),
		Kind:      kind,
		Steps:     map[StepID]Values{},
		Inbox:     map[StepID]*Accumulator{},
		CreatedAt: time.Now().UTC(),
	}
}

// Merge stores a completed step's output, replacing any earlier output of
// the same step.
func (d *Draft) Merge(step StepID, out Values) {
	if d.Steps == nil {
		d.Steps = map[StepID]Values{}
	}
	if _, seen := d.Steps[step]; !seen {
		d.Order = append(d.Order, step)
	}
	d.Steps[step] = out.Clone()
}

// Step returns what step produced last time, or nil.
func (d *Draft) Step(step StepID) Values {
	if v, ok := d.Steps[step]; ok {
		return v.Clone()
	}
	return nil
}

// Fields flattens every completed step in completion order.
func (d *Draft) Fields() Values {
	out := Values{}
	for _, id := range d.Order {
		out = out.Merge(d.Steps[id])
	}
	return out
}

// Accumulator returns the inbox of a step, creating it on first use.
func (d *Draft) Accumulator(step StepID) *Accumulator {
	if d.Inbox == nil {
		d.Inbox = map[StepID]*Accumulator{}
	}
	a, ok := d.Inbox[step]
	if !ok {
		a = &Accumulator{}
		d.Inbox[step] = a
	}
	return a
}

func (d *Draft) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

// UnmarshalDraft restores a draft persisted with Marshal.
func UnmarshalDraft(data []byte) (*Draft, error) {
	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	if d.ID == "" {
		return nil, fmt.Errorf("decode draft: missing id")
	}
	if d.Steps == nil {
		d.Steps = map[StepID]Values{}
	}
	if d.Inbox == nil {
		d.Inbox = map[StepID]*Accumulator{}
	}
	return &d, nil
}

// DraftStore persists drafts that must survive the process, typically
// after a failed submission.
type DraftStore interface {
	SaveDraft(ctx context.Context, d *Draft) error
	DeleteDraft(ctx context.Context, id string) error
}
