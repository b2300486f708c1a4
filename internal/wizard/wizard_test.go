package wizard

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safeplate/internal/domain"
	"safeplate/internal/field"
	"safeplate/internal/notify"
)

type fakeScreen struct {
	id     StepID
	vals   Values
	checks func(Values) []Check
}

func newFake(id StepID, checks func(Values) []Check) *fakeScreen {
	return &fakeScreen{id: id, vals: Values{}, checks: checks}
}

func (f *fakeScreen) ID() StepID      { return f.id }
func (f *fakeScreen) Title() string   { return string(f.id) }
func (f *fakeScreen) Inputs() []Input { return nil }
func (f *fakeScreen) Output() Values  { return f.vals.Clone() }

func (f *fakeScreen) Hydrate(v Values) {
	for k, x := range v {
		f.vals[k] = x
	}
}

func (f *fakeScreen) Validate() error {
	if f.checks == nil {
		return nil
	}
	return RunChecks(f.id, f.checks(f.vals)...)
}

type memStore struct {
	saved   map[string][]byte
	deleted []string
}

func (m *memStore) SaveDraft(_ context.Context, d *Draft) error {
	b, err := d.Marshal()
	if err != nil {
		return err
	}
	if m.saved == nil {
		m.saved = map[string][]byte{}
	}
	m.saved[d.ID] = b
	return nil
}

func (m *memStore) DeleteDraft(_ context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.saved, id)
	return nil
}

func twoStepFlow() (Flow, *fakeScreen, *fakeScreen) {
	a := newFake("t.first", func(v Values) []Check {
		return []Check{Require("name required", func() bool { return v.Has("name") })}
	})
	b := newFake("t.second", nil)
	flow := Flow{
		Kind:    "test",
		Title:   "Test",
		Screens: []Screen{a, b},
		Assemble: func(f Values) (*Submission, error) {
			s := NewSubmission("/test/new")
			s.Add("name", f.Text("name"))
			s.AddIfSet("note", f.Text("note"))
			return s, nil
		},
	}
	return flow, a, b
}

func TestAccumulatorNilIsNoop(t *testing.T) {
	var a Accumulator
	assert.False(t, a.Enter(nil))
	assert.Equal(t, 0, a.Len())

	h := &Handoff{Token: "t1", Values: Values{"x": Text("1")}}
	assert.True(t, a.Enter(h))
	assert.False(t, a.Enter(nil))
	assert.Equal(t, 1, a.Len())

	// same hand-off delivered again replaces
	a.Enter(&Handoff{Token: "t1", Values: Values{"x": Text("2")}})
	assert.Equal(t, 1, a.Len())
	latest, ok := a.Latest()
	require.True(t, ok)
	assert.Equal(t, "2", latest.Values.Text("x"))

	// a new hand-off with identical values still appends
	a.Enter(&Handoff{Token: "t2", Values: Values{"x": Text("2")}})
	assert.Equal(t, 2, a.Len())
}

func TestValuesMergeRemovesZero(t *testing.T) {
	base := Values{"a": Text("1"), "b": Text("2")}
	got := base.Merge(Values{"b": {}, "c": Int(3)})
	assert.Equal(t, Values{"a": Text("1"), "c": Text("3")}, got)
	assert.Equal(t, "2", base.Text("b"), "merge must not mutate the receiver")
}

func TestRunChecksStopsAtFirstFailure(t *testing.T) {
	var evaluated []string
	check := func(name string, ok bool) Check {
		return Require(name, func() bool {
			evaluated = append(evaluated, name)
			return ok
		})
	}
	err := RunChecks("s", check("date", true), check("reference", false), check("supplier", false))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "reference", ve.Message)
	assert.Equal(t, []string{"date", "reference"}, evaluated)
}

func TestSelectionSet(t *testing.T) {
	s := NewSelectionSet("Products", WithQuantity, []Candidate{{ID: "1", Label: "Lait"}, {ID: "2", Label: "Beurre"}})
	s.SetQuantity("1", 4) // unchecked, ignored
	s.Check("9")          // unknown, ignored
	s.Check("2")
	s.Check("1")
	s.SetQuantity("1", 3)
	s.Enter("2=5")
	want := []Selected{{ID: "2", Label: "Beurre", Quantity: 5}, {ID: "1", Label: "Lait", Quantity: 3}}
	if diff := cmp.Diff(want, s.Selected()); diff != "" {
		t.Fatalf("selected mismatch (-want +got):\n%s", diff)
	}

	s.Toggle("2")
	assert.False(t, s.IsChecked("2"))
	s.SetCandidates([]Candidate{{ID: "2", Label: "Beurre"}})
	assert.Empty(t, s.Selected())
}

func TestRequiredTextIsAStepCheck(t *testing.T) {
	ref := field.NewText(field.TextConfig{Label: "Reference", MaxLen: 10}, nil)
	ref.Enter("  ")
	err := RunChecks("s", Require("Enter the reference", ref.Present))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Enter the reference", ve.Message)

	ref.Enter("BL-9")
	assert.NoError(t, RunChecks("s", Require("Enter the reference", ref.Present)))
}

func TestSelectionSetBoundedQuantity(t *testing.T) {
	s := NewSelectionSet("Products", WithQuantity, []Candidate{{ID: "1", Label: "Lait"}, {ID: "2", Label: "Beurre"}})
	s.Enter("1=40")
	s.SetQuantityBounds(field.CounterConfig{Min: 1, Max: 10})
	lo, hi := s.QuantityBounds()
	assert.Equal(t, [2]int{1, 10}, [2]int{lo, hi})
	assert.Equal(t, 10, s.Selected()[0].Quantity, "checked items are pulled into range")

	var changes int
	s.OnChange = func([]Selected) { changes++ }
	s.SetQuantity("1", 11) // above max, ignored
	s.Enter("1=0")         // below min, ignored
	s.Enter("1=+")         // already at max
	assert.Equal(t, 10, s.Selected()[0].Quantity)
	assert.Zero(t, changes)

	s.Enter("1=-; 1=-")
	s.StepQuantity("1", true)
	assert.Equal(t, 9, s.Selected()[0].Quantity)

	s.Enter("2=+") // checks at the first quantity, no step
	want := []Selected{{ID: "1", Label: "Lait", Quantity: 9}, {ID: "2", Label: "Beurre", Quantity: 1}}
	if diff := cmp.Diff(want, s.Selected()); diff != "" {
		t.Fatalf("selected mismatch (-want +got):\n%s", diff)
	}
}

func TestRunnerForwardsAndHydratesOnBack(t *testing.T) {
	flow, a, b := twoStepFlow()
	r, err := NewRunner(flow, SubmitFunc(func(context.Context, *Submission) error { return nil }))
	require.NoError(t, err)
	assert.Equal(t, Editing, r.Phase())

	a.vals["name"] = Text("REF1")
	require.NoError(t, r.Next(context.Background()))
	assert.Equal(t, b, r.Current())
	assert.Equal(t, 1, r.Draft().Accumulator(b.ID()).Len())

	// the first screen lost its local state; going back restores it
	a.vals = Values{}
	require.True(t, r.Back())
	assert.Equal(t, "REF1", a.vals.Text("name"))
	assert.Equal(t, 0, r.Draft().Accumulator(a.ID()).Len(), "re-entry without a hand-off must not append")

	a.vals["name"] = Text("REF2")
	require.NoError(t, r.Next(context.Background()))
	acc := r.Draft().Accumulator(b.ID())
	assert.Equal(t, 2, acc.Len())
	latest, _ := acc.Latest()
	assert.Equal(t, "REF2", latest.Values.Text("name"))
}

func TestRunnerValidationBlocksForwarding(t *testing.T) {
	flow, _, _ := twoStepFlow()
	rec := &notify.Recorder{}
	r, err := NewRunner(flow, nil)
	require.NoError(t, err)
	r.Notifier = rec

	err = r.Next(context.Background())
	assert.True(t, IsValidation(err))
	pos, _ := r.Position()
	assert.Equal(t, 0, pos)
	assert.Equal(t, Editing, r.Phase())
	last, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, notify.Error, last.Level)
	assert.Equal(t, "name required", last.Message)
}

func TestFailedSubmitKeepsDraftForRetry(t *testing.T) {
	flow, a, b := twoStepFlow()
	calls := 0
	var got *Submission
	sub := SubmitFunc(func(_ context.Context, s *Submission) error {
		calls++
		if calls == 1 {
			return errors.New("network down")
		}
		got = s
		return nil
	})
	store := &memStore{}
	var landed string
	r, err := NewRunner(flow, sub)
	require.NoError(t, err)
	r.Store = store
	r.OnLanding = func(s string) { landed = s }

	a.vals["name"] = Text("REF1")
	require.NoError(t, r.Next(context.Background()))
	b.vals["note"] = Text("ok")
	require.Error(t, r.Next(context.Background()))
	assert.Equal(t, Failed, r.Phase())
	require.Contains(t, store.saved, r.Draft().ID)

	// resume from the persisted copy, as a later process would
	d, err := UnmarshalDraft(store.saved[r.Draft().ID])
	require.NoError(t, err)
	a.vals, b.vals = Values{}, Values{}
	r2, err := Resume(flow, d, sub)
	require.NoError(t, err)
	r2.Store = store
	r2.OnLanding = func(s string) { landed = s }
	assert.Equal(t, Failed, r2.Phase())

	require.NoError(t, r2.Retry(context.Background()))
	assert.Equal(t, Done, r2.Phase())
	assert.Equal(t, 2, calls)
	assert.Equal(t, map[string]string{"name": "REF1", "note": "ok"}, got.Map())
	assert.Equal(t, DefaultLanding, landed)
	assert.Contains(t, store.deleted, d.ID)
	assert.ErrorIs(t, r2.Retry(context.Background()), ErrNothingToRetry)
}

func TestSubmitRevalidatesEarlierSteps(t *testing.T) {
	flow, a, _ := twoStepFlow()
	called := false
	r, err := NewRunner(flow, SubmitFunc(func(context.Context, *Submission) error {
		called = true
		return nil
	}))
	require.NoError(t, err)
	a.vals["name"] = Text("x")
	require.NoError(t, r.Next(context.Background()))
	// corrupt the stored output of the first step
	r.Draft().Steps[a.ID()] = Values{}
	a.vals = Values{}

	err = r.Next(context.Background())
	assert.True(t, IsValidation(err))
	assert.False(t, called)
	assert.Equal(t, a, r.Current())
}

func TestSubmissionEncode(t *testing.T) {
	s := NewSubmission("/reception/new")
	s.Add("reference", "REF1")
	s.AddList("products", []Item{{"product_id": "1", "quantity": "2"}}, "product_id", "quantity")
	now := time.Unix(1700000000, 0)
	s.AddImage("image", &domain.CapturedImage{URI: "mem://photo", Name: "IMG_1.PNG", MimeType: "image/png"}, "reception", now)
	s.AddImage("other", nil, "x", now)

	ct, body, err := s.Encode(func(uri string) (io.ReadCloser, error) {
		assert.Equal(t, "mem://photo", uri)
		return io.NopCloser(strings.NewReader("PNGDATA")), nil
	})
	require.NoError(t, err)
	_, params, err := mime.ParseMediaType(ct)
	require.NoError(t, err)

	form, err := multipart.NewReader(body, params["boundary"]).ReadForm(1 << 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"REF1"}, form.Value["reference"])
	assert.Equal(t, []string{"1"}, form.Value["products[0][product_id]"])
	assert.Equal(t, []string{"2"}, form.Value["products[0][quantity]"])
	require.Len(t, form.File["image"], 1)
	assert.Regexp(t, regexp.MustCompile(`^reception_1700000000_[0-9a-f]{8}\.png$`), form.File["image"][0].Filename)
	assert.Empty(t, form.File["other"])
}

func TestStateUpdateIsSerialized(t *testing.T) {
	s := NewState(0)
	var seen int
	var mu sync.Mutex
	s.Subscribe(func(int) {
		mu.Lock()
		seen++
		mu.Unlock()
	})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update(func(n int) int { return n + 1 })
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, s.Get())
	assert.Equal(t, 50, seen)
}
