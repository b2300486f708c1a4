package wizard

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"safeplate/internal/notify"
)

var (
	ErrNothingToRetry = errors.New("no failed submission to retry")
	ErrFinished       = errors.New("wizard already finished")
)

// DefaultLanding is the screen shown after a successful submission.
const DefaultLanding = "home"

// Flow is an ordered list of screens and the mapping from the final
// fields to a submission.
type Flow struct {
	Kind     string
	Title    string
	Screens  []Screen
	Assemble func(fields Values) (*Submission, error)
}

func (f Flow) validate() error {
	if len(f.Screens) == 0 {
		return fmt.Errorf("flow %q has no screens", f.Kind)
	}
	if f.Assemble == nil {
		return fmt.Errorf("flow %q has no assembler", f.Kind)
	}
	return nil
}

// Runner drives one traversal of a flow.
type Runner struct {
	Submitter Submitter
	Notifier  notify.Notifier
	Store     DraftStore
	Logger    *zap.Logger
	Landing   string
	// OnLanding is called with Landing after a successful submission.
	OnLanding func(screen string)

	flow    Flow
	draft   *Draft
	phase   Phase
	lastErr error
}

// NewRunner starts a fresh draft on the first screen of flow.
func NewRunner(flow Flow, sub Submitter) (*Runner, error) {
	if err := flow.validate(); err != nil {
		return nil, err
	}
	r := newRunner(flow, NewDraft(flow.Kind), sub)
	r.enter(nil)
	return r, nil
}

// Resume continues a persisted draft on the screen it was left on.
// A draft whose last submission failed resumes in the Failed phase.
func Resume(flow Flow, d *Draft, sub Submitter) (*Runner, error) {
	if err := flow.validate(); err != nil {
		return nil, err
	}
	if d.Kind != flow.Kind {
		return nil, fmt.Errorf("draft %s is a %s, not a %s", d.ID, d.Kind, flow.Kind)
	}
	if d.Cursor < 0 || d.Cursor >= len(flow.Screens) {
		d.Cursor = len(flow.Screens) - 1
	}
	r := newRunner(flow, d, sub)
	for _, s := range flow.Screens {
		if v := d.Step(s.ID()); v != nil {
			s.Hydrate(v)
		}
	}
	r.enter(nil)
	if d.LastError != "" {
		r.phase = Failed
		r.lastErr = errors.New(d.LastError)
	}
	return r, nil
}

func newRunner(flow Flow, d *Draft, sub Submitter) *Runner {
	return &Runner{
		Submitter: sub,
		Notifier:  notify.Discard,
		Logger:    zap.NewNop(),
		Landing:   DefaultLanding,
		flow:      flow,
		draft:     d,
	}
}

func (r *Runner) Flow() Flow      { return r.flow }
func (r *Runner) Draft() *Draft   { return r.draft }
func (r *Runner) Phase() Phase    { return r.phase }
func (r *Runner) Err() error      { return r.lastErr }
func (r *Runner) Current() Screen { return r.flow.Screens[r.draft.Cursor] }

// Position returns the zero-based index of the current screen and the count.
func (r *Runner) Position() (int, int) { return r.draft.Cursor, len(r.flow.Screens) }

func (r *Runner) last() bool { return r.draft.Cursor == len(r.flow.Screens)-1 }

// Next validates the current screen. On success its output is merged into
// the draft and either handed to the next screen or, on the last screen,
// assembled and submitted.
func (r *Runner) Next(ctx context.Context) error {
	switch r.phase {
	case Done:
		return ErrFinished
	case Submitting:
		return fmt.Errorf("submission in progress")
	}
	s := r.Current()
	r.phase = Validating
	if err := s.Validate(); err != nil {
		r.reject(err)
		return err
	}
	r.draft.Merge(s.ID(), s.Output())
	r.phase = Forwarding
	if r.last() {
		return r.submit(ctx)
	}
	h := &Handoff{Token: uuid.NewString(), Values: r.draft.Fields()}
	r.draft.Cursor++
	r.enter(h)
	return nil
}

// Back returns to the previous screen, restoring what it produced.
func (r *Runner) Back() bool {
	if r.draft.Cursor == 0 || r.phase == Done || r.phase == Submitting {
		return false
	}
	r.draft.Cursor--
	r.enter(nil)
	return true
}

// Retry submits the draft again after a failed submission.
func (r *Runner) Retry(ctx context.Context) error {
	if r.phase != Failed {
		return ErrNothingToRetry
	}
	return r.submit(ctx)
}

// Abandon discards the draft.
func (r *Runner) Abandon(ctx context.Context) error {
	r.phase = Done
	r.Logger.Info("wizard abandoned", zap.String("kind", r.flow.Kind), zap.String("draft", r.draft.ID))
	if r.Store == nil {
		return nil
	}
	return r.Store.DeleteDraft(ctx, r.draft.ID)
}

func (r *Runner) enter(h *Handoff) {
	s := r.Current()
	r.draft.Accumulator(s.ID()).Enter(h)
	if v := r.draft.Step(s.ID()); v != nil {
		s.Hydrate(v)
	}
	r.phase = Editing
}

func (r *Runner) reject(err error) {
	r.lastErr = err
	r.phase = Editing
	r.Notifier.Notify(notify.Notification{Level: notify.Error, Title: r.Current().Title(), Message: UserMessage(err)})
}

// revalidate checks every screen against what the draft holds for it and
// moves the cursor to the first screen that fails.
func (r *Runner) revalidate() error {
	for i, s := range r.flow.Screens {
		if v := r.draft.Step(s.ID()); v != nil {
			s.Hydrate(v)
		}
		if err := s.Validate(); err != nil {
			r.draft.Cursor = i
			return err
		}
	}
	return nil
}

// finalFields is the latest hand-off received by the last screen overlaid
// with that screen's own output.
func (r *Runner) finalFields() Values {
	final := r.flow.Screens[len(r.flow.Screens)-1].ID()
	fields := Values{}
	if h, ok := r.draft.Accumulator(final).Latest(); ok {
		fields = h.Values
	}
	return fields.Merge(r.draft.Step(final))
}

func (r *Runner) submit(ctx context.Context) error {
	if err := r.revalidate(); err != nil {
		r.reject(err)
		return err
	}
	sub, err := r.flow.Assemble(r.finalFields())
	if err != nil {
		return r.fail(ctx, fmt.Errorf("assemble %s: %w", r.flow.Kind, err))
	}
	r.phase = Submitting
	if err := r.Submitter.Submit(ctx, sub); err != nil {
		return r.fail(ctx, err)
	}
	r.phase = Done
	r.lastErr = nil
	r.draft.LastError = ""
	r.Logger.Info("submission accepted",
		zap.String("kind", r.flow.Kind),
		zap.String("draft", r.draft.ID),
		zap.String("endpoint", sub.Endpoint))
	r.Notifier.Notify(notify.Notification{Level: notify.Success, Title: r.flow.Title, Message: "Saved"})
	if r.Store != nil {
		if err := r.Store.DeleteDraft(ctx, r.draft.ID); err != nil {
			r.Logger.Warn("discard draft", zap.String("draft", r.draft.ID), zap.Error(err))
		}
	}
	if r.OnLanding != nil {
		r.OnLanding(r.Landing)
	}
	return nil
}

func (r *Runner) fail(ctx context.Context, err error) error {
	r.phase = Failed
	r.lastErr = err
	r.draft.LastError = err.Error()
	r.Logger.Warn("submission failed", zap.String("kind", r.flow.Kind), zap.String("draft", r.draft.ID), zap.Error(err))
	r.Notifier.Notify(notify.Notification{Level: notify.Error, Title: r.flow.Title, Message: UserMessage(err)})
	if r.Store != nil {
		if serr := r.Store.SaveDraft(ctx, r.draft); serr != nil {
			r.Logger.Warn("persist draft", zap.String("draft", r.draft.ID), zap.Error(serr))
		}
	}
	return err
}

// UserMessage extracts the text to show for err.
func UserMessage(err error) string {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Message
	}
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	return err.Error()
}
