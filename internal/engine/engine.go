package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"safeplate/internal/config"
	"safeplate/internal/device"
	"safeplate/internal/domain"
	"safeplate/internal/events"
	"safeplate/internal/notify"
	"safeplate/internal/repo"
	"safeplate/internal/wizard"
)

// API is the subset of the SDK client used by flows.
type API interface {
	Products(ctx context.Context, userID int64) ([]domain.Product, error)
	Suppliers(ctx context.Context, userID int64) ([]domain.Supplier, error)
	CleaningZones(ctx context.Context, userID int64) ([]domain.CleaningZone, error)
	CreateProduct(ctx context.Context, name string) (domain.Product, error)
	CreateSupplier(ctx context.Context, name string) (domain.Supplier, error)
	CreateCleaningZone(ctx context.Context, name string) (domain.CleaningZone, error)
	Submit(ctx context.Context, endpoint, contentType string, body io.Reader, out any) error

	Receptions(ctx context.Context, userID int64) ([]domain.Reception, error)
	Files(ctx context.Context, userID int64) ([]domain.TrackingFile, error)
	OilControls(ctx context.Context, userID int64) ([]domain.OilControl, error)
	Temperatures(ctx context.Context, userID int64) ([]domain.TemperatureReading, error)
	TemperatureChanges(ctx context.Context, userID int64) ([]domain.TemperatureChange, error)
}

// Users yields the signed-in user.
type Users interface {
	RequireUser() (domain.SessionUser, error)
}

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	API      API
	Users    Users
	Camera   device.Camera
	Notifier notify.Notifier
	Logger   *zap.Logger
	// Open reads captured images when a submission is encoded.
	Open wizard.Opener
	Now  func() time.Time
}

func New(db *sql.DB, cfg *config.Config, api API, users Users) Engine {
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Config:   cfg,
		API:      api,
		Users:    users,
		Camera:   device.FileCamera{MaxBytes: cfg.Images.MaxBytes},
		Notifier: notify.Discard,
		Logger:   zap.NewNop(),
		Open:     wizard.OpenFile,
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e Engine) notifier() notify.Notifier {
	if e.Notifier == nil {
		return notify.Discard
	}
	return e.Notifier
}

func (e Engine) actor() string {
	if e.Users == nil {
		return ""
	}
	u, err := e.Users.RequireUser()
	if err != nil {
		return ""
	}
	return fmt.Sprint(u.ID)
}

// Start begins a new traversal of the flow named kind.
func (e Engine) Start(ctx context.Context, kind string) (*wizard.Runner, error) {
	flow, err := e.Flow(ctx, kind)
	if err != nil {
		return nil, err
	}
	r, err := wizard.NewRunner(flow, submitter{e})
	if err != nil {
		return nil, err
	}
	e.wire(r)
	return r, nil
}

// Resume reopens a persisted draft, typically to retry a failed submission.
func (e Engine) Resume(ctx context.Context, draftID string) (*wizard.Runner, error) {
	row, err := e.Repo.GetDraft(ctx, draftID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("draft %s not found", draftID)
		}
		return nil, err
	}
	d, err := wizard.UnmarshalDraft([]byte(row.Payload))
	if err != nil {
		return nil, err
	}
	flow, err := e.Flow(ctx, d.Kind)
	if err != nil {
		return nil, err
	}
	r, err := wizard.Resume(flow, d, submitter{e})
	if err != nil {
		return nil, err
	}
	e.wire(r)
	return r, nil
}

func (e Engine) wire(r *wizard.Runner) {
	r.Store = draftStore{e}
	r.Notifier = e.notifier()
	r.Logger = e.logger()
	if e.Config != nil && e.Config.Landing != "" {
		r.Landing = e.Config.Landing
	}
}

// Drafts lists persisted drafts, newest first. An empty kind lists all.
func (e Engine) Drafts(ctx context.Context, kind string) ([]domain.Draft, error) {
	return e.Repo.ListDrafts(ctx, kind)
}

// Abandon discards a persisted draft.
func (e Engine) Abandon(ctx context.Context, draftID string) error {
	row, err := e.Repo.GetDraft(ctx, draftID)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteDraft(ctx, draftID); err != nil {
		return err
	}
	return e.Events.Append(ctx, nil, events.TypeDraftAbandoned, row.Kind, row.ID, e.actor(), events.EventPayload{"step": row.Step})
}

// draftStore persists runner drafts in the local database.
type draftStore struct {
	e Engine
}

func (s draftStore) SaveDraft(ctx context.Context, d *wizard.Draft) error {
	payload, err := d.Marshal()
	if err != nil {
		return err
	}
	return s.e.Repo.UpsertDraft(ctx, domain.Draft{
		ID:        d.ID,
		Kind:      d.Kind,
		Step:      d.Cursor,
		Payload:   string(payload),
		LastError: d.LastError,
		CreatedAt: d.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: s.e.now().UTC().Format(time.RFC3339),
	})
}

func (s draftStore) DeleteDraft(ctx context.Context, id string) error {
	err := s.e.Repo.DeleteDraft(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	return err
}

// submitter encodes a submission and sends it in one API call.
type submitter struct {
	e Engine
}

func (s submitter) Submit(ctx context.Context, sub *wizard.Submission) error {
	ct, body, err := sub.Encode(s.e.Open)
	if err != nil {
		return err
	}
	actor := s.e.actor()
	if err := s.e.API.Submit(ctx, sub.Endpoint, ct, body, nil); err != nil {
		if werr := s.e.Events.Append(ctx, nil, events.TypeSubmitFailed, "submission", sub.Endpoint, actor,
			events.EventPayload{"error": err.Error()}); werr != nil {
			s.e.logger().Warn("append event", zap.Error(werr))
		}
		return err
	}
	if werr := s.e.Events.Append(ctx, nil, events.TypeSubmitted, "submission", sub.Endpoint, actor,
		events.EventPayload{"parts": len(sub.Fields), "files": len(sub.Files)}); werr != nil {
		s.e.logger().Warn("append event", zap.Error(werr))
	}
	return nil
}
