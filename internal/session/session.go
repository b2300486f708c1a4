// Package session owns the authenticated user: it logs in, registers and
// logs out against the API, and keeps the session in secure storage so it
// survives restarts.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"safeplate/internal/domain"
	"safeplate/internal/events"
	"safeplate/internal/securestore"
	sdk "safeplate/sdk/go"
)

// StorageKey is the secure storage entry holding the serialized session.
const StorageKey = "user"

// API is the part of the SDK the session needs.
type API interface {
	Login(ctx context.Context, email, password string) (domain.SessionUser, error)
	Register(ctx context.Context, req sdk.RegisterRequest) (domain.SessionUser, error)
	Logout(ctx context.Context) error
}

// Manager is safe for concurrent use. Its Token method is the token
// source of the SDK's signing transport.
type Manager struct {
	API    API
	Store  securestore.Store
	Events events.Writer
	Logger *zap.Logger

	mu      sync.RWMutex
	user    *domain.SessionUser
	lastErr string
}

func New(api API, store securestore.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{API: api, Store: store, Logger: logger}
}

// User returns the current user, or nil when logged out.
func (m *Manager) User() *domain.SessionUser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// Token implements the SDK token source.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return ""
	}
	return m.user.Token
}

// LastError is the message of the last failed login or registration.
func (m *Manager) LastError() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Restore loads a persisted session. A missing entry is not an error; an
// unreadable one is discarded.
func (m *Manager) Restore(ctx context.Context) error {
	data, err := m.Store.Get(ctx, StorageKey)
	if errors.Is(err, securestore.ErrNotFound) {
		return nil
	}
	if err != nil {
		if errors.Is(err, securestore.ErrTampered) {
			m.Logger.Warn("discarding unreadable session", zap.Error(err))
			return m.Store.Delete(ctx, StorageKey)
		}
		return fmt.Errorf("read session: %w", err)
	}
	var u domain.SessionUser
	if err := json.Unmarshal(data, &u); err != nil || u.Token == "" {
		m.Logger.Warn("discarding malformed session")
		return m.Store.Delete(ctx, StorageKey)
	}
	m.mu.Lock()
	m.user = &u
	m.mu.Unlock()
	m.Logger.Debug("session restored", zap.Int64("user_id", u.ID))
	return nil
}

func (m *Manager) Login(ctx context.Context, email, password string) error {
	u, err := m.API.Login(ctx, email, password)
	if err != nil {
		m.setError(err)
		return err
	}
	return m.establish(ctx, u, events.TypeLogin)
}

// RegisterOptions are the fields of the registration form.
type RegisterOptions struct {
	Name                 string
	Email                string
	Password             string
	PasswordConfirmation string
}

func (m *Manager) Register(ctx context.Context, opts RegisterOptions) error {
	if opts.Password != opts.PasswordConfirmation {
		err := errors.New("passwords do not match")
		m.setError(err)
		return err
	}
	u, err := m.API.Register(ctx, sdk.RegisterRequest{
		Name:                 opts.Name,
		Email:                opts.Email,
		Password:             opts.Password,
		PasswordConfirmation: opts.PasswordConfirmation,
	})
	if err != nil {
		m.setError(err)
		return err
	}
	return m.establish(ctx, u, events.TypeRegister)
}

// Logout revokes the token remotely, then clears the session locally
// whatever the remote outcome. The remote error, if any, is returned after
// local state is gone.
func (m *Manager) Logout(ctx context.Context) error {
	u := m.User()
	var remoteErr error
	if u != nil {
		remoteErr = m.API.Logout(ctx)
		if remoteErr != nil {
			m.Logger.Warn("remote logout failed", zap.Error(remoteErr))
		}
	}
	m.mu.Lock()
	m.user = nil
	m.lastErr = ""
	m.mu.Unlock()
	if err := m.Store.Delete(ctx, StorageKey); err != nil && !errors.Is(err, securestore.ErrNotFound) {
		return fmt.Errorf("clear session: %w", err)
	}
	if u != nil {
		m.appendEvent(ctx, events.TypeLogout, *u, events.EventPayload{"remote_ok": remoteErr == nil})
	}
	return remoteErr
}

func (m *Manager) establish(ctx context.Context, u domain.SessionUser, evt string) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if err := m.Store.Set(ctx, StorageKey, data); err != nil {
		m.setError(err)
		return fmt.Errorf("persist session: %w", err)
	}
	m.mu.Lock()
	m.user = &u
	m.lastErr = ""
	m.mu.Unlock()
	m.Logger.Info("session established", zap.Int64("user_id", u.ID), zap.String("email", u.Email))
	m.appendEvent(ctx, evt, u, events.EventPayload{"email": u.Email})
	return nil
}

func (m *Manager) appendEvent(ctx context.Context, evt string, u domain.SessionUser, payload events.EventPayload) {
	id := strconv.FormatInt(u.ID, 10)
	if err := m.Events.Append(ctx, nil, evt, "user", id, id, payload); err != nil {
		m.Logger.Warn("append event", zap.String("type", evt), zap.Error(err))
	}
}

func (m *Manager) setError(err error) {
	msg := err.Error()
	var apiErr *sdk.APIError
	if errors.As(err, &apiErr) {
		msg = apiErr.UserMessage()
	}
	m.mu.Lock()
	m.lastErr = msg
	m.mu.Unlock()
	m.Logger.Info("authentication failed", zap.Error(err))
}

// RequireUser returns the current user or sdk.ErrNotAuthenticated.
func (m *Manager) RequireUser() (domain.SessionUser, error) {
	u := m.User()
	if u == nil {
		return domain.SessionUser{}, sdk.ErrNotAuthenticated
	}
	return *u, nil
}
