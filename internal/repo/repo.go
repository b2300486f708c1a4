package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"safeplate/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// SealedItem is an encrypted value in secure_items.
type SealedItem struct {
	Key        string
	Nonce      []byte
	Ciphertext []byte
	UpdatedAt  string
}

func (r Repo) GetSealed(ctx context.Context, key string) (SealedItem, error) {
	var it SealedItem
	err := r.DB.QueryRowContext(ctx, `SELECT key,nonce,ciphertext,updated_at FROM secure_items WHERE key=?`, key).
		Scan(&it.Key, &it.Nonce, &it.Ciphertext, &it.UpdatedAt)
	if err == sql.ErrNoRows {
		return it, ErrNotFound
	}
	return it, err
}

func (r Repo) PutSealed(ctx context.Context, it SealedItem) error {
	if it.UpdatedAt == "" {
		it.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO secure_items(key,nonce,ciphertext,updated_at) VALUES (?,?,?,?)
ON CONFLICT(key) DO UPDATE SET nonce=excluded.nonce, ciphertext=excluded.ciphertext, updated_at=excluded.updated_at`,
		it.Key, it.Nonce, it.Ciphertext, it.UpdatedAt)
	return err
}

// DeleteSealed removes a key; deleting a missing key is not an error.
func (r Repo) DeleteSealed(ctx context.Context, key string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM secure_items WHERE key=?`, key)
	return err
}

func scanDraft(scan func(dest ...any) error) (domain.Draft, error) {
	var d domain.Draft
	var lastErr sql.NullString
	if err := scan(&d.ID, &d.Kind, &d.Step, &d.Payload, &lastErr, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return d, err
	}
	if lastErr.Valid {
		d.LastError = lastErr.String
	}
	return d, nil
}

const draftColumns = `id,kind,step,payload_json,last_error,created_at,updated_at`

func (r Repo) UpsertDraft(ctx context.Context, d domain.Draft) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if d.CreatedAt == "" {
		d.CreatedAt = now
	}
	if d.UpdatedAt == "" {
		d.UpdatedAt = now
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO drafts(`+draftColumns+`) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET step=excluded.step, payload_json=excluded.payload_json,
last_error=excluded.last_error, updated_at=excluded.updated_at`,
		d.ID, d.Kind, d.Step, d.Payload, nullable(d.LastError), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert draft %s: %w", d.ID, err)
	}
	return nil
}

func (r Repo) GetDraft(ctx context.Context, id string) (domain.Draft, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+draftColumns+` FROM drafts WHERE id=?`, id)
	d, err := scanDraft(row.Scan)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}

// ListDrafts returns drafts newest first, optionally filtered by kind.
func (r Repo) ListDrafts(ctx context.Context, kind string) ([]domain.Draft, error) {
	q := `SELECT ` + draftColumns + ` FROM drafts`
	var args []any
	if kind != "" {
		q += ` WHERE kind=?`
		args = append(args, kind)
	}
	q += ` ORDER BY updated_at DESC, id`
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Draft
	for rows.Next() {
		d, err := scanDraft(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) DeleteDraft(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM drafts WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestEvents returns up to limit events, newest first.
func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	var where []string
	var args []any
	if evtType != "" {
		where = append(where, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		where = append(where, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		where = append(where, "entity_id=?")
		args = append(args, entityID)
	}
	q := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
