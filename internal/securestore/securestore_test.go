package securestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safeplate/internal/db"
	"safeplate/internal/migrate"
	"safeplate/internal/repo"
)

func newRepo(t *testing.T) (repo.Repo, string) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return repo.Repo{DB: conn}, db.Dir(workspace)
}

func TestSealedRoundTrip(t *testing.T) {
	r, dir := newRepo(t)
	ctx := context.Background()
	s, err := Open(dir, r)
	require.NoError(t, err)

	_, err = s.Get(ctx, "user")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "user", []byte(`{"token":"t"}`)))
	got, err := s.Get(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, `{"token":"t"}`, string(got))

	// ciphertext must not contain the plaintext
	it, err := r.GetSealed(ctx, "user")
	require.NoError(t, err)
	assert.NotContains(t, string(it.Ciphertext), `"token"`)

	require.NoError(t, s.Delete(ctx, "user"))
	_, err = s.Get(ctx, "user")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeviceKeyIsReusedAcrossOpens(t *testing.T) {
	r, dir := newRepo(t)
	ctx := context.Background()
	s1, err := Open(dir, r)
	require.NoError(t, err)
	require.NoError(t, s1.Set(ctx, "user", []byte("v")))

	info, err := os.Stat(filepath.Join(dir, deviceKeyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	s2, err := Open(dir, r)
	require.NoError(t, err)
	got, err := s2.Get(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}

func TestWrongKeyIsTampered(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()
	a, err := NewSealed([]byte("0123456789abcdef0123456789abcdef"), r)
	require.NoError(t, err)
	b, err := NewSealed([]byte("fedcba9876543210fedcba9876543210"), r)
	require.NoError(t, err)
	require.NoError(t, a.Set(ctx, "user", []byte("secret")))
	_, err = b.Get(ctx, "user")
	assert.ErrorIs(t, err, ErrTampered)
}

func TestSwappedKeysAreRejected(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()
	s, err := NewSealed([]byte("0123456789abcdef0123456789abcdef"), r)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "a", []byte("1")))
	it, err := r.GetSealed(ctx, "a")
	require.NoError(t, err)
	it.Key = "b"
	require.NoError(t, r.PutSealed(ctx, it))
	_, err = s.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrTampered)
}

func TestRowMovedToKeyPrefixIsRejected(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()
	s, err := NewSealed([]byte("0123456789abcdef0123456789abcdef"), r)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "user", []byte("secret")))
	it, err := r.GetSealed(ctx, "user")
	require.NoError(t, err)
	it.Key = "use"
	require.NoError(t, r.PutSealed(ctx, it))

	_, err = s.Get(ctx, "use")
	assert.ErrorIs(t, err, ErrTampered)
	got, err := s.Get(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, "secret", string(got))
}

func TestEmptyValueRoundTrip(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()
	s, err := NewSealed([]byte("0123456789abcdef0123456789abcdef"), r)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "k", nil))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, "k", []byte("v")))
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
	require.NoError(t, m.Delete(ctx, "k"))
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}
