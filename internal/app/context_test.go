package app

import (
	"context"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safeplate/internal/config"
	"safeplate/internal/server"
	"safeplate/internal/session"
)

func TestResolveConfigOverride(t *testing.T) {
	dir := t.TempDir()
	cfg, err := ResolveConfig(dir, "http://example.test/api")
	require.NoError(t, err)
	assert.Equal(t, "http://example.test/api", cfg.API.BaseURL)

	require.NoError(t, os.WriteFile(config.Path(dir), []byte(config.GenerateDefault("http://file.test/api")), 0o644))
	cfg, err = ResolveConfig(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "http://file.test/api", cfg.API.BaseURL)
}

func TestSessionSurvivesReopen(t *testing.T) {
	handler, err := server.New(server.Config{Store: server.NewStore(), Auth: server.AuthConfig{JWTSecret: "s"}})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	ctx := context.Background()
	dir := t.TempDir()
	opts := Options{Workspace: dir, APIURL: srv.URL + "/api"}

	a, err := Open(ctx, opts)
	require.NoError(t, err)
	require.NoError(t, a.Session.Register(ctx, session.RegisterOptions{
		Name: "Chef", Email: "chef@example.com", Password: "password1", PasswordConfirmation: "password1",
	}))
	require.NoError(t, a.Close())

	b, err := Open(ctx, opts)
	require.NoError(t, err)
	defer b.Close()
	u := b.Session.User()
	require.NotNil(t, u)
	assert.Equal(t, "chef@example.com", u.Email)

	products, err := b.Client.Products(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, products)

	require.NoError(t, b.Session.Logout(ctx))
	assert.Nil(t, b.Session.User())
}
