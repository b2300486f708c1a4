package server

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safeplate/internal/config"
	"safeplate/internal/db"
	"safeplate/internal/engine"
	"safeplate/internal/migrate"
	"safeplate/internal/securestore"
	"safeplate/internal/session"
	"safeplate/internal/wizard"
	sdk "safeplate/sdk/go"
)

type testServer struct {
	URL   string
	Store *Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := NewStore()
	handler, err := New(Config{Store: store, Auth: AuthConfig{JWTSecret: "test-secret"}})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testServer{URL: srv.URL + "/api", Store: store}
}

func (s *testServer) client(token string) *sdk.Client {
	return sdk.New(s.URL, sdk.TokenFunc(func() string { return token }))
}

func register(t *testing.T, s *testServer, email string) (string, int64) {
	t.Helper()
	u, err := s.client("").Register(context.Background(), sdk.RegisterRequest{
		Name: "Chef", Email: email, Password: "password1", PasswordConfirmation: "password1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, u.Token)
	return u.Token, u.ID
}

func apiStatus(t *testing.T, err error) int {
	t.Helper()
	var apiErr *sdk.APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	return apiErr.StatusCode
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	resp, err := http.Get(s.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginRegisterLogout(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, _ = register(t, s, "chef@example.com")

	_, err := s.client("").Login(ctx, "chef@example.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, apiStatus(t, err))

	u, err := s.client("").Login(ctx, "CHEF@example.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, "Chef", u.Name)

	c := s.client(u.Token)
	_, err = c.Products(ctx, u.ID)
	require.NoError(t, err)

	require.NoError(t, c.Logout(ctx))
	_, err = c.Products(ctx, u.ID)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, apiStatus(t, err))
}

func TestRegisterRejectsDuplicatesAndMismatch(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	register(t, s, "chef@example.com")

	_, err := s.client("").Register(ctx, sdk.RegisterRequest{
		Name: "Other", Email: "chef@example.com", Password: "password1", PasswordConfirmation: "password1",
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, apiStatus(t, err))

	_, err = s.client("").Register(ctx, sdk.RegisterRequest{
		Name: "Other", Email: "other@example.com", Password: "password1", PasswordConfirmation: "password2",
	})
	require.Error(t, err)
	var apiErr *sdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "passwords do not match", apiErr.UserMessage())
}

func TestUserListsAreScoped(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	token, id := register(t, s, "a@example.com")
	_, other := register(t, s, "b@example.com")

	_, err := s.client("").Products(ctx, id)
	assert.Equal(t, http.StatusUnauthorized, apiStatus(t, err))

	_, err = s.client(token).Products(ctx, other)
	assert.Equal(t, http.StatusForbidden, apiStatus(t, err))

	c := s.client(token)
	_, err = c.CreateProduct(ctx, "Lait")
	require.NoError(t, err)
	_, err = c.CreateProduct(ctx, "beurre")
	require.NoError(t, err)
	_, err = c.CreateProduct(ctx, "LAIT")
	assert.Equal(t, http.StatusConflict, apiStatus(t, err))

	products, err := c.Products(ctx, id)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "beurre", products[0].Name)
}

func TestMultipartValidationEnvelope(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	token, _ := register(t, s, "chef@example.com")
	c := s.client(token)

	sub := wizard.NewSubmission(engine.EndpointReception)
	sub.Add("date", "2024-13-01")
	sub.Add("service", "Matin")
	ct, body, err := sub.Encode(nil)
	require.NoError(t, err)
	err = c.Submit(ctx, sub.Endpoint, ct, body, nil)
	require.Error(t, err)
	var apiErr *sdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	for _, f := range []string{"date", "supplier_id", "reference", "products"} {
		assert.Contains(t, apiErr.Message, f)
	}

	err = c.Submit(ctx, sub.Endpoint, "application/json", bytes.NewBufferString(`{}`), nil)
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, err))
}

func TestIndexedListDecoding(t *testing.T) {
	var items []wizard.Item
	for i := 1; i <= 11; i++ {
		items = append(items, wizard.Item{"product_id": strconv.Itoa(i), "quantity": "1"})
	}
	sub := wizard.NewSubmission("x")
	sub.AddList("products", items, "product_id", "quantity")
	sub.Add("products", "ignored")
	r := &formReader{form: formOf(t, sub)}
	got := r.list("products")
	require.Len(t, got, 11)
	for i, it := range got {
		assert.Equal(t, strconv.Itoa(i+1), it["product_id"])
	}
}

func formOf(t *testing.T, sub *wizard.Submission) *multipart.Form {
	t.Helper()
	ct, body, err := sub.Encode(nil)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", ct)
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm
}

// End to end: session, sdk, engine and this server together.
func TestReceptionRoundTrip(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	sess := session.New(nil, securestore.NewMemory(), nil)
	client := sdk.New(s.URL, sess)
	sess.API = client
	require.NoError(t, sess.Register(ctx, session.RegisterOptions{
		Name: "Chef", Email: "chef@example.com", Password: "password1", PasswordConfirmation: "password1",
	}))
	supplier, err := client.CreateSupplier(ctx, "Metro")
	require.NoError(t, err)
	lait, err := client.CreateProduct(ctx, "Lait")
	require.NoError(t, err)

	photo := filepath.Join(dir, "bl.png")
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	require.NoError(t, os.WriteFile(photo, png, 0o600))

	eng := engine.New(conn, config.Default(s.URL), client, sess)
	r, err := eng.Start(ctx, engine.FlowReception)
	require.NoError(t, err)
	err = engine.Drive(ctx, r, engine.Answers{
		"photo":            {photo},
		"deliveryDate":     {"2024-03-15"},
		"selectedSupplier": {"Metro"},
		"selectedService":  {"Matin"},
		"products":         {strconv.FormatInt(lait.ID, 10) + "=3"},
	})
	require.NoError(t, err)
	require.Equal(t, wizard.Done, r.Phase())

	u, err := sess.RequireUser()
	require.NoError(t, err)
	recs, err := client.Receptions(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	got := recs[0]
	assert.Equal(t, supplier.ID, got.SupplierID)
	assert.Equal(t, "Metro", got.Supplier)
	assert.Empty(t, got.Reference)
	require.Len(t, got.Products, 1)
	assert.Equal(t, 3, got.Products[0].Quantity)
	assert.Equal(t, "Lait", got.Products[0].Name)
	require.True(t, strings.HasPrefix(got.ImageURL, "uploads/safeplate_reception_"), got.ImageURL)

	resp, err := http.Get(s.URL + "/" + got.ImageURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	groups, err := eng.History(ctx, engine.HistoryReceptions)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "March 2024", groups[0].Label())
}

func TestCoolingMayCrossMidnight(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	token, _ := register(t, s, "chef@example.com")
	c := s.client(token)
	p, err := c.CreateProduct(ctx, "Blanquette")
	require.NoError(t, err)

	cooling := func(start, end string) error {
		sub := wizard.NewSubmission(engine.EndpointCooling)
		sub.Add("product_id", strconv.FormatInt(p.ID, 10))
		sub.Add("date", "2024-03-15")
		sub.Add("started_at", start)
		sub.Add("ended_at", end)
		sub.Add("start_temperature", "63")
		sub.Add("end_temperature", "8")
		ct, body, err := sub.Encode(nil)
		require.NoError(t, err)
		return c.Submit(ctx, sub.Endpoint, ct, body, nil)
	}
	require.NoError(t, cooling("23:00", "00:30"))
	err = cooling("10:00", "10:00")
	assert.Equal(t, http.StatusUnprocessableEntity, apiStatus(t, err))
}
