package safeplatesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"safeplate/internal/domain"
)

// ErrNotAuthenticated is returned by user-scoped calls made without a session.
var ErrNotAuthenticated = errors.New("not authenticated")

// TokenSource yields the bearer token to attach to the next request.
// An empty token means the request is sent unauthenticated.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

// Client is a SafePlate HTTP API client.
type Client struct {
	BaseURL    string
	Tokens     TokenSource
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *zap.Logger

	once   sync.Once
	signed *http.Client
}

// New creates a client with sane defaults.
func New(baseURL string, tokens TokenSource) *Client {
	return &Client{
		BaseURL: baseURL,
		Tokens:  tokens,
		Timeout: 30 * time.Second,
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d message=%s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// UserMessage is the text shown to the user in a notification.
func (e *APIError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.StatusCode)
}

type sessionResponse struct {
	Token string `json:"token"`
	User  struct {
		ID    int64  `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"user"`
}

func (r sessionResponse) toSession() domain.SessionUser {
	return domain.SessionUser{Token: r.Token, ID: r.User.ID, Email: r.User.Email, Name: r.User.Name}
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (domain.SessionUser, error) {
	var resp sessionResponse
	err := c.do(ctx, http.MethodPost, "login", map[string]any{"email": email, "password": password}, &resp)
	if err != nil {
		return domain.SessionUser{}, err
	}
	return resp.toSession(), nil
}

// RegisterRequest is the body of /register.
type RegisterRequest struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// Register creates an account and returns its session.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (domain.SessionUser, error) {
	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, "register", req, &resp); err != nil {
		return domain.SessionUser{}, err
	}
	return resp.toSession(), nil
}

// Logout revokes the token carried by the request.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "logout", nil, nil)
}

func (c *Client) Products(ctx context.Context, userID int64) ([]domain.Product, error) {
	var resp []domain.Product
	err := c.do(ctx, http.MethodGet, userPath(userID, "products"), nil, &resp)
	return resp, err
}

func (c *Client) Suppliers(ctx context.Context, userID int64) ([]domain.Supplier, error) {
	var resp []domain.Supplier
	err := c.do(ctx, http.MethodGet, userPath(userID, "suppliers"), nil, &resp)
	return resp, err
}

func (c *Client) CleaningZones(ctx context.Context, userID int64) ([]domain.CleaningZone, error) {
	var resp []domain.CleaningZone
	err := c.do(ctx, http.MethodGet, userPath(userID, "cleaning-zones"), nil, &resp)
	return resp, err
}

// Files returns traceability records.
func (c *Client) Files(ctx context.Context, userID int64) ([]domain.TrackingFile, error) {
	var resp []domain.TrackingFile
	err := c.do(ctx, http.MethodGet, userPath(userID, "files"), nil, &resp)
	return resp, err
}

func (c *Client) OilControls(ctx context.Context, userID int64) ([]domain.OilControl, error) {
	var resp []domain.OilControl
	err := c.do(ctx, http.MethodGet, userPath(userID, "oil-controls"), nil, &resp)
	return resp, err
}

func (c *Client) Receptions(ctx context.Context, userID int64) ([]domain.Reception, error) {
	var resp []domain.Reception
	err := c.do(ctx, http.MethodGet, userPath(userID, "receptions"), nil, &resp)
	return resp, err
}

func (c *Client) Temperatures(ctx context.Context, userID int64) ([]domain.TemperatureReading, error) {
	var resp []domain.TemperatureReading
	err := c.do(ctx, http.MethodGet, userPath(userID, "temperatures"), nil, &resp)
	return resp, err
}

func (c *Client) TemperatureChanges(ctx context.Context, userID int64) ([]domain.TemperatureChange, error) {
	var resp []domain.TemperatureChange
	err := c.do(ctx, http.MethodGet, userPath(userID, "temperature-changements"), nil, &resp)
	return resp, err
}

func (c *Client) CreateProduct(ctx context.Context, name string) (domain.Product, error) {
	var resp domain.Product
	err := c.do(ctx, http.MethodPost, "product/new", map[string]any{"name": name}, &resp)
	return resp, err
}

func (c *Client) CreateSupplier(ctx context.Context, name string) (domain.Supplier, error) {
	var resp domain.Supplier
	err := c.do(ctx, http.MethodPost, "supplier/new", map[string]any{"name": name}, &resp)
	return resp, err
}

func (c *Client) CreateCleaningZone(ctx context.Context, name string) (domain.CleaningZone, error) {
	var resp domain.CleaningZone
	err := c.do(ctx, http.MethodPost, "cleaning-zone/new", map[string]any{"name": name}, &resp)
	return resp, err
}

// Submit posts a prepared multipart body to endpoint and decodes the JSON reply into out.
func (c *Client) Submit(ctx context.Context, endpoint, contentType string, body io.Reader, out any) error {
	return c.send(ctx, http.MethodPost, endpoint, contentType, body, out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	return c.send(ctx, method, endpoint, "application/json", &buf, out)
}

func (c *Client) send(ctx context.Context, method, endpoint, contentType string, body io.Reader, out any) error {
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, b)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status, Body: string(body)}
	var envelope struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		e.Message = envelope.Message
		switch v := envelope.Error.(type) {
		case string:
			if e.Message == "" {
				e.Message = v
			}
		case map[string]any:
			if msg, ok := v["message"].(string); ok && e.Message == "" {
				e.Message = msg
			}
		}
	}
	return e
}

// httpClient returns a copy of HTTPClient whose transport signs requests.
func (c *Client) httpClient() *http.Client {
	c.once.Do(func() {
		hc := &http.Client{Timeout: c.Timeout}
		if c.HTTPClient != nil {
			cp := *c.HTTPClient
			hc = &cp
		}
		if _, ok := hc.Transport.(*SigningTransport); !ok {
			hc.Transport = &SigningTransport{Base: hc.Transport, Tokens: c.Tokens, Logger: c.Logger}
		}
		c.signed = hc
	})
	return c.signed
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func userPath(userID int64, resource string) string {
	return fmt.Sprintf("user/%s/%s", url.PathEscape(fmt.Sprint(userID)), resource)
}

// SigningTransport attaches the current bearer token to every outgoing request.
// The token is read at call time, so a login or logout takes effect on the next request.
type SigningTransport struct {
	Base   http.RoundTripper
	Tokens TokenSource
	Logger *zap.Logger
}

func (t *SigningTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Tokens != nil && req.Header.Get("Authorization") == "" {
		if token := t.Tokens.Token(); token != "" {
			req = req.Clone(req.Context())
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	start := time.Now()
	resp, err := t.base().RoundTrip(req)
	if t.Logger != nil {
		fields := []zap.Field{
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		}
		if err != nil {
			t.Logger.Debug("api request failed", append(fields, zap.Error(err))...)
		} else {
			t.Logger.Debug("api request", append(fields, zap.Int("status", resp.StatusCode))...)
		}
	}
	return resp, err
}

// CloseIdleConnections forwards to the wrapped transport.
func (t *SigningTransport) CloseIdleConnections() {
	if ci, ok := t.base().(interface{ CloseIdleConnections() }); ok {
		ci.CloseIdleConnections()
	}
}

func (t *SigningTransport) base() http.RoundTripper {
	if t.Base == nil {
		return http.DefaultTransport
	}
	return t.Base
}
