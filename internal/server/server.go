// Package server is a development implementation of the SafePlate HTTP API.
// It keeps state in memory and is used by sp devserver and by tests.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Config for the HTTP API handler.
type Config struct {
	Store    *Store
	BasePath string
	Auth     AuthConfig
	// MaxUploadBytes bounds multipart bodies; zero means 10 MiB.
	MaxUploadBytes int64
	Logger         *zap.Logger
	Now            func() time.Time
}

func (c Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c Config) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"validation_failed"`
	Message string         `json:"message" example:"missing or invalid fields: date"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the SafePlate API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Store == nil {
		return nil, errors.New("server: store is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	cfg.BasePath = basePath
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestLogger(cfg.logger()))
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Store))
	hcfg := huma.DefaultConfig("SafePlate API", "1.0.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerAuth(group, cfg)
	registerLists(group, cfg.Store)
	registerReferences(group, cfg.Store)
	registerRecords(router, cfg)
	registerUploads(router, basePath, cfg.Store)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Duration("elapsed", time.Since(start)))
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var ve *validationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", ve.Error(), map[string]any{"fields": ve.Fields})
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, ErrBadPassword):
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", err.Error(), nil)
	case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrDuplicateRef):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var once sync.Once
	var doc []byte
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			doc, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	open := map[string]bool{
		path.Join(basePath, "health"):   true,
		path.Join(basePath, "login"):    true,
		path.Join(basePath, "register"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAuth(api huma.API, cfg Config) {
	issue := func(u UserResponse) (*struct {
		Body SessionResponse `json:"body"`
	}, error) {
		token, err := signToken(cfg.Auth.JWTSecret, u.ID, cfg.Auth.ttl(), cfg.now())
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body SessionResponse `json:"body"`
		}{Body: SessionResponse{Token: token, User: u}}, nil
	}

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/login",
		Summary:     "Exchange credentials for a bearer token",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body SessionResponse `json:"body"`
	}, error) {
		u, err := cfg.Store.Authenticate(input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		cfg.logger().Info("login", zap.Int64("user_id", u.ID))
		return issue(toUser(u))
	})

	huma.Register(api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/register",
		Summary:       "Create an account",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body RegisterRequest `json:"body"`
	}) (*struct {
		Body SessionResponse `json:"body"`
	}, error) {
		b := input.Body
		if b.Password != b.PasswordConfirmation {
			return nil, newAPIError(http.StatusUnprocessableEntity, "validation_failed", "passwords do not match", nil)
		}
		if !strings.Contains(b.Email, "@") {
			return nil, newAPIError(http.StatusUnprocessableEntity, "validation_failed", "email is invalid", nil)
		}
		u, err := cfg.Store.AddUser(strings.TrimSpace(b.Name), b.Email, b.Password)
		if err != nil {
			return nil, handleError(err)
		}
		cfg.logger().Info("registered", zap.Int64("user_id", u.ID))
		return issue(toUser(u))
	})

	huma.Register(api, huma.Operation{
		OperationID:   "logout",
		Method:        http.MethodPost,
		Path:          "/logout",
		Summary:       "Revoke the bearer token",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		until := p.Expires
		if until.IsZero() {
			until = cfg.now().Add(cfg.Auth.ttl())
		}
		cfg.Store.Revoke(p.TokenID, until)
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		id, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		u, err := cfg.Store.User(id)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: toUser(u)}, nil
	})
}

// listOf registers GET /user/{id}/<resource> returning load(id).
func listOf[T any](api huma.API, resource, summary string, load func(int64) []T) {
	huma.Register(api, huma.Operation{
		OperationID: "list-" + resource,
		Method:      http.MethodGet,
		Path:        "/user/{id}/" + resource,
		Summary:     summary,
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *userPath) (*struct {
		Body []T `json:"body"`
	}, error) {
		if err := requireOwner(ctx, input.ID); err != nil {
			return nil, err
		}
		return &struct {
			Body []T `json:"body"`
		}{Body: nonNilSlice(load(input.ID))}, nil
	})
}

func registerLists(api huma.API, s *Store) {
	listOf(api, "products", "Products", s.Products)
	listOf(api, "suppliers", "Suppliers", s.Suppliers)
	listOf(api, "cleaning-zones", "Cleaning zones", s.Zones)
	listOf(api, "receptions", "Reception history", s.Receptions)
	listOf(api, "files", "Traceability history", s.Files)
	listOf(api, "cleaning-plans", "Cleaning plan history", s.CleaningPlans)
	listOf(api, "oil-controls", "Oil control history", s.OilControls)
	listOf(api, "temperatures", "Temperature readings", s.Temperatures)
	listOf(api, "temperature-changements", "Cooling and reheating history", s.TemperatureChanges)
}

// createNamed registers POST /<resource>/new for a named reference entry.
func createNamed[T any](api huma.API, resource string, add func(userID int64, name string) (T, error)) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-" + resource,
		Method:        http.MethodPost,
		Path:          "/" + resource + "/new",
		Summary:       fmt.Sprintf("Create a %s", strings.ReplaceAll(resource, "-", " ")),
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body NameRequest `json:"body"`
	}) (*struct {
		Body T `json:"body"`
	}, error) {
		id, serr := userIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		name := strings.TrimSpace(input.Body.Name)
		if name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		v, err := add(id, name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body T `json:"body"`
		}{Body: v}, nil
	})
}

func registerReferences(api huma.API, s *Store) {
	createNamed(api, "product", s.AddProduct)
	createNamed(api, "supplier", s.AddSupplier)
	createNamed(api, "cleaning-zone", s.AddZone)
}

func registerUploads(r chi.Router, basePath string, s *Store) {
	r.Get(path.Join(basePath, "uploads", "{name}"), func(w http.ResponseWriter, req *http.Request) {
		u, ok := s.Upload(chi.URLParam(req, "name"))
		if !ok {
			respondStatusError(w, newAPIError(http.StatusNotFound, "not_found", "upload not found", nil))
			return
		}
		w.Header().Set("Content-Type", u.ContentType)
		w.Write(u.Data)
	})
}
