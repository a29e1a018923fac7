package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"anonpress.org/internal/alias"
	"anonpress.org/internal/article"
	"anonpress.org/internal/auth"
	"anonpress.org/internal/gate"
	"anonpress.org/internal/obs"
	"anonpress.org/internal/stream"
)

// ReadyProbe reports whether the backing store is reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the access-gated article store.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	gate       *gate.Store
	users      *auth.Users
	resolver   *auth.Resolver
	stream     *stream.Stream
	rateBurst  int
	ratePerSec int
}

// Option configures optional API collaborators.
type Option func(*API)

// WithUsers enables the signin endpoint and user administration.
func WithUsers(users *auth.Users) Option {
	return func(a *API) { a.users = users }
}

// WithStream exposes the lifecycle event fan-out over SSE.
func WithStream(s *stream.Stream) Option {
	return func(a *API) { a.stream = s }
}

func New(rp ReadyProbe, version string, g *gate.Store, resolver *auth.Resolver, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		gate:       g,
		resolver:   resolver,
		rateBurst:  100,
		ratePerSec: 50,
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// signin + user administration
	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)
	a.mux.HandleFunc("/v1/users", a.handleUsersCollection)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)

	// alias category catalogue
	a.mux.HandleFunc("/v1/aliases", a.handleAliases)
	a.mux.HandleFunc("/v1/aliases/", a.handleAliasResource)

	// storage-free model endpoints
	a.mux.HandleFunc("/v1/model/aliases", a.handleModelAliases)
	a.mux.HandleFunc("/v1/model/anonymize", a.handleModelAnonymize)

	// article lifecycle
	a.mux.HandleFunc("/v1/articles", a.handleArticlesCollection)
	a.mux.HandleFunc("/v1/articles/", a.handleArticleResource)

	// lifecycle event stream
	a.mux.HandleFunc("/v1/stream", a.Stream)

	a.mux.HandleFunc("/", a.Index)

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Welcome to the anonpress API",
	})
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "anonpress-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "anonpress-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) handleAliases(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, alias.Descriptions)
}

func (a *API) handleAliasResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/v1/aliases/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	desc, ok := alias.Descriptions[strings.ToUpper(name)]
	if !ok {
		writeError(w, r, http.StatusNotFound, "unknown alias category")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{strings.ToUpper(name): desc})
}

// --- helpers ---

// principalOrPublic returns the authenticated principal, or the anonymous
// public principal when the request carried no token.
func principalOrPublic(ctx context.Context) auth.Principal {
	if principal, ok := auth.PrincipalFromContext(ctx); ok {
		return principal
	}
	return auth.Principal{Username: "anonymous", Roles: []string{auth.RolePublic}}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, gate.ErrPermissionDenied):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, article.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, article.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, article.ErrEmptyText), errors.Is(err, alias.ErrInvalidAlias):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, article.ErrInvalidData):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, alias.ErrDetection):
		writeError(w, r, http.StatusBadGateway, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
