package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"bookcat.org/internal/auth"
	"bookcat.org/internal/catalog"
	"bookcat.org/internal/ingest"
	"bookcat.org/internal/obs"
	"bookcat.org/internal/ratelimit"
)

const serviceName = "bookcat-api"

// ReadinessChecker reports whether dependencies are reachable.
type ReadinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe: простая проверка готовности (ping БД).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps are the services the HTTP layer dispatches to.
type Deps struct {
	Gate     *auth.Gate
	Catalog  *catalog.Service
	Importer *ingest.Pipeline
	// AuthLimiter guards the jwt/auth routes. Nil disables limiting.
	AuthLimiter      ratelimit.Limiter
	Ready            ReadinessChecker
	Version          string
	MaxUploadBytes   int64
	DefaultBatchSize int
}

// API: HTTP слой.
type API struct {
	router    chi.Router
	gate      *auth.Gate
	catalog   *catalog.Service
	importer  *ingest.Pipeline
	limiter   ratelimit.Limiter
	ready     ReadinessChecker
	version   string
	maxUpload int64
	batchSize int
}

func New(d Deps) *API {
	a := &API{
		router:    chi.NewRouter(),
		gate:      d.Gate,
		catalog:   d.Catalog,
		importer:  d.Importer,
		limiter:   d.AuthLimiter,
		ready:     d.Ready,
		version:   d.Version,
		maxUpload: d.MaxUploadBytes,
		batchSize: d.DefaultBatchSize,
	}
	if a.ready == nil {
		a.ready = ReadyProbe{}
	}
	if a.maxUpload <= 0 {
		a.maxUpload = catalog.DefaultMaxFileSize
	}
	if a.batchSize <= 0 {
		a.batchSize = ingest.DefaultBatchSize
	}
	a.routes()
	return a
}

func (a *API) routes() {
	r := a.router
	r.Use(RequestID)
	r.Use(middleware.Recoverer)
	r.Use(Logging)
	r.Use(SecurityHeaders)
	r.Use(CORS)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(methodNotAllowed)

	// health/ready/info
	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/v1/info", a.Info)
	r.Handle("/metrics", obs.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/jwt/auth", func(r chi.Router) {
			r.Use(RateLimit(a.limiter))
			r.Use(MaxBodyBytes(1 << 20))
			r.Post("/signup/", a.handleSignup)
			r.Post("/login/", a.handleLogin)
			r.Post("/refresh/", a.handleRefresh)
		})
		r.Route("/book", func(r chi.Router) {
			r.Get("/", a.handleListBooks)
			r.Get("/export/", a.handleExportBooks)
			r.Get("/download/{filename}", a.handleDownload)
			r.Get("/{id}/", a.handleGetBook)

			r.Group(func(r chi.Router) {
				r.Use(a.requireAuth(auth.AccessToken))
				r.Use(MaxBodyBytes(a.maxUpload + multipartOverhead))
				r.Post("/", a.handleCreateBook)
				r.Post("/import/", a.handleImportBooks)
				r.Patch("/{id}/", a.handleUpdateBook)
				r.Delete("/{id}/", a.handleDeleteBook)
			})
		})
	})
}

// Handler возвращает http.Handler для сервера.
func (a *API) Handler() http.Handler {
	// оборачиваем весь роутер метриками
	return obs.Instrument(a.router)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.ready.Check(ctx); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
