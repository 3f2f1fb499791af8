// Package statusapi exposes a small read-only HTTP surface for operators:
// queue depth by status and recent failures. It carries no write routes —
// enqueueing and job processing are cmd/ingest's job, not this API's.
package statusapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/chess-ingest/internal/config"
	"github.com/albapepper/chess-ingest/internal/jobqueue"
)

// NewRouter builds the chi router for the admin/status API.
func NewRouter(pool *pgxpool.Pool, jobs *jobqueue.Store, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(timingMiddleware)
	r.Use(middleware.Compress(5))

	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type"},
		ExposedHeaders:   []string{"X-Process-Time"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	h := &handler{pool: pool, jobs: jobs}

	r.Get("/", h.root)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.health)
		r.Get("/db", h.healthDB)
	})
	r.Route("/queue", func(r chi.Router) {
		r.Get("/depth", h.queueDepth)
		r.Get("/failures", h.recentFailures)
	})

	return r
}

type handler struct {
	pool *pgxpool.Pool
	jobs *jobqueue.Store
}

func (h *handler) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"service": "chess-ingest", "status": "ok"})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) healthDB(w http.ResponseWriter, r *http.Request) {
	var n int
	if err := h.pool.QueryRow(r.Context(), "health_check").Scan(&n); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "down", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) queueDepth(w http.ResponseWriter, r *http.Request) {
	depth, err := h.jobs.QueueDepth(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, depth)
}

// recentFailureRow mirrors the "recent_failures" prepared statement's
// column order (id, platform, kind, last_error, attempts, available_at).
type recentFailureRow struct {
	ID          int64     `json:"id"`
	Platform    string    `json:"platform"`
	Kind        string    `json:"kind"`
	LastError   string    `json:"last_error"`
	Attempts    int       `json:"attempts"`
	AvailableAt time.Time `json:"available_at"`
}

func (h *handler) recentFailures(w http.ResponseWriter, r *http.Request) {
	limit := 50
	rows, err := h.pool.Query(r.Context(), "recent_failures", limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	defer rows.Close()

	var failures []recentFailureRow
	for rows.Next() {
		var f recentFailureRow
		var lastError *string
		if err := rows.Scan(&f.ID, &f.Platform, &f.Kind, &lastError, &f.Attempts, &f.AvailableAt); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if lastError != nil {
			f.LastError = *lastError
		}
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, failures)
}

func timingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		w.Header().Set("X-Process-Time", fmt.Sprintf("%.2fms", float64(time.Since(start).Microseconds())/1000.0))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
