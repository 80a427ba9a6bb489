package session

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// DB is the subset of pgxpool.Pool the session server uses. Declared so
// tests can substitute a mock.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type Server struct {
	db  DB
	rdb *redis.Client

	// now is the clock used for expiry checks and timestamps; tests
	// override it to simulate expired sessions.
	now func() time.Time
}

func NewServer(db DB, rdb *redis.Client) *Server {
	return &Server{
		db:  db,
		rdb: rdb,
		now: time.Now,
	}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)

	// Everything below requires an authenticated caller; health stays open
	// for probes.
	r.Group(func(r chi.Router) {
		for _, mw := range middlewares {
			r.Use(mw)
		}

		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Delete("/sessions/{id}", s.handleCloseSession)
		r.Post("/sessions/{id}/participants", s.handleJoinSession)
		r.Put("/sessions/{id}/now-playing", s.handleUpdateNowPlaying)

		r.Post("/sessions/{id}/queue", s.handleAddToQueue)
		r.Get("/sessions/{id}/queue", s.handleGetQueue)
		r.Delete("/sessions/{id}/queue", s.handleRemoveFromQueue)
		r.Patch("/sessions/{id}/queue", s.handleReorderQueue)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "session-service",
	})
}
