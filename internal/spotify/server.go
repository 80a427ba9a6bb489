package spotify

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Player is the set of relay operations the HTTP layer needs; *Client
// implements it, tests substitute a fake.
type Player interface {
	CurrentPlayback(ctx context.Context, token string) (*PlaybackState, error)
	Control(ctx context.Context, token, action string) error
	Search(ctx context.Context, token, query string, offset, limit int) (*SearchResults, error)
	AddToQueue(ctx context.Context, token, uri string) error
}

type Server struct {
	player Player
}

func NewServer(p Player) *Server {
	return &Server{player: p}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/player", s.handleGetPlayer)
	r.Put("/player/play", s.handlePlay)
	r.Put("/player/pause", s.handlePause)
	r.Post("/player/next", s.handleNext)
	r.Post("/player/previous", s.handlePrevious)
	r.Post("/player/queue", s.handleQueueTrack)
	r.Get("/search", s.handleSearch)

	return r
}
