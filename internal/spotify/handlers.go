package spotify

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// tokenHeader carries the caller's own Spotify access token; the bridge
// never holds credentials. Refresh happens client-side via the identity
// provider's token-refresh grant.
const tokenHeader = "X-Spotify-Token"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": msg,
	})
}

// writeProviderError maps a relay failure onto the response. A 401-class
// answer from Spotify means the credential is stale and must be refreshed
// out-of-band; anything else is passed through as a bad gateway with the
// provider's status attached.
func writeProviderError(w http.ResponseWriter, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden {
			writeError(w, http.StatusUnauthorized, "spotify token rejected")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":          apiErr.Message,
			"providerStatus": apiErr.Status,
		})
		return
	}
	writeError(w, http.StatusBadGateway, "failed to reach spotify")
}

func spotifyToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := r.Header.Get(tokenHeader)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing spotify token")
		return "", false
	}
	return token, true
}

func (s *Server) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	token, ok := spotifyToken(w, r)
	if !ok {
		return
	}

	state, err := s.player.CurrentPlayback(r.Context(), token)
	if err != nil {
		log.Error().Err(err).Msg("session-service: get player state")
		writeProviderError(w, err)
		return
	}
	if state == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"is_playing": false,
		})
		return
	}

	writeJSON(w, http.StatusOK, state)
}

func (s *Server) controlPlayback(w http.ResponseWriter, r *http.Request, action string) {
	token, ok := spotifyToken(w, r)
	if !ok {
		return
	}

	if err := s.player.Control(r.Context(), token, action); err != nil {
		log.Error().Err(err).Str("action", action).Msg("session-service: control playback")
		writeProviderError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Playback " + action + " issued",
	})
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	s.controlPlayback(w, r, "play")
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.controlPlayback(w, r, "pause")
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	s.controlPlayback(w, r, "next")
}

func (s *Server) handlePrevious(w http.ResponseWriter, r *http.Request) {
	s.controlPlayback(w, r, "previous")
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	token, ok := spotifyToken(w, r)
	if !ok {
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if len(query) > 200 {
		writeError(w, http.StatusBadRequest, "query is too long")
		return
	}

	limit := 10
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 50 {
		limit = v
	}
	offset := 0
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}

	results, err := s.player.Search(r.Context(), token, query, offset, limit)
	if err != nil {
		log.Error().Err(err).Str("query", query).Msg("session-service: search tracks")
		writeProviderError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleQueueTrack(w http.ResponseWriter, r *http.Request) {
	token, ok := spotifyToken(w, r)
	if !ok {
		return
	}

	var body struct {
		URI string `json:"uri"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	body.URI = strings.TrimSpace(body.URI)
	if body.URI == "" {
		writeError(w, http.StatusBadRequest, "uri is required")
		return
	}

	if err := s.player.AddToQueue(r.Context(), token, body.URI); err != nil {
		log.Error().Err(err).Str("uri", body.URI).Msg("session-service: queue track")
		writeProviderError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Track queued on player",
	})
}
