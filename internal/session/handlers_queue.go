package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// lockQueue fetches the session's queue inside tx with a row lock, so
// concurrent mutations on one session serialize instead of overwriting each
// other's whole-array writes.
func (s *Server) lockQueue(ctx context.Context, tx pgx.Tx, sessionID string) ([]QueueItem, bool, error) {
	var queueJSON []byte
	var isActive bool
	err := tx.QueryRow(ctx, `
		SELECT queue, is_active FROM sessions
		WHERE session_id = $1 AND expires_at > $2
		FOR UPDATE
	`, sessionID, s.now()).Scan(&queueJSON, &isActive)
	if err != nil {
		return nil, false, err
	}

	queue := []QueueItem{}
	if err := json.Unmarshal(queueJSON, &queue); err != nil {
		return nil, false, err
	}
	return queue, isActive, nil
}

func (s *Server) saveQueue(ctx context.Context, tx pgx.Tx, sessionID string, queue []QueueItem) error {
	buf, err := json.Marshal(queue)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE sessions SET queue = $2 WHERE session_id = $1
	`, sessionID, buf)
	return err
}

// handleAddToQueue appends a track to the session queue. The new item's
// position is the queue length at append time; that value is never
// renumbered afterwards, the array index is what orders the queue.
// POST /sessions/{id}/queue
func (s *Server) handleAddToQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	var body struct {
		TrackID    string `json:"trackId"`
		TrackName  string `json:"trackName"`
		ArtistName string `json:"artistName"`
		AlbumName  string `json:"albumName"`
		AlbumArt   string `json:"albumArt"`
		URI        string `json:"uri"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	body.TrackID = strings.TrimSpace(body.TrackID)
	body.TrackName = strings.TrimSpace(body.TrackName)
	body.URI = strings.TrimSpace(body.URI)

	if body.TrackID == "" {
		writeError(w, http.StatusBadRequest, "trackId is required")
		return
	}
	if body.TrackName == "" || len(body.TrackName) > 300 {
		writeError(w, http.StatusBadRequest, "trackName must be between 1 and 300 characters")
		return
	}
	if body.URI == "" {
		writeError(w, http.StatusBadRequest, "uri is required")
		return
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		log.Error().Err(err).Msg("session-service: add track begin tx")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer tx.Rollback(ctx)

	queue, isActive, err := s.lockQueue(ctx, tx, sessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("session-service: add track fetch queue")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if !isActive {
		writeError(w, http.StatusConflict, "session is closed")
		return
	}

	item := QueueItem{
		TrackID:    body.TrackID,
		TrackName:  body.TrackName,
		ArtistName: body.ArtistName,
		AlbumName:  body.AlbumName,
		AlbumArt:   body.AlbumArt,
		URI:        body.URI,
		AddedBy:    userID,
		AddedAt:    s.now(),
		Position:   len(queue),
	}
	queue = append(queue, item)

	if err := s.saveQueue(ctx, tx, sessionID, queue); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("session-service: add track save queue")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if err := tx.Commit(ctx); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("session-service: add track commit")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	s.publishEvent(ctx, "queue.track_added", map[string]any{
		"sessionId": sessionID,
		"track":     item,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Track added to queue successfully",
	})
}

// handleGetQueue returns the queue in stored array order.
// GET /sessions/{id}/queue
func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	var queueJSON []byte
	err := s.db.QueryRow(ctx, `
		SELECT queue FROM sessions
		WHERE session_id = $1 AND expires_at > $2
	`, sessionID, s.now()).Scan(&queueJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("session-service: get queue")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	queue := []QueueItem{}
	if err := json.Unmarshal(queueJSON, &queue); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("session-service: get queue unmarshal")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"queue": queue,
	})
}

// handleRemoveFromQueue removes the first queue item with the given
// trackId. Removing a track that is not queued succeeds without touching
// anything; callers cannot tell the difference, and that is the contract.
// DELETE /sessions/{id}/queue
func (s *Server) handleRemoveFromQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	var body struct {
		TrackID string `json:"trackId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.TrackID == "" {
		writeError(w, http.StatusBadRequest, "trackId is required")
		return
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		log.Error().Err(err).Msg("session-service: remove track begin tx")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer tx.Rollback(ctx)

	queue, isActive, err := s.lockQueue(ctx, tx, sessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("session-service: remove track fetch queue")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if !isActive {
		writeError(w, http.StatusConflict, "session is closed")
		return
	}

	idx := -1
	for i, item := range queue {
		if item.TrackID == body.TrackID {
			idx = i
			break
		}
	}

	if idx >= 0 {
		queue = append(queue[:idx], queue[idx+1:]...)
		if err := s.saveQueue(ctx, tx, sessionID, queue); err != nil {
			log.Error().Err(err).Str("sessionId", sessionID).Msg("session-service: remove track save queue")
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("session-service: remove track commit")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	if idx >= 0 {
		s.publishEvent(ctx, "queue.track_removed", map[string]any{
			"sessionId": sessionID,
			"trackId":   body.TrackID,
			"position":  idx,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Track removed from queue successfully",
	})
}

// handleReorderQueue moves the first queue item with the given trackId to
// newPosition, clamped to [0, len-1]. Every other item keeps its relative
// order; stored position fields are left alone.
// PATCH /sessions/{id}/queue
func (s *Server) handleReorderQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	var body struct {
		TrackID     string `json:"trackId"`
		NewPosition int    `json:"newPosition"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.TrackID == "" {
		writeError(w, http.StatusBadRequest, "trackId is required")
		return
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		log.Error().Err(err).Msg("session-service: reorder track begin tx")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer tx.Rollback(ctx)

	queue, isActive, err := s.lockQueue(ctx, tx, sessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("session-service: reorder track fetch queue")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if !isActive {
		writeError(w, http.StatusConflict, "session is closed")
		return
	}

	from := -1
	for i, item := range queue {
		if item.TrackID == body.TrackID {
			from = i
			break
		}
	}
	if from < 0 {
		writeError(w, http.StatusNotFound, "track not found in queue")
		return
	}

	to := body.NewPosition
	if to < 0 {
		to = 0
	}
	if to > len(queue)-1 {
		to = len(queue) - 1
	}

	if to != from {
		item := queue[from]
		queue = append(queue[:from], queue[from+1:]...)
		queue = append(queue[:to], append([]QueueItem{item}, queue[to:]...)...)

		if err := s.saveQueue(ctx, tx, sessionID, queue); err != nil {
			log.Error().Err(err).Str("sessionId", sessionID).Msg("session-service: reorder track save queue")
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("session-service: reorder track commit")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	s.publishEvent(ctx, "queue.track_moved", map[string]any{
		"sessionId": sessionID,
		"trackId":   body.TrackID,
		"from":      from,
		"to":        to,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Queue order updated successfully",
	})
}
