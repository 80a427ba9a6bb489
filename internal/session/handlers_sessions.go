package session

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// handleCreateSession creates a new session hosted by the current user.
// POST /sessions
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}
	userName := r.Header.Get("X-User-Name")
	if userName == "" {
		userName = userID
	}

	now := s.now()
	host := Participant{
		ID:       userID,
		Name:     userName,
		Role:     roleHost,
		JoinedAt: now,
	}
	participants, err := json.Marshal([]Participant{host})
	if err != nil {
		log.Error().Err(err).Msg("session-service: create session marshal host")
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	// The identifier space is small, so collisions are expected now and
	// then; a duplicate key violation just means draw again.
	var sessionID string
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		sessionID, err = newSessionID()
		if err != nil {
			log.Error().Err(err).Msg("session-service: create session id")
			writeError(w, http.StatusInternalServerError, "failed to create session")
			return
		}

		_, err = s.db.Exec(ctx, `
			INSERT INTO sessions (session_id, host_id, created_at, expires_at, participants, queue)
			VALUES ($1, $2, $3, $4, $5, '[]')
		`, sessionID, userID, now, now.Add(SessionTTL), participants)
		if err == nil {
			break
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			log.Warn().Str("sessionId", sessionID).Msg("session-service: session id collision, retrying")
			continue
		}
		log.Error().Err(err).Msg("session-service: create session insert")
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("session-service: create session exhausted id attempts")
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	s.publishEvent(ctx, "session.created", map[string]any{
		"sessionId": sessionID,
		"hostId":    userID,
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"sessionId": sessionID,
		"message":   "Session created successfully",
	})
}

// handleGetSession returns the full session document.
// GET /sessions/{id}
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
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

	var (
		sess             Session
		participantsJSON []byte
		queueJSON        []byte
		currentTrackJSON []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT session_id, host_id, created_at, expires_at, is_active, participants, queue, current_track
		FROM sessions
		WHERE session_id = $1 AND expires_at > $2
	`, sessionID, s.now()).Scan(
		&sess.SessionID,
		&sess.HostID,
		&sess.CreatedAt,
		&sess.ExpiresAt,
		&sess.IsActive,
		&participantsJSON,
		&queueJSON,
		&currentTrackJSON,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("session-service: get session")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	sess.Participants = []Participant{}
	sess.Queue = []QueueItem{}
	if err := json.Unmarshal(participantsJSON, &sess.Participants); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("session-service: get session participants")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if err := json.Unmarshal(queueJSON, &sess.Queue); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("session-service: get session queue")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if len(currentTrackJSON) > 0 {
		var ct CurrentTrack
		if err := json.Unmarshal(currentTrackJSON, &ct); err != nil {
			log.Error().Err(err).Str("sessionId", sessionID).Msg("session-service: get session current track")
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		sess.CurrentTrack = &ct
	}

	writeJSON(w, http.StatusOK, sess)
}

// handleCloseSession deactivates a session. Only the host may close it; the
// row itself stays readable until the sweeper reclaims it at expiry.
// DELETE /sessions/{id}
func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
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

	var hostID string
	err := s.db.QueryRow(ctx, `
		SELECT host_id FROM sessions
		WHERE session_id = $1 AND expires_at > $2
	`, sessionID, s.now()).Scan(&hostID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("session-service: close session fetch")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if userID != hostID {
		writeError(w, http.StatusForbidden, "only the host can close a session")
		return
	}

	if _, err := s.db.Exec(ctx, `
		UPDATE sessions SET is_active = FALSE WHERE session_id = $1
	`, sessionID); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("session-service: close session update")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	s.publishEvent(ctx, "session.closed", map[string]any{
		"sessionId": sessionID,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Session closed successfully",
	})
}

// handleJoinSession adds the current user to the participant list as a
// member. Joining twice is a no-op.
// POST /sessions/{id}/participants
func (s *Server) handleJoinSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}
	userName := r.Header.Get("X-User-Name")
	if userName == "" {
		userName = userID
	}

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		log.Error().Err(err).Msg("session-service: join session begin tx")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer tx.Rollback(ctx)

	var participantsJSON []byte
	var isActive bool
	err = tx.QueryRow(ctx, `
		SELECT participants, is_active FROM sessions
		WHERE session_id = $1 AND expires_at > $2
		FOR UPDATE
	`, sessionID, s.now()).Scan(&participantsJSON, &isActive)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("session-service: join session fetch")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if !isActive {
		writeError(w, http.StatusConflict, "session is closed")
		return
	}

	var participants []Participant
	if err := json.Unmarshal(participantsJSON, &participants); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("session-service: join session unmarshal")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	for _, p := range participants {
		if p.ID == userID {
			writeJSON(w, http.StatusOK, map[string]any{
				"message": "Already joined",
			})
			return
		}
	}

	participants = append(participants, Participant{
		ID:       userID,
		Name:     userName,
		Role:     roleMember,
		JoinedAt: s.now(),
	})
	buf, err := json.Marshal(participants)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("session-service: join session marshal")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	if _, err := tx.Exec(ctx, `
		UPDATE sessions SET participants = $2 WHERE session_id = $1
	`, sessionID, buf); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("session-service: join session update")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if err := tx.Commit(ctx); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("session-service: join session commit")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	s.publishEvent(ctx, "session.participant_joined", map[string]any{
		"sessionId": sessionID,
		"userId":    userID,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Joined session successfully",
	})
}

// handleUpdateNowPlaying records what the external player reports as
// currently playing. An empty trackId clears the marker. The value is a
// hint for other participants' views, nothing here acts on it.
// PUT /sessions/{id}/now-playing
func (s *Server) handleUpdateNowPlaying(w http.ResponseWriter, r *http.Request) {
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
		ProgressMs int    `json:"progressMs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var current []byte
	if body.TrackID != "" {
		buf, err := json.Marshal(CurrentTrack{
			TrackID:    body.TrackID,
			StartedAt:  s.now(),
			ProgressMs: body.ProgressMs,
		})
		if err != nil {
			log.Error().Err(err).Str("sessionId", sessionID).Msg("session-service: now playing marshal")
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		current = buf
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE sessions SET current_track = $2
		WHERE session_id = $1 AND expires_at > $3
	`, sessionID, current, s.now())
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("session-service: now playing update")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if tag.RowsAffected() == 0 {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Now playing updated",
	})
}
