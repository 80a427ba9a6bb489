package session

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

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

// publishEvent pushes a fire-and-forget notification onto the shared
// broadcast channel. Clients that only poll lose nothing if redis is down,
// so failures are logged and swallowed.
func (s *Server) publishEvent(ctx context.Context, eventType string, payload map[string]any) {
	if s.rdb == nil {
		return
	}
	event := map[string]any{
		"id":      uuid.NewString(),
		"type":    eventType,
		"payload": payload,
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("session-service: marshal event")
		return
	}
	if err := s.rdb.Publish(ctx, "broadcast", string(data)).Err(); err != nil {
		log.Error().Err(err).Str("type", eventType).Msg("session-service: publish event")
	}
}
