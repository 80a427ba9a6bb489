package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// StartSweeper starts a background worker that deletes sessions whose
// expiresAt has passed. Reads already filter on expiry, so the sweeper is
// pure reclamation; handlers never need to clean up after themselves.
func (s *Server) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				s.purgeExpired(ctx)
			}
		}
	}()
}

func (s *Server) purgeExpired(ctx context.Context) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM sessions WHERE expires_at <= $1
	`, s.now())
	if err != nil {
		log.Error().Err(err).Msg("session-service: sweeper delete")
		return
	}
	if n := tag.RowsAffected(); n > 0 {
		log.Info().Int64("purged", n).Msg("session-service: sweeper purged expired sessions")
	}
}
