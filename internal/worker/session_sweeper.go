package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ExpiredSweeper finalizes sessions whose time ran out without being touched.
type ExpiredSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// SessionSweeper periodically auto-submits expired sessions. Lazy expiry on
// access still applies; this only catches sessions nobody comes back to.
type SessionSweeper struct {
	sessions ExpiredSweeper
	interval time.Duration
	log      zerolog.Logger
}

// DefaultSweepInterval is used when a non-positive interval is given.
const DefaultSweepInterval = 30 * time.Second

// NewSessionSweeper creates a new SessionSweeper.
func NewSessionSweeper(sessions ExpiredSweeper, interval time.Duration, log zerolog.Logger) *SessionSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &SessionSweeper{
		sessions: sessions,
		interval: interval,
		log:      log.With().Str("component", "session_sweeper").Logger(),
	}
}

// Start sweeps every interval until ctx is cancelled. Call in a goroutine.
func (s *SessionSweeper) Start(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Msg("SessionSweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("SessionSweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *SessionSweeper) sweep(ctx context.Context) {
	n, err := s.sessions.SweepExpired(ctx)
	if err != nil {
		s.log.Error().Err(err).Int("finalized", n).Msg("Sweep failed")
		return
	}
	if n > 0 {
		s.log.Info().Int("finalized", n).Msg("Auto-submitted expired sessions")
	}
}
