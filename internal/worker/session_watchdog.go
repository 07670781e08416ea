package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/praxislearn/praxis-cli/internal/service"
)

// SessionWatchdog keeps the session healthy while the client runs: it
// proactively refreshes the access token and detects machine suspends by
// noticing ticker fires that arrive far later than scheduled (a monotonic
// timer cannot fire while the machine sleeps).
type SessionWatchdog struct {
	sessions *service.SessionService
	interval time.Duration
	log      zerolog.Logger
}

// NewSessionWatchdog creates a SessionWatchdog ticking at the given interval.
func NewSessionWatchdog(sessions *service.SessionService, interval time.Duration, log zerolog.Logger) *SessionWatchdog {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SessionWatchdog{
		sessions: sessions,
		interval: interval,
		log:      log.With().Str("component", "session_watchdog").Logger(),
	}
}

// Start begins the watchdog loop. Call in a goroutine.
func (w *SessionWatchdog) Start(ctx context.Context) {
	w.log.Debug().Dur("interval", w.interval).Msg("Watchdog started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	lastTick := time.Now()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug().Msg("Watchdog stopped")
			return
		case <-ticker.C:
			now := time.Now()
			gap := now.Sub(lastTick)
			lastTick = now

			if gap > 2*w.interval {
				// The tick arrived late: the process was suspended.
				w.log.Info().Dur("gap", gap).Msg("Late tick, running wake-up check")
				w.sessions.HandleWakeUp(ctx)
				continue
			}
			w.sessions.RefreshIfNeeded(ctx)
		}
	}
}
