package service

import (
	"context"
	"log/slog"
	"time"

	"liftlog/internal/observability"
)

const sweepTimeout = 30 * time.Second

// ExpiredSessionDeleter removes sessions that have expired as of now.
type ExpiredSessionDeleter interface {
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// SessionSweeper periodically deletes expired sessions. Validation already
// refuses expired sessions on its own, so the sweep only reclaims storage.
type SessionSweeper struct {
	deleter  ExpiredSessionDeleter
	interval time.Duration
}

func NewSessionSweeper(deleter ExpiredSessionDeleter, interval time.Duration) *SessionSweeper {
	return &SessionSweeper{deleter: deleter, interval: interval}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *SessionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping session cleanup task")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs a single cleanup pass and returns the number of sessions removed.
func (s *SessionSweeper) Sweep(ctx context.Context) int64 {
	sweepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sweepTimeout)
	defer cancel()

	count, err := s.deleter.DeleteExpiredSessions(sweepCtx)
	if err != nil {
		slog.Error("session cleanup failed", slog.String("error", err.Error()))
		return 0
	}

	observability.SessionsSwept.Add(float64(count))
	slog.Info("session cleanup completed", slog.Int64("sessions_deleted", count))
	return count
}
