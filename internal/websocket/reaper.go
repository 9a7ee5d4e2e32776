package websocket

import (
	"context"
	"time"

	"codeberg.org/graphroom/server/internal/logger"
)

// Reaper periodically reclaims stale presence records and trims conflict
// history across all rooms. It never blocks ordinary message handling: each
// sweep takes the hub lock, so it interleaves with the message pipeline
// only at message-boundary granularity.
type Reaper struct {
	hub      *Hub
	interval time.Duration
}

func NewReaper(hub *Hub, interval time.Duration) *Reaper {
	return &Reaper{
		hub:      hub,
		interval: interval,
	}
}

// begins the reaper background loop; returns when ctx is cancelled
func (r *Reaper) Start(ctx context.Context) {
	logger.Info("starting idle reaper",
		"interval", r.interval,
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("idle reaper stopped")
			return
		case now := <-ticker.C:
			r.hub.SweepIdle(now)
		}
	}
}
