package session

import (
	"context"
	"fmt"

	"github.com/karsell/intake/internal/logging"
	"github.com/robfig/cron/v3"
)

// Purger vacuums expired rows from the local snapshot cache.
type Purger interface {
	Purge(ctx context.Context) error
}

// Sweeper periodically evicts idle sessions so abandoned forms do not
// pin engines (and their insurance tickers) forever. Eviction flushes
// unsaved work first, so a swept session loses nothing. When a Purger is
// attached the same schedule also vacuums the snapshot cache.
type Sweeper struct {
	registry *Registry
	purger   Purger
	cron     *cron.Cron
	log      logging.Logger
}

// NewSweeper builds a sweeper around the registry. purger may be nil.
func NewSweeper(registry *Registry, purger Purger, log logging.Logger) *Sweeper {
	return &Sweeper{
		registry: registry,
		purger:   purger,
		cron:     cron.New(),
		log:      log,
	}
}

// Start registers the sweep on the given cron expression and starts the
// schedule. "@every 5m" is a sensible default.
func (s *Sweeper) Start(ctx context.Context, cronSpec string) error {
	_, err := s.cron.AddFunc(cronSpec, func() {
		if n := s.registry.EvictIdle(ctx); n > 0 {
			s.log.Info(ctx, "idle session sweep", "evicted", n, "remaining", s.registry.Len())
		}
		if s.purger != nil {
			if err := s.purger.Purge(ctx); err != nil {
				s.log.Warn(ctx, "snapshot cache purge failed", "error", err)
			}
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronSpec, err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the schedule. Running sweeps finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}
