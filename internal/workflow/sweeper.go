package workflow

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mikey/meeting-scheduler/internal/core"
)

// Sweeper periodically expires stale holds so an unconfirmed hold can
// never block a time range forever. The sweep is idempotent and safe to
// run from any single process without coordination.
type Sweeper struct {
	store    core.SchedulingStore
	logger   *zap.Logger
	schedule string
	cron     *cron.Cron
}

// NewSweeper creates a hold-expiry sweeper. schedule is a standard
// five-field cron expression.
func NewSweeper(store core.SchedulingStore, logger *zap.Logger, schedule string) *Sweeper {
	if schedule == "" {
		schedule = "*/10 * * * *"
	}
	return &Sweeper{
		store:    store,
		logger:   logger,
		schedule: schedule,
	}
}

// Start begins the periodic sweep
func (s *Sweeper) Start() error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := c.AddFunc(s.schedule, func() {
		s.Sweep(context.Background())
	}); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.logger.Info("Hold expiry sweeper started", zap.String("schedule", s.schedule))
	return nil
}

// Stop stops the periodic sweep and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep expires every active hold whose expiry has passed, freeing those
// slots for future conflict checks
func (s *Sweeper) Sweep(ctx context.Context) {
	expired, err := s.store.ExpireHolds(ctx, time.Now())
	if err != nil {
		s.logger.Error("Hold expiry sweep failed", zap.Error(err))
		return
	}
	if expired > 0 {
		s.logger.Info("Expired stale holds", zap.Int("count", expired))
	}
}
