// Package jobs runs periodic maintenance for the account server on a cron
// schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dmitrijs2005/accountkeeper/internal/logging"
)

// TokenPurger deletes reset tokens past their expiry.
type TokenPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Scheduler owns the cron runner and the registered jobs.
type Scheduler struct {
	cron   *cron.Cron
	purger TokenPurger
	logger logging.Logger
}

// NewScheduler registers the token purge job on schedule. Any expression accepted
// by cron's standard parser works, including descriptors like "@hourly".
func NewScheduler(purger TokenPurger, l logging.Logger, schedule string) (*Scheduler, error) {
	s := &Scheduler{purger: purger, logger: l.With("module", "jobs")}

	cl := cronLogger{l: s.logger}
	s.cron = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	if _, err := s.cron.AddFunc(schedule, s.purgeExpiredTokens); err != nil {
		return nil, fmt.Errorf("schedule token purge %q: %w", schedule, err)
	}
	s.logger.Info(context.Background(), "scheduled token purge job", "schedule", schedule)

	return s, nil
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()

	s.logger.Info(context.Background(), "Stopping scheduler...")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) purgeExpiredTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		s.logger.Error(ctx, "token purge failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info(ctx, "purged expired reset tokens", "count", n)
	}
}

// cronLogger adapts logging.Logger to cron.Logger.
type cronLogger struct {
	l logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(context.Background(), msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(context.Background(), msg, append(keysAndValues, "error", err)...)
}
