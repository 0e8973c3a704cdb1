/**
 * @description
 * Cron scheduler setup for the pool maintenance job.
 */
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron     *cron.Cron
	jobs     *Jobs
	logger   logrus.FieldLogger
	schedule string
}

// NewScheduler creates a new scheduler instance. Runs never overlap and a panicking run
// is recovered and logged.
func NewScheduler(jobs *Jobs, logger logrus.FieldLogger, schedule, timezone string) (*Scheduler, error) {
	location := time.UTC
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("load scheduler timezone %q: %w", timezone, err)
		}
		location = loc
	}

	cronLogger := cron.VerbosePrintfLogger(logger.WithField("component", "cron"))
	c := cron.New(
		cron.WithLocation(location),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	return &Scheduler{
		cron:     c,
		jobs:     jobs,
		logger:   logger,
		schedule: schedule,
	}, nil
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.jobs.RunPoolMaintenance); err != nil {
		return fmt.Errorf("schedule pool maintenance job %q: %w", s.schedule, err)
	}
	s.logger.WithField("schedule", s.schedule).Info("scheduled pool maintenance job")

	s.cron.Start()
	return nil
}

// Entries exposes the registered cron entries.
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

// Stop gracefully stops the cron scheduler. The returned context is done once running
// jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
