/**
 * @description
 * Scheduled job implementations for the pool scheduler.
 */
package scheduler

import (
	"context"
	"time"

	"github.com/luckypool/pool-service/internal/app"
	"github.com/sirupsen/logrus"
)

// Maintainer runs one maintenance cycle. *app.Service implements it.
type Maintainer interface {
	RunMaintenance(ctx context.Context) (app.MaintenanceReport, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	maintainer Maintainer
	logger     logrus.FieldLogger
	timeout    time.Duration
}

// NewJobs creates a new Jobs runner.
func NewJobs(maintainer Maintainer, logger logrus.FieldLogger) *Jobs {
	return &Jobs{
		maintainer: maintainer,
		logger:     logger.WithField("component", "scheduler"),
		timeout:    30 * time.Minute,
	}
}

// RunPoolMaintenance expires pools, declares their results and purges settled pools.
func (j *Jobs) RunPoolMaintenance() {
	j.logger.Info("starting pool maintenance job")
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	started := time.Now()
	report, err := j.maintainer.RunMaintenance(ctx)
	fields := logrus.Fields{
		"activated":       report.Expirations.Activated,
		"expired":         report.Expirations.Expired,
		"declared":        report.Declarations.Declared,
		"skipped":         report.Declarations.Skipped,
		"failed":          report.Declarations.Failed,
		"pools_deleted":   report.Purge.PoolsDeleted,
		"tickets_expired": report.Purge.TicketsExpired,
		"duration":        time.Since(started).String(),
	}
	if err != nil {
		j.logger.WithFields(fields).WithError(err).Error("pool maintenance job failed")
		return
	}
	j.logger.WithFields(fields).Info("pool maintenance job finished")
}
