package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/luckypool/pool-service/internal/domain"
	"github.com/luckypool/pool-service/internal/store"
	"github.com/sirupsen/logrus"
)

// CreatePool registers a new pool with its clock-derived status.
func (s *Service) CreatePool(ctx context.Context, params domain.CreatePoolParams) (*domain.Pool, error) {
	title := strings.TrimSpace(params.Title)
	switch {
	case title == "":
		return nil, domain.NewValidationError("pool title is required")
	case params.Jackpot < 0:
		return nil, domain.NewValidationError("jackpot must not be negative")
	case params.StartAt.IsZero() || params.ExpireAt.IsZero():
		return nil, domain.NewValidationError("start_at and expire_at are required")
	case !params.StartAt.Before(params.ExpireAt):
		return nil, domain.NewValidationError("start_at must be before expire_at")
	}

	pool := &domain.Pool{
		Title:    title,
		Jackpot:  params.Jackpot,
		StartAt:  params.StartAt,
		ExpireAt: params.ExpireAt,
		Status:   domain.DerivePoolStatus(s.now(), params.StartAt, params.ExpireAt),
	}
	if err := s.repo.CreatePool(ctx, pool); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"component": "pool_lifecycle", "pool_id": pool.ID, "status": pool.Status}).Info("pool created")
	s.invalidatePools(ctx)
	return pool, nil
}

// AdvanceExpirations activates started pools and expires pools past their expiry.
func (s *Service) AdvanceExpirations(ctx context.Context) (domain.ExpirationSummary, error) {
	var summary domain.ExpirationSummary
	now := s.now()

	activated, err := s.repo.ActivateStartedPools(ctx, now)
	if err != nil {
		return summary, err
	}
	summary.Activated = activated

	expired, err := s.repo.ExpirePools(ctx, now)
	if err != nil {
		return summary, err
	}
	summary.Expired = expired

	if activated > 0 || expired > 0 {
		s.invalidatePools(ctx)
	}
	s.logger.WithFields(logrus.Fields{
		"component": "pool_lifecycle",
		"activated": activated,
		"expired":   expired,
	}).Info("pool statuses advanced")
	return summary, nil
}

// DeclareResultsForAllExpiredPools declares every expired pool that has no result yet.
// One pool's failure is counted and logged; the rest still run.
func (s *Service) DeclareResultsForAllExpiredPools(ctx context.Context) (domain.DeclarationBatch, error) {
	var batch domain.DeclarationBatch
	log := s.logger.WithField("component", "pool_lifecycle")

	pools, err := s.repo.ListExpiredPoolsWithoutResult(ctx)
	if err != nil {
		return batch, err
	}

	for _, pool := range pools {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		batch.Processed++

		declaration, err := s.DeclareResult(ctx, pool.ID)
		switch {
		case err != nil:
			batch.Failed++
			log.WithFields(logrus.Fields{"pool_id": pool.ID, "title": pool.Title}).WithError(err).Error("pool declaration failed")
		case declaration.Skipped:
			batch.Skipped++
		default:
			batch.Declared++
		}
	}

	log.WithFields(logrus.Fields{
		"processed": batch.Processed,
		"declared":  batch.Declared,
		"skipped":   batch.Skipped,
		"failed":    batch.Failed,
	}).Info("expired pool declaration pass finished")
	return batch, nil
}

// PurgeSettled deletes expired pools that already have a result. Pools without a
// result are never touched.
func (s *Service) PurgeSettled(ctx context.Context) (domain.PurgeSummary, error) {
	var summary domain.PurgeSummary
	err := s.repo.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		summary, err = tx.PurgeSettledPools(ctx)
		return err
	})
	if err != nil {
		return domain.PurgeSummary{}, err
	}

	if summary.PoolsDeleted > 0 {
		s.invalidatePools(ctx)
	}
	s.logger.WithFields(logrus.Fields{
		"component":       "pool_lifecycle",
		"pools_deleted":   summary.PoolsDeleted,
		"tickets_expired": summary.TicketsExpired,
	}).Info("settled pools purged")
	return summary, nil
}

// MaintenanceReport is the outcome of one maintenance cycle.
type MaintenanceReport struct {
	Expirations  domain.ExpirationSummary `json:"expirations"`
	Declarations domain.DeclarationBatch  `json:"declarations"`
	Purge        domain.PurgeSummary      `json:"purge"`
}

// RunMaintenance runs expire, declare and purge in that order, stopping at the first
// step that fails so a purge never follows a failed pass.
func (s *Service) RunMaintenance(ctx context.Context) (MaintenanceReport, error) {
	var report MaintenanceReport
	var err error

	if report.Expirations, err = s.AdvanceExpirations(ctx); err != nil {
		return report, fmt.Errorf("advance expirations: %w", err)
	}
	if report.Declarations, err = s.DeclareResultsForAllExpiredPools(ctx); err != nil {
		return report, fmt.Errorf("declare results: %w", err)
	}
	if report.Purge, err = s.PurgeSettled(ctx); err != nil {
		return report, fmt.Errorf("purge settled: %w", err)
	}
	return report, nil
}
