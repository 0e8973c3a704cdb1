package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/luckypool/pool-service/internal/domain"
	"github.com/luckypool/pool-service/internal/ledger"
	"github.com/luckypool/pool-service/internal/selection"
	"github.com/luckypool/pool-service/internal/store"
	"github.com/sirupsen/logrus"
)

// errRollback aborts a transaction that found nothing to do.
var errRollback = errors.New("rollback requested")

// DeclareResult settles a pool at most once. Concurrent or repeated calls for the same
// pool serialize on the pool row lock; all but the first report Skipped.
func (s *Service) DeclareResult(ctx context.Context, poolID int64) (*domain.Declaration, error) {
	log := s.logger.WithFields(logrus.Fields{"component": "result_engine", "pool_id": poolID})

	var (
		out     *domain.Declaration
		winners []selection.Winner
		result  domain.Result
	)
	err := s.repo.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		pool, err := tx.LockPool(ctx, poolID)
		if err != nil {
			return err
		}

		exists, err := tx.ResultExistsForPool(ctx, pool.ID)
		if err != nil {
			return err
		}
		if exists {
			out = &domain.Declaration{Skipped: true, Reason: domain.SkipReasonAlreadyDeclared, PoolID: pool.ID}
			return errRollback
		}

		result = domain.Result{PoolID: pool.ID, PoolTitle: pool.Title, Jackpot: pool.Jackpot, DeclaredAt: s.now()}
		if err := tx.InsertResult(ctx, &result); err != nil {
			return err
		}

		population := s.opts.SettlementPopulation
		participants, err := tx.ListPoolParticipants(ctx, pool.Title, population)
		if err != nil {
			return err
		}

		var dummies []uuid.UUID
		if remaining := population - len(participants); remaining > 0 {
			fetched, err := tx.ListDummyUsers(ctx, remaining*2)
			if err != nil {
				return err
			}
			dummies = takeDummies(fetched, participants, remaining)
		}

		snapshot := make([]uuid.UUID, 0, len(participants)+len(dummies))
		snapshot = append(snapshot, participants...)
		snapshot = append(snapshot, dummies...)
		if err := tx.InsertResultUsers(ctx, result.ID, snapshot); err != nil {
			return err
		}

		tickets, err := tx.ListPoolTickets(ctx, pool.Title)
		if err != nil {
			return err
		}

		candidates := selection.BuildCandidates(s.rng, tickets, participants, dummies)
		winners, err = selection.PickWinners(s.rng, candidates, len(participants), population, s.opts.SelectionMode)
		if err != nil {
			return fmt.Errorf("select winners for pool %d: %w", pool.ID, err)
		}

		rows := make([]domain.ResultWinner, len(winners))
		for i, w := range winners {
			rows[i] = domain.ResultWinner{
				ResultID:    result.ID,
				UserID:      w.UserID,
				Position:    w.Position,
				PrizeAmount: selection.PrizeAmount(pool.Jackpot, w.Position),
			}
		}
		if err := tx.InsertResultWinners(ctx, rows); err != nil {
			return err
		}

		for _, row := range rows {
			if row.PrizeAmount <= 0 {
				continue
			}
			if _, err := ledger.Credit(ctx, tx, row.UserID, row.PrizeAmount); err != nil {
				return fmt.Errorf("credit prize to %s: %w", row.UserID, err)
			}
		}

		out = &domain.Declaration{
			PoolID:         pool.ID,
			ResultID:       result.ID,
			PrizePool:      pool.Jackpot,
			TotalUsers:     len(snapshot),
			RealUsersUsed:  len(participants),
			DummyUsersUsed: len(dummies),
		}
		return nil
	})

	if errors.Is(err, errRollback) {
		log.Info("result already declared; skipping")
		return out, nil
	}
	if err != nil {
		log.WithError(err).Error("result declaration failed")
		return nil, err
	}

	out.Winners = s.winnerDetails(ctx, log, result.Jackpot, winners)
	log.WithFields(logrus.Fields{
		"result_id":  out.ResultID,
		"real_users": out.RealUsersUsed,
		"dummies":    out.DummyUsersUsed,
	}).Info("result declared")

	s.publish(ctx, domain.EventResultDeclared, domain.ResultDeclaredEvent{
		PoolID:     out.PoolID,
		ResultID:   out.ResultID,
		PrizePool:  out.PrizePool,
		Winners:    out.Winners,
		DeclaredAt: result.DeclaredAt,
	})
	return out, nil
}

// takeDummies returns up to n ids from fetched that are not real participants.
func takeDummies(fetched, participants []uuid.UUID, n int) []uuid.UUID {
	exclude := make(map[uuid.UUID]struct{}, len(participants))
	for _, id := range participants {
		exclude[id] = struct{}{}
	}
	out := make([]uuid.UUID, 0, n)
	for _, id := range fetched {
		if len(out) == n {
			break
		}
		if _, skip := exclude[id]; skip {
			continue
		}
		exclude[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// winnerDetails builds the presentation view of the winners after commit. A failed name
// lookup only drops the names.
func (s *Service) winnerDetails(ctx context.Context, log logrus.FieldLogger, jackpot int64, winners []selection.Winner) []domain.WinnerDetail {
	lucky := selection.LuckyNumbers(s.rng, winners)

	ids := make([]uuid.UUID, len(winners))
	for i, w := range winners {
		ids[i] = w.UserID
	}
	users, err := s.repo.FindUsersByIDs(ctx, ids)
	if err != nil {
		log.WithError(err).Warn("winner name lookup failed")
	}

	details := make([]domain.WinnerDetail, len(winners))
	for i, w := range winners {
		details[i] = domain.WinnerDetail{
			Position:    w.Position,
			UserID:      w.UserID,
			Role:        w.Role,
			Score:       w.Score,
			PrizeAmount: selection.PrizeAmount(jackpot, w.Position),
			LuckyNumber: lucky[i],
		}
		if user, ok := users[w.UserID]; ok {
			details[i].FirstName = user.FirstName
			details[i].LastName = user.LastName
		}
	}
	return details
}
