package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/luckypool/pool-service/internal/domain"
	"github.com/luckypool/pool-service/internal/ledger"
	"github.com/luckypool/pool-service/internal/store"
	"github.com/sirupsen/logrus"
)

// BuyTicket debits the wallet and issues one ticket with a unique id, atomically.
// Only an id collision is retried; every other failure rolls back.
func (s *Service) BuyTicket(ctx context.Context, params domain.BuyTicketParams) (*domain.TicketPurchase, error) {
	params.PoolTitle = strings.TrimSpace(params.PoolTitle)
	if params.PaymentStatus == "" {
		params.PaymentStatus = domain.PaymentStatusSuccess
	}
	if err := validateTicket(params); err != nil {
		return nil, err
	}
	if err := s.checkRateLimit(ctx, ticketPurchaseRule.withLimit(s.opts.TicketRateLimit), params.UserID.String()); err != nil {
		return nil, err
	}

	now := s.now()
	pool, err := s.repo.FindPoolByTitle(ctx, params.PoolTitle)
	if err != nil {
		return nil, err
	}
	if pool.Status == domain.PoolExpired || domain.DerivePoolStatus(now, pool.StartAt, pool.ExpireAt) == domain.PoolExpired {
		return nil, domain.ErrPoolClosed
	}

	log := s.logger.WithFields(logrus.Fields{"component": "ticket_engine", "user_id": params.UserID, "pool_title": pool.Title})

	var purchase domain.TicketPurchase
	err = s.repo.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		balance, err := tx.LockWallet(ctx, params.UserID)
		if err != nil {
			return err
		}
		if balance < params.Amount {
			return fmt.Errorf("%w: wallet %d, ticket costs %d", domain.ErrInsufficientBalance, balance, params.Amount)
		}

		ticket := domain.Ticket{
			UserID:        params.UserID,
			PoolTitle:     pool.Title,
			UserNumber:    params.UserNumber,
			DrawNumber:    params.DrawNumber,
			TicketAmount:  params.Amount,
			PaymentStatus: params.PaymentStatus,
			Status:        domain.TicketActive,
		}
		for attempt := 1; ; attempt++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			ticket.ID = s.ticketID(pool.Title, now)
			err := tx.InsertTicket(ctx, &ticket)
			if errors.Is(err, store.ErrDuplicateTicketID) {
				log.WithFields(logrus.Fields{"ticket_id": ticket.ID, "attempt": attempt}).Debug("ticket id collision; regenerating")
				continue
			}
			if err != nil {
				return err
			}
			break
		}

		left, err := ledger.Debit(ctx, tx, params.UserID, params.Amount)
		if err != nil {
			return err
		}
		purchase = domain.TicketPurchase{Ticket: ticket, WalletLeft: left}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithField("ticket_id", purchase.Ticket.ID).Info("ticket purchased")
	s.publish(ctx, domain.EventTicketPurchased, domain.TicketPurchasedEvent{
		TicketID:  purchase.Ticket.ID,
		UserID:    params.UserID,
		PoolTitle: pool.Title,
		Amount:    params.Amount,
		Timestamp: now,
	})
	return &purchase, nil
}

func validateTicket(params domain.BuyTicketParams) error {
	switch {
	case params.PoolTitle == "":
		return domain.NewValidationError("pool title is required")
	case params.UserNumber < domain.MinUserNumber || params.UserNumber > domain.MaxUserNumber:
		return domain.NewValidationError("user number must be between %d and %d", domain.MinUserNumber, domain.MaxUserNumber)
	case params.Amount <= 0:
		return domain.NewValidationError("ticket amount must be positive")
	case params.DrawNumber < 1:
		return domain.NewValidationError("draw number must be at least 1")
	case !params.PaymentStatus.Valid():
		return domain.NewValidationError("unknown payment status %q", params.PaymentStatus)
	}
	return nil
}

// ticketID builds LP-<POOLTITLE>-<1000..9999>-<YYYYMMDD>, dated in UTC.
func (s *Service) ticketID(poolTitle string, now time.Time) string {
	normalized := strings.ToUpper(strings.Join(strings.Fields(poolTitle), ""))
	return fmt.Sprintf("LP-%s-%d-%s", normalized, 1000+s.rng.IntN(9000), now.UTC().Format("20060102"))
}
