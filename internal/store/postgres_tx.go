package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/luckypool/pool-service/internal/domain"
)

type pgTx struct {
	tx pgx.Tx
}

var _ Tx = (*pgTx)(nil)

func (t *pgTx) LockWallet(ctx context.Context, userID uuid.UUID) (int64, error) {
	var wallet int64
	if err := t.tx.QueryRow(ctx, `SELECT wallet FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&wallet); err != nil {
		return 0, errNoRowsAs("lock wallet", err, domain.ErrUserNotFound)
	}
	return wallet, nil
}

func (t *pgTx) AdjustWallet(ctx context.Context, userID uuid.UUID, delta int64) (int64, error) {
	var wallet int64
	err := t.tx.QueryRow(ctx, `UPDATE users SET wallet = wallet + $2 WHERE id = $1 RETURNING wallet`, userID, delta).Scan(&wallet)
	if err != nil {
		return 0, errNoRowsAs("adjust wallet", err, domain.ErrUserNotFound)
	}
	return wallet, nil
}

func (t *pgTx) LockUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := scanUser(t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, userID))
	if err != nil {
		return nil, errNoRowsAs("lock user", err, domain.ErrUserNotFound)
	}
	return user, nil
}

func (t *pgTx) LockPool(ctx context.Context, poolID int64) (*domain.Pool, error) {
	pool, err := scanPool(t.tx.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE id = $1 FOR UPDATE`, poolID))
	if err != nil {
		return nil, errNoRowsAs("lock pool", err, domain.ErrPoolNotFound)
	}
	return pool, nil
}

func (t *pgTx) ResultExistsForPool(ctx context.Context, poolID int64) (bool, error) {
	var exists bool
	if err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM results WHERE pool_id = $1)`, poolID).Scan(&exists); err != nil {
		return false, wrapErr("check result", err)
	}
	return exists, nil
}

func (t *pgTx) InsertResult(ctx context.Context, result *domain.Result) error {
	query := `
		INSERT INTO results (pool_id, pool_title, jackpot, declared_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := t.tx.QueryRow(ctx, query, result.PoolID, result.PoolTitle, result.Jackpot, result.DeclaredAt).Scan(&result.ID); err != nil {
		return wrapErr("insert result", err)
	}
	return nil
}

// ListPoolParticipants returns distinct ticket holders of a pool, earliest buyers first.
func (t *pgTx) ListPoolParticipants(ctx context.Context, poolTitle string, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT user_id
		FROM tickets
		WHERE pool_title = $1 AND status = 'active'
		GROUP BY user_id
		ORDER BY MIN(created_at) ASC, user_id ASC
		LIMIT $2
	`
	return t.queryUUIDs(ctx, "list participants", query, poolTitle, limit)
}

func (t *pgTx) ListDummyUsers(ctx context.Context, limit int) ([]uuid.UUID, error) {
	query := `SELECT id FROM users WHERE role = 'dummy_user' ORDER BY random() LIMIT $1`
	return t.queryUUIDs(ctx, "list dummy users", query, limit)
}

func (t *pgTx) queryUUIDs(ctx context.Context, op, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr(op, err)
		}
		ids = append(ids, id)
	}
	return ids, wrapErr(op, rows.Err())
}

func (t *pgTx) InsertResultUsers(ctx context.Context, resultID int64, userIDs []uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	query := `
		INSERT INTO result_users (result_id, user_id)
		SELECT $1, unnest($2::uuid[])
	`
	_, err := t.tx.Exec(ctx, query, resultID, uuidStrings(userIDs))
	return wrapErr("insert result users", err)
}

func (t *pgTx) ListPoolTickets(ctx context.Context, poolTitle string) ([]domain.Ticket, error) {
	query := `
		SELECT id, user_id, pool_title, user_number, draw_number, ticket_amount, payment_status, status, created_at
		FROM tickets
		WHERE pool_title = $1 AND status = 'active'
		ORDER BY created_at ASC, id ASC
	`
	rows, err := t.tx.Query(ctx, query, poolTitle)
	if err != nil {
		return nil, wrapErr("list pool tickets", err)
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(&ticket.ID, &ticket.UserID, &ticket.PoolTitle, &ticket.UserNumber, &ticket.DrawNumber,
			&ticket.TicketAmount, &ticket.PaymentStatus, &ticket.Status, &ticket.CreatedAt); err != nil {
			return nil, wrapErr("scan ticket", err)
		}
		tickets = append(tickets, ticket)
	}
	return tickets, wrapErr("iterate tickets", rows.Err())
}

func (t *pgTx) InsertResultWinners(ctx context.Context, winners []domain.ResultWinner) error {
	batch := &pgx.Batch{}
	for _, w := range winners {
		batch.Queue(`
			INSERT INTO result_winners (result_id, user_id, position, prize_amount)
			VALUES ($1, $2, $3, $4)
		`, w.ResultID, w.UserID, w.Position, w.PrizeAmount)
	}

	br := t.tx.SendBatch(ctx, batch)
	for i := range winners {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return wrapErr(fmt.Sprintf("insert result winner %d", i+1), err)
		}
	}
	return wrapErr("close winner batch", br.Close())
}

// PurgeSettledPools expires the tickets of, then deletes, every expired pool that has a result.
// The join against results is the safe-delete guard.
func (t *pgTx) PurgeSettledPools(ctx context.Context) (domain.PurgeSummary, error) {
	var summary domain.PurgeSummary

	tag, err := t.tx.Exec(ctx, `
		UPDATE tickets tk
		SET status = 'expired'
		FROM pools p
		JOIN results r ON r.pool_id = p.id
		WHERE p.status = 'expired' AND tk.pool_title = p.title AND tk.status <> 'expired'
	`)
	if err != nil {
		return summary, wrapErr("expire settled tickets", err)
	}
	summary.TicketsExpired = tag.RowsAffected()

	tag, err = t.tx.Exec(ctx, `
		DELETE FROM pools p
		USING results r
		WHERE r.pool_id = p.id AND p.status = 'expired'
	`)
	if err != nil {
		return summary, wrapErr("purge settled pools", err)
	}
	summary.PoolsDeleted = tag.RowsAffected()
	return summary, nil
}

// InsertTicket inserts a ticket. A taken id yields ErrDuplicateTicketID without
// aborting the surrounding transaction.
func (t *pgTx) InsertTicket(ctx context.Context, ticket *domain.Ticket) error {
	query := `
		INSERT INTO tickets (id, user_id, pool_title, user_number, draw_number, ticket_amount, payment_status, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at
	`
	err := t.tx.QueryRow(ctx, query, ticket.ID, ticket.UserID, ticket.PoolTitle, ticket.UserNumber, ticket.DrawNumber,
		ticket.TicketAmount, ticket.PaymentStatus, ticket.Status).Scan(&ticket.CreatedAt)
	if err != nil {
		return errNoRowsAs("insert ticket", err, ErrDuplicateTicketID)
	}
	return nil
}

func (t *pgTx) LockWithdrawRequest(ctx context.Context, id int64) (*domain.WithdrawRequest, error) {
	req, err := scanWithdrawRequest(t.tx.QueryRow(ctx, `SELECT `+withdrawColumns+` FROM withdraw_requests WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, errNoRowsAs("lock withdraw request", err, domain.ErrWithdrawRequestNotFound)
	}
	return req, nil
}

func (t *pgTx) UpdateWithdrawStatus(ctx context.Context, id int64, from domain.WithdrawStatus, update domain.WithdrawStatusUpdate) error {
	query := `
		UPDATE withdraw_requests
		SET status = $2,
			failure_reason = COALESCE($3, failure_reason),
			payout_id = COALESCE($4, payout_id),
			updated_at = NOW()
		WHERE id = $1 AND status = $5
	`
	tag, err := t.tx.Exec(ctx, query, id, string(update.Status), update.FailureReason, update.PayoutID, string(from))
	if err != nil {
		return wrapErr("update withdraw status", err)
	}
	stale := fmt.Errorf("%w: withdraw request %d is no longer %s", domain.ErrInvalidState, id, from)
	return rowsAffectedOne("update withdraw status", tag.RowsAffected(), stale)
}

func (t *pgTx) LockPaymentByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	query := `
		SELECT id, user_id, provider_order_id, provider_payment_id, provider_signature, amount, currency, receipt, status, created_at, updated_at
		FROM payments
		WHERE provider_order_id = $1
		FOR UPDATE
	`
	var p domain.Payment
	err := t.tx.QueryRow(ctx, query, orderID).Scan(&p.ID, &p.UserID, &p.ProviderOrderID, &p.ProviderPaymentID, &p.ProviderSignature,
		&p.Amount, &p.Currency, &p.Receipt, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, errNoRowsAs("lock payment", err, domain.ErrPaymentNotFound)
	}
	return &p, nil
}

func (t *pgTx) MarkPaymentPaid(ctx context.Context, id int64, providerPaymentID, signature string) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE payments
		SET status = 'paid', provider_payment_id = $2, provider_signature = $3, updated_at = NOW()
		WHERE id = $1
	`, id, providerPaymentID, signature)
	if err != nil {
		return wrapErr("mark payment paid", err)
	}
	return rowsAffectedOne("mark payment paid", tag.RowsAffected(), domain.ErrPaymentNotFound)
}
