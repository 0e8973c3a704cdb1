/**
 * @description
 * PostgreSQL implementation of Repository using pgx. Lock-taking reads use
 * SELECT ... FOR UPDATE inside the transaction opened by InTx; guarded updates use
 * the affected-row count as the concurrency check.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5, pgxpool: PostgreSQL driver and connection pool.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/luckypool/pool-service/internal/domain"
)

// PostgresRepository is the pgx-backed Repository.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InTx runs fn in a transaction, committing when fn returns nil.
func (r *PostgresRepository) InTx(ctx context.Context, fn TxFunc) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return wrapErr("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapErr("commit transaction", err)
	}
	return nil
}

const userColumns = `id, first_name, last_name, COALESCE(email, ''), role, wallet, created_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(&user.ID, &user.FirstName, &user.LastName, &user.Email, &user.Role, &user.Wallet, &user.CreatedAt); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindUserByID retrieves a user by id.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, wrapErr("find user", err)
	}
	return user, nil
}

// AdminExists reports whether adminID is a registered administrator.
func (r *PostgresRepository) AdminExists(ctx context.Context, adminID uuid.UUID) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM admins WHERE id = $1)`, adminID).Scan(&exists); err != nil {
		return false, wrapErr("check admin", err)
	}
	return exists, nil
}

// FindUsersByIDs loads users by id. Missing ids are absent from the map.
func (r *PostgresRepository) FindUsersByIDs(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]domain.User, error) {
	users := make(map[uuid.UUID]domain.User, len(userIDs))
	if len(userIDs) == 0 {
		return users, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1::uuid[])`, uuidStrings(userIDs))
	if err != nil {
		return nil, wrapErr("find users", err)
	}
	defer rows.Close()

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, wrapErr("scan user", err)
		}
		users[user.ID] = *user
	}
	return users, wrapErr("iterate users", rows.Err())
}

const poolColumns = `id, title, jackpot, start_at, expire_at, status, created_at`

func scanPool(row pgx.Row) (*domain.Pool, error) {
	var pool domain.Pool
	if err := row.Scan(&pool.ID, &pool.Title, &pool.Jackpot, &pool.StartAt, &pool.ExpireAt, &pool.Status, &pool.CreatedAt); err != nil {
		return nil, err
	}
	return &pool, nil
}

// CreatePool inserts a pool and fills in its id.
func (r *PostgresRepository) CreatePool(ctx context.Context, pool *domain.Pool) error {
	query := `
		INSERT INTO pools (title, jackpot, start_at, expire_at, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query, pool.Title, pool.Jackpot, pool.StartAt, pool.ExpireAt, pool.Status).Scan(&pool.ID, &pool.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPoolExists
		}
		return wrapErr("create pool", err)
	}
	return nil
}

// FindPoolByTitle retrieves a pool by its unique title.
func (r *PostgresRepository) FindPoolByTitle(ctx context.Context, title string) (*domain.Pool, error) {
	pool, err := scanPool(r.db.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE title = $1`, title))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPoolNotFound
		}
		return nil, wrapErr("find pool by title", err)
	}
	return pool, nil
}

// ActivateStartedPools moves upcoming pools whose start time has passed to active.
func (r *PostgresRepository) ActivateStartedPools(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE pools SET status = 'active'
		WHERE status = 'upcoming' AND start_at <= $1 AND expire_at > $1
	`, now)
	if err != nil {
		return 0, wrapErr("activate pools", err)
	}
	return tag.RowsAffected(), nil
}

// ExpirePools marks every pool past its expiry as expired.
func (r *PostgresRepository) ExpirePools(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE pools SET status = 'expired'
		WHERE expire_at <= $1 AND status <> 'expired'
	`, now)
	if err != nil {
		return 0, wrapErr("expire pools", err)
	}
	return tag.RowsAffected(), nil
}

// ListExpiredPoolsWithoutResult returns expired pools that still need settlement.
func (r *PostgresRepository) ListExpiredPoolsWithoutResult(ctx context.Context) ([]domain.Pool, error) {
	query := `
		SELECT p.id, p.title, p.jackpot, p.start_at, p.expire_at, p.status, p.created_at
		FROM pools p
		LEFT JOIN results r ON r.pool_id = p.id
		WHERE p.status = 'expired' AND r.id IS NULL
		ORDER BY p.expire_at ASC, p.id ASC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, wrapErr("list unsettled pools", err)
	}
	defer rows.Close()

	var pools []domain.Pool
	for rows.Next() {
		pool, err := scanPool(rows)
		if err != nil {
			return nil, wrapErr("scan pool", err)
		}
		pools = append(pools, *pool)
	}
	return pools, wrapErr("iterate pools", rows.Err())
}

const withdrawColumns = `id, user_id, amount, method, COALESCE(upi_id, ''), COALESCE(bank_account, ''),
	COALESCE(ifsc, ''), COALESCE(account_holder, ''), status, admin_note, approved_by, approved_at,
	rejected_at, failure_reason, payout_id, created_at, updated_at`

func scanWithdrawRequest(row pgx.Row) (*domain.WithdrawRequest, error) {
	var req domain.WithdrawRequest
	err := row.Scan(
		&req.ID, &req.UserID, &req.Amount, &req.Method,
		&req.Destination.UPIID, &req.Destination.BankAccount, &req.Destination.IFSC, &req.Destination.AccountHolder,
		&req.Status, &req.AdminNote, &req.ApprovedBy, &req.ApprovedAt, &req.RejectedAt,
		&req.FailureReason, &req.PayoutID, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// CreateWithdrawRequest inserts a withdraw request and fills in its id and timestamps.
func (r *PostgresRepository) CreateWithdrawRequest(ctx context.Context, req *domain.WithdrawRequest) error {
	query := `
		INSERT INTO withdraw_requests (user_id, amount, method, upi_id, bank_account, ifsc, account_holder, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		req.UserID, req.Amount, req.Method,
		nullIfEmpty(req.Destination.UPIID), nullIfEmpty(req.Destination.BankAccount),
		nullIfEmpty(req.Destination.IFSC), nullIfEmpty(req.Destination.AccountHolder),
		req.Status,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return wrapErr("create withdraw request", err)
	}
	return nil
}

// FindWithdrawRequestByID retrieves a withdraw request without locking it.
func (r *PostgresRepository) FindWithdrawRequestByID(ctx context.Context, id int64) (*domain.WithdrawRequest, error) {
	req, err := scanWithdrawRequest(r.db.QueryRow(ctx, `SELECT `+withdrawColumns+` FROM withdraw_requests WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWithdrawRequestNotFound
		}
		return nil, wrapErr("find withdraw request", err)
	}
	return req, nil
}

// DecideWithdrawRequest applies an admin decision if the request is still PENDING.
// It reports false when a concurrent decision got there first.
func (r *PostgresRepository) DecideWithdrawRequest(ctx context.Context, params domain.ApproveWithdrawParams, decidedAt time.Time) (bool, error) {
	query := `
		UPDATE withdraw_requests
		SET status = $2::text,
			admin_note = $3,
			approved_by = $4,
			approved_at = CASE WHEN $2::text = 'APPROVED' THEN $5::timestamptz ELSE approved_at END,
			rejected_at = CASE WHEN $2::text = 'REJECTED' THEN $5::timestamptz ELSE rejected_at END,
			updated_at = $5::timestamptz
		WHERE id = $1 AND status = 'PENDING'
	`
	tag, err := r.db.Exec(ctx, query, params.WithdrawID, string(params.Decision), nullIfEmpty(params.AdminNote), params.AdminID, decidedAt)
	if err != nil {
		return false, wrapErr("decide withdraw request", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CreatePayment records a newly created top-up order.
func (r *PostgresRepository) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (user_id, provider_order_id, amount, currency, receipt, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, payment.UserID, payment.ProviderOrderID, payment.Amount, payment.Currency, payment.Receipt, payment.Status).
		Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return wrapErr("create payment", err)
	}
	return nil
}

// MarkPaymentFailed flags the caller's unverified order as failed. Paid orders and
// orders of other users are left untouched.
func (r *PostgresRepository) MarkPaymentFailed(ctx context.Context, userID uuid.UUID, orderID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE payments SET status = 'failed', updated_at = NOW()
		WHERE provider_order_id = $1 AND user_id = $2 AND status = 'created'
	`, orderID, userID)
	return wrapErr("mark payment failed", err)
}

func nullIfEmpty(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

var _ Repository = (*PostgresRepository)(nil)

// errNoRowsAs maps pgx.ErrNoRows to notFound and wraps everything else.
func errNoRowsAs(op string, err error, notFound error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	return wrapErr(op, err)
}

func rowsAffectedOne(op string, affected int64, notFound error) error {
	if affected == 0 {
		return notFound
	}
	if affected != 1 {
		return fmt.Errorf("%s: expected 1 row, affected %d", op, affected)
	}
	return nil
}
