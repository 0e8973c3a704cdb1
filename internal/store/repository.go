/**
 * @description
 * This file defines the Repository and Tx interfaces, the data access contract of the
 * pool service. Operations that must hold row locks (wallets, pools, withdraw requests,
 * payments) are only reachable through a Tx handed out by Repository.InTx, so every
 * wallet mutation happens inside the transaction that writes its causal row.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: User identifiers.
 * - internal/domain: Domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/luckypool/pool-service/internal/domain"
)

// ErrDuplicateTicketID is returned by Tx.InsertTicket when the ticket id is already taken.
var ErrDuplicateTicketID = errors.New("duplicate ticket id")

// TxFunc runs inside a transaction. Returning an error rolls the transaction back.
type TxFunc func(ctx context.Context, tx Tx) error

// Repository defines the non-locking reads and single-statement writes, plus the
// transaction entry point.
type Repository interface {
	InTx(ctx context.Context, fn TxFunc) error

	// Users
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	AdminExists(ctx context.Context, adminID uuid.UUID) (bool, error)
	FindUsersByIDs(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]domain.User, error)

	// Pools
	CreatePool(ctx context.Context, pool *domain.Pool) error
	FindPoolByTitle(ctx context.Context, title string) (*domain.Pool, error)
	ActivateStartedPools(ctx context.Context, now time.Time) (int64, error)
	ExpirePools(ctx context.Context, now time.Time) (int64, error)
	ListExpiredPoolsWithoutResult(ctx context.Context) ([]domain.Pool, error)

	// Withdrawals
	CreateWithdrawRequest(ctx context.Context, req *domain.WithdrawRequest) error
	FindWithdrawRequestByID(ctx context.Context, id int64) (*domain.WithdrawRequest, error)
	DecideWithdrawRequest(ctx context.Context, params domain.ApproveWithdrawParams, decidedAt time.Time) (bool, error)

	// Top-ups
	CreatePayment(ctx context.Context, payment *domain.Payment) error
	MarkPaymentFailed(ctx context.Context, userID uuid.UUID, orderID string) error
}

// Tx is the set of operations available inside a transaction.
type Tx interface {
	// Wallet. LockWallet takes the user row lock and returns the current balance.
	LockWallet(ctx context.Context, userID uuid.UUID) (int64, error)
	AdjustWallet(ctx context.Context, userID uuid.UUID, delta int64) (int64, error)
	LockUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)

	// Settlement
	LockPool(ctx context.Context, poolID int64) (*domain.Pool, error)
	ResultExistsForPool(ctx context.Context, poolID int64) (bool, error)
	InsertResult(ctx context.Context, result *domain.Result) error
	ListPoolParticipants(ctx context.Context, poolTitle string, limit int) ([]uuid.UUID, error)
	ListDummyUsers(ctx context.Context, limit int) ([]uuid.UUID, error)
	InsertResultUsers(ctx context.Context, resultID int64, userIDs []uuid.UUID) error
	ListPoolTickets(ctx context.Context, poolTitle string) ([]domain.Ticket, error)
	InsertResultWinners(ctx context.Context, winners []domain.ResultWinner) error
	PurgeSettledPools(ctx context.Context) (domain.PurgeSummary, error)

	// Tickets
	InsertTicket(ctx context.Context, ticket *domain.Ticket) error

	// Withdrawals
	LockWithdrawRequest(ctx context.Context, id int64) (*domain.WithdrawRequest, error)
	// UpdateWithdrawStatus writes update only while the request is still in from.
	UpdateWithdrawStatus(ctx context.Context, id int64, from domain.WithdrawStatus, update domain.WithdrawStatusUpdate) error

	// Top-ups
	LockPaymentByOrderID(ctx context.Context, orderID string) (*domain.Payment, error)
	MarkPaymentPaid(ctx context.Context, id int64, providerPaymentID, signature string) error
}
