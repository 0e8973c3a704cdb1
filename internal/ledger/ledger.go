/**
 * @description
 * Package ledger owns wallet balance mutations. It never opens a transaction: callers
 * pass the transaction-scoped WalletStore so the debit or credit commits or rolls back
 * together with the row that caused it (ticket, payment, withdraw request, result winner).
 */
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/luckypool/pool-service/internal/domain"
)

// WalletStore is the transactional wallet access the ledger needs.
// LockWallet must take a row lock (SELECT ... FOR UPDATE) held until the transaction ends.
type WalletStore interface {
	LockWallet(ctx context.Context, userID uuid.UUID) (int64, error)
	AdjustWallet(ctx context.Context, userID uuid.UUID, delta int64) (int64, error)
}

// Debit removes amount from the user's wallet and returns the new balance.
// The balance is checked after the lock is taken.
func Debit(ctx context.Context, ws WalletStore, userID uuid.UUID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.NewValidationError("debit amount must be positive, got %d", amount)
	}
	balance, err := ws.LockWallet(ctx, userID)
	if err != nil {
		return 0, err
	}
	if balance < amount {
		return balance, fmt.Errorf("%w: wallet %d, required %d", domain.ErrInsufficientBalance, balance, amount)
	}
	return ws.AdjustWallet(ctx, userID, -amount)
}

// Credit adds amount to the user's wallet and returns the new balance.
func Credit(ctx context.Context, ws WalletStore, userID uuid.UUID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.NewValidationError("credit amount must be positive, got %d", amount)
	}
	if _, err := ws.LockWallet(ctx, userID); err != nil {
		return 0, err
	}
	return ws.AdjustWallet(ctx, userID, amount)
}
