package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys for events published after commit.
const (
	EventResultDeclared       = "pool.result.declared"
	EventWithdrawalRequested  = "withdrawal.requested"
	EventWithdrawalStatus     = "withdrawal.status.changed"
	EventTicketPurchased      = "ticket.purchased"
	EventTopUpCredited        = "wallet.topup.credited"
	EventPoolDeclareRequested = "pool.declare.requested"
)

type ResultDeclaredEvent struct {
	PoolID     int64          `json:"pool_id"`
	ResultID   int64          `json:"result_id"`
	PrizePool  int64          `json:"prize_pool"`
	Winners    []WinnerDetail `json:"winners"`
	DeclaredAt time.Time      `json:"declared_at"`
}

type WithdrawalEvent struct {
	WithdrawID    int64          `json:"withdraw_id"`
	UserID        uuid.UUID      `json:"user_id"`
	Amount        int64          `json:"amount"`
	Method        WithdrawMethod `json:"method"`
	Status        WithdrawStatus `json:"status"`
	FailureReason string         `json:"failure_reason,omitempty"`
	PayoutID      string         `json:"payout_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

type TicketPurchasedEvent struct {
	TicketID  string    `json:"ticket_id"`
	UserID    uuid.UUID `json:"user_id"`
	PoolTitle string    `json:"pool_title"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

type TopUpCreditedEvent struct {
	PaymentID int64     `json:"payment_id"`
	UserID    uuid.UUID `json:"user_id"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// DeclareRequest is the queued declaration message body.
type DeclareRequest struct {
	PoolID int64 `json:"pool_id"`
}
