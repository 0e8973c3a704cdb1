package domain

import (
	"time"

	"github.com/google/uuid"
)

type TicketStatus string

const (
	TicketActive  TicketStatus = "active"
	TicketExpired TicketStatus = "expired"
)

type PaymentStatus string

const (
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusSuccess, PaymentStatusPending, PaymentStatusFailed:
		return true
	}
	return false
}

const (
	MinUserNumber = 1
	MaxUserNumber = 100
)

// Ticket maps to the tickets table.
type Ticket struct {
	ID            string        `json:"id"`
	UserID        uuid.UUID     `json:"user_id"`
	PoolTitle     string        `json:"pool_title"`
	UserNumber    int           `json:"user_number"`
	DrawNumber    int           `json:"draw_number"`
	TicketAmount  int64         `json:"ticket_amount"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Status        TicketStatus  `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
}

// BuyTicketParams is the input for a ticket purchase.
type BuyTicketParams struct {
	UserID        uuid.UUID     `json:"user_id"`
	PoolTitle     string        `json:"pool_title"`
	UserNumber    int           `json:"user_number"`
	Amount        int64         `json:"amount"`
	DrawNumber    int           `json:"draw_number"`
	PaymentStatus PaymentStatus `json:"payment_status,omitempty"`
}

// TicketPurchase is the result of a successful purchase.
type TicketPurchase struct {
	Ticket     Ticket `json:"ticket"`
	WalletLeft int64  `json:"wallet_left"`
}
