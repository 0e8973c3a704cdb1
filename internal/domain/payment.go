package domain

import (
	"time"

	"github.com/google/uuid"
)

type TopUpStatus string

const (
	TopUpCreated TopUpStatus = "created"
	TopUpPaid    TopUpStatus = "paid"
	TopUpFailed  TopUpStatus = "failed"
)

// Payment maps to the payments table: one wallet top-up order.
type Payment struct {
	ID                int64       `json:"id"`
	UserID            uuid.UUID   `json:"user_id"`
	ProviderOrderID   string      `json:"provider_order_id"`
	ProviderPaymentID *string     `json:"provider_payment_id,omitempty"`
	ProviderSignature *string     `json:"-"`
	Amount            int64       `json:"amount"`
	Currency          string      `json:"currency"`
	Receipt           string      `json:"receipt"`
	Status            TopUpStatus `json:"status"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// VerifyTopUpParams carries the client-side checkout confirmation.
type VerifyTopUpParams struct {
	UserID    uuid.UUID `json:"user_id"`
	OrderID   string    `json:"order_id"`
	PaymentID string    `json:"payment_id"`
	Signature string    `json:"signature"`
}

// TopUpVerification is the result of VerifyTopUp.
type TopUpVerification struct {
	Payment         Payment `json:"payment"`
	AlreadyVerified bool    `json:"already_verified"`
	WalletBalance   int64   `json:"wallet_balance"`
}
