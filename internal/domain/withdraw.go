package domain

import (
	"time"

	"github.com/google/uuid"
)

type WithdrawMethod string

const (
	WithdrawUPI  WithdrawMethod = "upi"
	WithdrawBank WithdrawMethod = "bank"
)

func (m WithdrawMethod) Valid() bool {
	return m == WithdrawUPI || m == WithdrawBank
}

// WithdrawStatus is the withdrawal state machine.
type WithdrawStatus string

const (
	WithdrawPending    WithdrawStatus = "PENDING"
	WithdrawApproved   WithdrawStatus = "APPROVED"
	WithdrawRejected   WithdrawStatus = "REJECTED"
	WithdrawProcessing WithdrawStatus = "PROCESSING"
	WithdrawSuccess    WithdrawStatus = "SUCCESS"
	WithdrawFailed     WithdrawStatus = "FAILED"
)

// CanTransitionTo reports whether next is a legal successor of s. REJECTED, SUCCESS
// and FAILED have no successors.
func (s WithdrawStatus) CanTransitionTo(next WithdrawStatus) bool {
	switch s {
	case WithdrawPending:
		return next == WithdrawApproved || next == WithdrawRejected
	case WithdrawApproved:
		// FAILED directly from APPROVED is the insufficient-balance re-check.
		return next == WithdrawProcessing || next == WithdrawFailed || next == WithdrawSuccess
	case WithdrawProcessing:
		return next == WithdrawSuccess || next == WithdrawFailed
	}
	return false
}

// WithdrawDestination holds the method-specific payout target.
type WithdrawDestination struct {
	UPIID         string `json:"upi_id,omitempty"`
	BankAccount   string `json:"bank_account,omitempty"`
	IFSC          string `json:"ifsc,omitempty"`
	AccountHolder string `json:"account_holder,omitempty"`
}

// WithdrawRequest maps to the withdraw_requests table.
type WithdrawRequest struct {
	ID            int64               `json:"id"`
	UserID        uuid.UUID           `json:"user_id"`
	Amount        int64               `json:"amount"`
	Method        WithdrawMethod      `json:"method"`
	Destination   WithdrawDestination `json:"destination"`
	Status        WithdrawStatus      `json:"status"`
	AdminNote     *string             `json:"admin_note,omitempty"`
	ApprovedBy    *uuid.UUID          `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time          `json:"approved_at,omitempty"`
	RejectedAt    *time.Time          `json:"rejected_at,omitempty"`
	FailureReason *string             `json:"failure_reason,omitempty"`
	PayoutID      *string             `json:"payout_id,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// RequestWithdrawParams is the user-facing withdrawal request input.
type RequestWithdrawParams struct {
	UserID      uuid.UUID           `json:"user_id"`
	Amount      int64               `json:"amount"`
	Method      WithdrawMethod      `json:"method"`
	Destination WithdrawDestination `json:"destination"`
}

// ApproveWithdrawParams is the admin decision input.
type ApproveWithdrawParams struct {
	WithdrawID int64          `json:"withdraw_id"`
	AdminID    uuid.UUID      `json:"admin_id"`
	Decision   WithdrawStatus `json:"decision"`
	AdminNote  string         `json:"admin_note"`
}

// WithdrawStatusUpdate is the set of columns written on a status change.
type WithdrawStatusUpdate struct {
	Status        WithdrawStatus
	FailureReason *string
	PayoutID      *string
}

// PayoutOutcome is the result of executePayout.
type PayoutOutcome struct {
	WithdrawID     int64          `json:"withdraw_id"`
	Status         WithdrawStatus `json:"status"`
	PayoutID       string         `json:"payout_id,omitempty"`
	PayoutStatus   string         `json:"payout_status,omitempty"`
	FailureReason  string         `json:"failure_reason,omitempty"`
	AmountDeducted int64          `json:"amount_deducted"`
	WalletBalance  int64          `json:"wallet_balance"`
	Reconciled     bool           `json:"reconciled,omitempty"`
}

const InsufficientBalanceAtPayout = "Insufficient wallet balance at payout time"
