package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/luckypool/pool-service/internal/domain"
	"github.com/luckypool/pool-service/internal/ledger"
	"github.com/luckypool/pool-service/internal/store"
	"github.com/luckypool/pool-service/pkg/payoutclient"
	"github.com/sirupsen/logrus"
)

// RequestWithdraw records a PENDING withdrawal. The wallet is not touched until execution.
func (s *Service) RequestWithdraw(ctx context.Context, params domain.RequestWithdrawParams) (*domain.WithdrawRequest, error) {
	destination, err := validateWithdraw(params)
	if err != nil {
		return nil, err
	}
	if err := s.checkRateLimit(ctx, withdrawRequestRule.withLimit(s.opts.WithdrawRateLimit), params.UserID.String()); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindUserByID(ctx, params.UserID); err != nil {
		return nil, err
	}

	req := &domain.WithdrawRequest{
		UserID:      params.UserID,
		Amount:      params.Amount,
		Method:      params.Method,
		Destination: destination,
		Status:      domain.WithdrawPending,
	}
	if err := s.repo.CreateWithdrawRequest(ctx, req); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"component":   "withdraw_engine",
		"withdraw_id": req.ID,
		"user_id":     req.UserID,
		"amount":      req.Amount,
		"method":      req.Method,
	}).Info("withdraw request created")
	s.publish(ctx, domain.EventWithdrawalRequested, s.withdrawalEvent(req, req.Status, "", ""))
	return req, nil
}

// validateWithdraw checks the input and keeps only the destination fields of the chosen method.
func validateWithdraw(params domain.RequestWithdrawParams) (domain.WithdrawDestination, error) {
	if params.Amount <= 0 {
		return domain.WithdrawDestination{}, domain.NewValidationError("amount must be positive")
	}
	if !params.Method.Valid() {
		return domain.WithdrawDestination{}, domain.NewValidationError("method must be %q or %q", domain.WithdrawUPI, domain.WithdrawBank)
	}
	d := params.Destination
	if params.Method == domain.WithdrawUPI {
		upi := strings.TrimSpace(d.UPIID)
		if upi == "" {
			return domain.WithdrawDestination{}, domain.NewValidationError("upi_id is required for upi withdrawals")
		}
		return domain.WithdrawDestination{UPIID: upi}, nil
	}

	bank := domain.WithdrawDestination{
		BankAccount:   strings.TrimSpace(d.BankAccount),
		IFSC:          strings.ToUpper(strings.TrimSpace(d.IFSC)),
		AccountHolder: strings.TrimSpace(d.AccountHolder),
	}
	if bank.BankAccount == "" || bank.IFSC == "" || bank.AccountHolder == "" {
		return domain.WithdrawDestination{}, domain.NewValidationError("bank_account, ifsc and account_holder are required for bank withdrawals")
	}
	return bank, nil
}

// ApproveWithdraw applies an admin decision to a PENDING request. The guarded update is
// the concurrency check: losing a race reports ErrAlreadyProcessed.
func (s *Service) ApproveWithdraw(ctx context.Context, params domain.ApproveWithdrawParams) (*domain.WithdrawRequest, error) {
	if !domain.WithdrawPending.CanTransitionTo(params.Decision) {
		return nil, domain.NewValidationError("decision must be %s or %s", domain.WithdrawApproved, domain.WithdrawRejected)
	}
	params.AdminNote = strings.TrimSpace(params.AdminNote)

	ok, err := s.repo.AdminExists(ctx, params.AdminID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrAdminNotFound
	}

	current, err := s.repo.FindWithdrawRequestByID(ctx, params.WithdrawID)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(params.Decision) {
		return nil, domain.ErrAlreadyProcessed
	}

	decided, err := s.repo.DecideWithdrawRequest(ctx, params, s.now())
	if err != nil {
		return nil, err
	}
	if !decided {
		return nil, domain.ErrAlreadyProcessed
	}

	updated, err := s.repo.FindWithdrawRequestByID(ctx, params.WithdrawID)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"component":   "withdraw_engine",
		"withdraw_id": updated.ID,
		"admin_id":    params.AdminID,
		"decision":    params.Decision,
	}).Info("withdraw request decided")
	s.publish(ctx, domain.EventWithdrawalStatus, s.withdrawalEvent(updated, updated.Status, "", ""))
	return updated, nil
}

// ExecutePayout moves an APPROVED request to SUCCESS or FAILED. The request row and then
// the user row stay locked across the provider call. An explicit provider rejection is
// refunded and committed as FAILED; any other error rolls everything back and leaves the
// request APPROVED.
func (s *Service) ExecutePayout(ctx context.Context, withdrawID int64) (*domain.PayoutOutcome, error) {
	log := s.logger.WithFields(logrus.Fields{"component": "withdraw_engine", "withdraw_id": withdrawID})

	var (
		outcome   domain.PayoutOutcome
		req       *domain.WithdrawRequest
		rejection error
	)
	err := s.repo.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		outcome = domain.PayoutOutcome{WithdrawID: withdrawID}
		rejection = nil

		var err error
		req, err = tx.LockWithdrawRequest(ctx, withdrawID)
		if err != nil {
			return err
		}
		if !req.Status.CanTransitionTo(domain.WithdrawProcessing) {
			return fmt.Errorf("%w: status is %s", domain.ErrInvalidState, req.Status)
		}

		user, err := tx.LockUser(ctx, req.UserID)
		if err != nil {
			return err
		}
		if req.Amount <= 0 {
			return domain.NewValidationError("withdraw amount must be positive")
		}

		if user.Wallet < req.Amount {
			reason := domain.InsufficientBalanceAtPayout
			if err := transitionWithdraw(ctx, tx, req, domain.WithdrawStatusUpdate{Status: domain.WithdrawFailed, FailureReason: &reason}); err != nil {
				return err
			}
			outcome.Status = domain.WithdrawFailed
			outcome.FailureReason = reason
			outcome.WalletBalance = user.Wallet
			rejection = fmt.Errorf("%w: %s", domain.ErrInsufficientBalance, reason)
			return nil
		}

		if err := transitionWithdraw(ctx, tx, req, domain.WithdrawStatusUpdate{Status: domain.WithdrawProcessing}); err != nil {
			return err
		}
		left, err := ledger.Debit(ctx, tx, req.UserID, req.Amount)
		if err != nil {
			return err
		}

		reference := payoutReference(req.ID)
		existing, err := s.payouts.FindPayoutByReference(ctx, reference)
		if err != nil {
			return fmt.Errorf("%w: look up payout %s: %v", domain.ErrExternalProvider, reference, err)
		}
		if existing != nil && !existing.Failed() {
			// An earlier attempt reached the provider before its transaction rolled back.
			log.WithField("payout_id", existing.ID).Warn("found existing payout for request; recording it instead of paying again")
			return s.markPayoutSuccess(ctx, tx, req, existing, left, true, &outcome)
		}

		payout, err := s.payouts.CreatePayout(ctx, s.payoutRequest(req, user), s.newToken())
		if err == nil && payout.Failed() {
			rejected := &payoutclient.ErrorResponse{StatusCode: http.StatusOK}
			rejected.Detail.Description = "payout " + payout.Status
			err = rejected
		}
		if err != nil {
			var providerErr *payoutclient.ErrorResponse
			if !errors.As(err, &providerErr) {
				return fmt.Errorf("%w: create payout: %v", domain.ErrExternalProvider, err)
			}
			reason := providerErr.Error()
			refunded, err := ledger.Credit(ctx, tx, req.UserID, req.Amount)
			if err != nil {
				return fmt.Errorf("refund wallet: %w", err)
			}
			if err := transitionWithdraw(ctx, tx, req, domain.WithdrawStatusUpdate{Status: domain.WithdrawFailed, FailureReason: &reason}); err != nil {
				return err
			}
			outcome.Status = domain.WithdrawFailed
			outcome.FailureReason = reason
			outcome.WalletBalance = refunded
			rejection = &domain.ProviderError{StatusCode: providerErr.StatusCode, Code: providerErr.Detail.Code, Description: reason}
			return nil
		}

		return s.markPayoutSuccess(ctx, tx, req, payout, left, false, &outcome)
	})
	if err != nil {
		log.WithError(err).Error("payout execution rolled back")
		return nil, err
	}

	entry := log.WithFields(logrus.Fields{"status": outcome.Status, "payout_id": outcome.PayoutID})
	if outcome.Status == domain.WithdrawFailed {
		entry.WithField("reason", outcome.FailureReason).Warn("payout failed")
	} else {
		entry.Info("payout succeeded")
	}
	s.publish(ctx, domain.EventWithdrawalStatus, s.withdrawalEvent(req, outcome.Status, outcome.FailureReason, outcome.PayoutID))
	return &outcome, rejection
}

func (s *Service) markPayoutSuccess(ctx context.Context, tx store.Tx, req *domain.WithdrawRequest, payout *payoutclient.Payout, left int64, reconciled bool, outcome *domain.PayoutOutcome) error {
	payoutID := payout.ID
	if err := transitionWithdraw(ctx, tx, req, domain.WithdrawStatusUpdate{Status: domain.WithdrawSuccess, PayoutID: &payoutID}); err != nil {
		return err
	}
	outcome.Status = domain.WithdrawSuccess
	outcome.PayoutID = payout.ID
	outcome.PayoutStatus = payout.Status
	outcome.AmountDeducted = req.Amount
	outcome.WalletBalance = left
	outcome.Reconciled = reconciled
	return nil
}

// transitionWithdraw moves req to update.Status when the state machine allows it.
// The store re-checks req's current status, so a stale copy cannot overwrite a newer one.
func transitionWithdraw(ctx context.Context, tx store.Tx, req *domain.WithdrawRequest, update domain.WithdrawStatusUpdate) error {
	if !req.Status.CanTransitionTo(update.Status) {
		return fmt.Errorf("%w: withdraw request %d cannot move from %s to %s", domain.ErrInvalidState, req.ID, req.Status, update.Status)
	}
	if err := tx.UpdateWithdrawStatus(ctx, req.ID, req.Status, update); err != nil {
		return err
	}
	req.Status = update.Status
	return nil
}

func payoutReference(withdrawID int64) string {
	return fmt.Sprintf("withdraw_%d", withdrawID)
}

// payoutRequest maps a withdraw request to the provider payload. Amount goes out in
// minor units.
func (s *Service) payoutRequest(req *domain.WithdrawRequest, user *domain.User) payoutclient.PayoutRequest {
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if req.Method == domain.WithdrawBank {
		name = req.Destination.AccountHolder
	}
	if name == "" {
		name = "Customer"
	}

	fund := payoutclient.FundAccount{
		Contact: payoutclient.Contact{Name: name, Type: "customer", ReferenceID: user.ID.String()},
	}
	mode := "UPI"
	if req.Method == domain.WithdrawBank {
		mode = "IMPS"
		fund.AccountType = "bank_account"
		fund.BankAccount = &payoutclient.BankAccount{
			Name:          req.Destination.AccountHolder,
			IFSC:          req.Destination.IFSC,
			AccountNumber: req.Destination.BankAccount,
		}
	} else {
		fund.AccountType = "vpa"
		fund.VPA = &payoutclient.VPA{Address: req.Destination.UPIID}
	}

	return payoutclient.PayoutRequest{
		FundAccount:       fund,
		Amount:            req.Amount * 100,
		Currency:          s.opts.Currency,
		Mode:              mode,
		Purpose:           "payout",
		QueueIfLowBalance: true,
		ReferenceID:       payoutReference(req.ID),
		Narration:         "Wallet withdrawal",
	}
}

func (s *Service) withdrawalEvent(req *domain.WithdrawRequest, status domain.WithdrawStatus, reason, payoutID string) domain.WithdrawalEvent {
	return domain.WithdrawalEvent{
		WithdrawID:    req.ID,
		UserID:        req.UserID,
		Amount:        req.Amount,
		Method:        req.Method,
		Status:        status,
		FailureReason: reason,
		PayoutID:      payoutID,
		Timestamp:     s.now(),
	}
}
