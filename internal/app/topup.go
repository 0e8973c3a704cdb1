package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/luckypool/pool-service/internal/domain"
	"github.com/luckypool/pool-service/internal/ledger"
	"github.com/luckypool/pool-service/internal/store"
	"github.com/luckypool/pool-service/pkg/payoutclient"
	"github.com/sirupsen/logrus"
)

// CreateTopUpOrder opens a checkout order with the provider and records it as created.
func (s *Service) CreateTopUpOrder(ctx context.Context, userID uuid.UUID, amount int64) (*domain.Payment, error) {
	if amount <= 0 {
		return nil, domain.NewValidationError("amount must be positive")
	}
	if _, err := s.repo.FindUserByID(ctx, userID); err != nil {
		return nil, err
	}

	receipt := "topup_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	order, err := s.payouts.CreateOrder(ctx, payoutclient.OrderRequest{
		Amount:   amount * 100,
		Currency: s.opts.Currency,
		Receipt:  receipt,
		Notes:    map[string]string{"user_id": userID.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create order: %v", domain.ErrExternalProvider, err)
	}

	payment := &domain.Payment{
		UserID:          userID,
		ProviderOrderID: order.ID,
		Amount:          amount,
		Currency:        s.opts.Currency,
		Receipt:         receipt,
		Status:          domain.TopUpCreated,
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"component":  "wallet_topup",
		"user_id":    userID,
		"order_id":   order.ID,
		"payment_id": payment.ID,
	}).Info("top-up order created")
	return payment, nil
}

// VerifyTopUp checks the checkout signature and credits the wallet once per order.
// A repeated verification of a paid order reports AlreadyVerified without crediting.
func (s *Service) VerifyTopUp(ctx context.Context, params domain.VerifyTopUpParams) (*domain.TopUpVerification, error) {
	params.OrderID = strings.TrimSpace(params.OrderID)
	params.PaymentID = strings.TrimSpace(params.PaymentID)
	params.Signature = strings.TrimSpace(params.Signature)
	if params.OrderID == "" || params.PaymentID == "" || params.Signature == "" {
		return nil, domain.NewValidationError("order_id, payment_id and signature are required")
	}

	log := s.logger.WithFields(logrus.Fields{"component": "wallet_topup", "user_id": params.UserID, "order_id": params.OrderID})

	if !s.payouts.VerifyPaymentSignature(params.OrderID, params.PaymentID, params.Signature) {
		if err := s.repo.MarkPaymentFailed(ctx, params.UserID, params.OrderID); err != nil {
			log.WithError(err).Warn("could not mark payment failed")
		}
		log.Warn("top-up signature mismatch")
		return nil, domain.NewValidationError("payment signature is invalid")
	}

	var out domain.TopUpVerification
	err := s.repo.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		payment, err := tx.LockPaymentByOrderID(ctx, params.OrderID)
		if err != nil {
			return err
		}
		if payment.UserID != params.UserID {
			return domain.ErrPaymentNotFound
		}

		if payment.Status == domain.TopUpPaid {
			balance, err := tx.LockWallet(ctx, payment.UserID)
			if err != nil {
				return err
			}
			out = domain.TopUpVerification{Payment: *payment, AlreadyVerified: true, WalletBalance: balance}
			return nil
		}

		if err := tx.MarkPaymentPaid(ctx, payment.ID, params.PaymentID, params.Signature); err != nil {
			return err
		}
		balance, err := ledger.Credit(ctx, tx, payment.UserID, payment.Amount)
		if err != nil {
			return err
		}
		payment.Status = domain.TopUpPaid
		payment.ProviderPaymentID = &params.PaymentID
		payment.ProviderSignature = &params.Signature
		out = domain.TopUpVerification{Payment: *payment, WalletBalance: balance}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.AlreadyVerified {
		log.Info("top-up already verified")
		return &out, nil
	}
	log.WithFields(logrus.Fields{"amount": out.Payment.Amount, "wallet": out.WalletBalance}).Info("top-up credited")
	s.publish(ctx, domain.EventTopUpCredited, domain.TopUpCreditedEvent{
		PaymentID: out.Payment.ID,
		UserID:    out.Payment.UserID,
		Amount:    out.Payment.Amount,
		Timestamp: s.now(),
	})
	return &out, nil
}
