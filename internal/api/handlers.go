/**
 * @description
 * This file contains the HTTP handlers for the pool service. Handlers parse requests,
 * call the application service and write the JSON envelope
 * {success, message, data, failure_reason}. Domain error kinds map to HTTP status codes
 * in statusForError.
 *
 * @dependencies
 * - internal/app, internal/domain: Service logic and models.
 * - github.com/go-chi/chi/v5: URL parameters.
 * - github.com/sirupsen/logrus: Logging.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/luckypool/pool-service/internal/app"
	"github.com/luckypool/pool-service/internal/domain"
	"github.com/sirupsen/logrus"
)

// PoolService is the application surface the handlers drive. *app.Service implements it.
type PoolService interface {
	BuyTicket(ctx context.Context, params domain.BuyTicketParams) (*domain.TicketPurchase, error)
	RequestWithdraw(ctx context.Context, params domain.RequestWithdrawParams) (*domain.WithdrawRequest, error)
	ApproveWithdraw(ctx context.Context, params domain.ApproveWithdrawParams) (*domain.WithdrawRequest, error)
	ExecutePayout(ctx context.Context, withdrawID int64) (*domain.PayoutOutcome, error)
	CreateTopUpOrder(ctx context.Context, userID uuid.UUID, amount int64) (*domain.Payment, error)
	VerifyTopUp(ctx context.Context, params domain.VerifyTopUpParams) (*domain.TopUpVerification, error)
	CreatePool(ctx context.Context, params domain.CreatePoolParams) (*domain.Pool, error)
	DeclareResult(ctx context.Context, poolID int64) (*domain.Declaration, error)
	RunMaintenance(ctx context.Context) (app.MaintenanceReport, error)
}

var _ PoolService = (*app.Service)(nil)

// Handlers holds the application service that handlers will use.
type Handlers struct {
	service PoolService
	logger  logrus.FieldLogger
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(service PoolService, logger logrus.FieldLogger) *Handlers {
	return &Handlers{service: service, logger: logger.WithField("component", "api")}
}

type envelope struct {
	Success       bool        `json:"success"`
	Message       string      `json:"message"`
	Data          interface{} `json:"data,omitempty"`
	FailureReason string      `json:"failure_reason,omitempty"`
}

type buyTicketRequest struct {
	PoolTitle     string `json:"pool_title"`
	UserNumber    int    `json:"user_number"`
	Amount        int64  `json:"amount"`
	DrawNumber    int    `json:"draw_number"`
	PaymentStatus string `json:"payment_status"`
}

type withdrawRequest struct {
	Amount        int64  `json:"amount"`
	Method        string `json:"method"`
	UPIID         string `json:"upi_id"`
	BankAccount   string `json:"bank_account"`
	IFSC          string `json:"ifsc"`
	AccountHolder string `json:"account_holder"`
}

type approveRequest struct {
	Decision  string `json:"decision"`
	AdminNote string `json:"admin_note"`
}

type topUpRequest struct {
	Amount int64 `json:"amount"`
}

type verifyTopUpRequest struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

type createPoolRequest struct {
	Title    string    `json:"title"`
	Jackpot  int64     `json:"jackpot"`
	StartAt  time.Time `json:"start_at"`
	ExpireAt time.Time `json:"expire_at"`
}

// BuyTicketHandler handles POST /tickets.
func (h *Handlers) BuyTicketHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := GetPrincipal(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var req buyTicketRequest
	if !decodeBody(w, r, &req) {
		return
	}

	purchase, err := h.service.BuyTicket(r.Context(), domain.BuyTicketParams{
		UserID:        principal.UserID,
		PoolTitle:     req.PoolTitle,
		UserNumber:    req.UserNumber,
		Amount:        req.Amount,
		DrawNumber:    req.DrawNumber,
		PaymentStatus: domain.PaymentStatus(strings.ToUpper(strings.TrimSpace(req.PaymentStatus))),
	})
	if err != nil {
		h.writeServiceError(w, "buy_ticket", err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: "Ticket purchased", Data: purchase})
}

// RequestWithdrawHandler handles POST /withdrawals.
func (h *Handlers) RequestWithdrawHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := GetPrincipal(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var req withdrawRequest
	if !decodeBody(w, r, &req) {
		return
	}

	created, err := h.service.RequestWithdraw(r.Context(), domain.RequestWithdrawParams{
		UserID: principal.UserID,
		Amount: req.Amount,
		Method: domain.WithdrawMethod(strings.ToLower(strings.TrimSpace(req.Method))),
		Destination: domain.WithdrawDestination{
			UPIID:         req.UPIID,
			BankAccount:   req.BankAccount,
			IFSC:          req.IFSC,
			AccountHolder: req.AccountHolder,
		},
	})
	if err != nil {
		h.writeServiceError(w, "request_withdraw", err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: "Withdraw request submitted", Data: created})
}

// ApproveWithdrawHandler handles POST /withdrawals/{id}/approve.
func (h *Handlers) ApproveWithdrawHandler(w http.ResponseWriter, r *http.Request) {
	principal, _ := GetPrincipal(r.Context())
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req approveRequest
	if !decodeBody(w, r, &req) {
		return
	}

	decided, err := h.service.ApproveWithdraw(r.Context(), domain.ApproveWithdrawParams{
		WithdrawID: id,
		AdminID:    principal.UserID,
		Decision:   parseDecision(req.Decision),
		AdminNote:  req.AdminNote,
	})
	if err != nil {
		h.writeServiceError(w, "approve_withdraw", err, nil)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Withdraw request " + strings.ToLower(string(decided.Status)), Data: decided})
}

// ExecutePayoutHandler handles POST /withdrawals/{id}/execute. A committed failure still
// returns the outcome alongside the error status.
func (h *Handlers) ExecutePayoutHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	outcome, err := h.service.ExecutePayout(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "execute_payout", err, outcome)
		return
	}
	message := "Payout completed"
	if outcome.Reconciled {
		message = "Payout already completed with provider"
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: outcome})
}

// CreateTopUpHandler handles POST /wallet/top-ups.
func (h *Handlers) CreateTopUpHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := GetPrincipal(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var req topUpRequest
	if !decodeBody(w, r, &req) {
		return
	}

	payment, err := h.service.CreateTopUpOrder(r.Context(), principal.UserID, req.Amount)
	if err != nil {
		h.writeServiceError(w, "create_top_up", err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: "Top-up order created", Data: payment})
}

// VerifyTopUpHandler handles POST /wallet/top-ups/verify.
func (h *Handlers) VerifyTopUpHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := GetPrincipal(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var req verifyTopUpRequest
	if !decodeBody(w, r, &req) {
		return
	}

	verification, err := h.service.VerifyTopUp(r.Context(), domain.VerifyTopUpParams{
		UserID:    principal.UserID,
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	if err != nil {
		h.writeServiceError(w, "verify_top_up", err, nil)
		return
	}
	message := "Wallet credited"
	if verification.AlreadyVerified {
		message = "Payment already verified"
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: verification})
}

// CreatePoolHandler handles POST /admin/pools.
func (h *Handlers) CreatePoolHandler(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if !decodeBody(w, r, &req) {
		return
	}

	pool, err := h.service.CreatePool(r.Context(), domain.CreatePoolParams{
		Title:    req.Title,
		Jackpot:  req.Jackpot,
		StartAt:  req.StartAt,
		ExpireAt: req.ExpireAt,
	})
	if err != nil {
		h.writeServiceError(w, "create_pool", err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: "Pool created", Data: pool})
}

// DeclareResultHandler handles POST /internal/pools/{id}/declare.
func (h *Handlers) DeclareResultHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	declaration, err := h.service.DeclareResult(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "declare_result", err, nil)
		return
	}
	message := "Result declared"
	if declaration.Skipped {
		message = "Result already declared"
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: declaration})
}

// RunMaintenanceHandler handles POST /internal/maintenance/run.
func (h *Handlers) RunMaintenanceHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.RunMaintenance(r.Context())
	if err != nil {
		h.writeServiceError(w, "run_maintenance", err, report)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Maintenance cycle finished", Data: report})
}

func parseDecision(raw string) domain.WithdrawStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "APPROVE", "APPROVED":
		return domain.WithdrawApproved
	case "REJECT", "REJECTED":
		return domain.WithdrawRejected
	}
	return domain.WithdrawStatus(strings.ToUpper(strings.TrimSpace(raw)))
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// statusForError maps a domain error kind to an HTTP status.
func statusForError(err error) int {
	if errors.Is(err, domain.ErrRateLimited) {
		return http.StatusTooManyRequests
	}
	switch domain.Kind(err) {
	case domain.ErrValidation:
		return http.StatusBadRequest
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrConflict:
		return http.StatusConflict
	case domain.ErrInsufficientBalance:
		return http.StatusUnprocessableEntity
	case domain.ErrExternalProvider:
		return http.StatusBadGateway
	case domain.ErrTransientStore:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (h *Handlers) writeServiceError(w http.ResponseWriter, endpoint string, err error, data interface{}) {
	status := statusForError(err)
	log := h.logger.WithFields(logrus.Fields{"endpoint": endpoint, "status": status}).WithError(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Warn("request rejected")
	}

	var limited *domain.RateLimitError
	if errors.As(err, &limited) {
		w.Header().Set("Retry-After", strconv.Itoa(limited.RetryAfterSeconds))
	}

	message := err.Error()
	switch status {
	case http.StatusInternalServerError, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		message = http.StatusText(status)
	}

	body := envelope{Success: false, Message: message, FailureReason: message}
	switch d := data.(type) {
	case nil:
	case *domain.PayoutOutcome:
		if d != nil {
			body.Data = d
			if d.FailureReason != "" {
				body.FailureReason = d.FailureReason
			}
		}
	default:
		body.Data = d
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}
