package payoutclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
)

func newTestClient(url string) *Client {
	client := NewClient(url, "key_id", "key_secret", "2323230000")
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	client.Logger = logger
	return client
}

func TestCreatePayoutSendsAuthAndIdempotencyKey(t *testing.T) {
	var received PayoutRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/payouts" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key_id" || pass != "key_secret" {
			t.Fatalf("missing basic auth")
		}
		if got := r.Header.Get("X-Payout-Idempotency"); got != "attempt-1" {
			t.Fatalf("unexpected idempotency key %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pout_123","status":"processing","amount":50000,"reference_id":"withdraw_7"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	payout, err := client.CreatePayout(context.Background(), PayoutRequest{
		FundAccount: FundAccount{AccountType: "vpa", VPA: &VPA{Address: "user@upi"}, Contact: Contact{Name: "Asha", Type: "customer"}},
		Amount:      50000,
		Currency:    "INR",
		Mode:        "UPI",
		Purpose:     "payout",
		ReferenceID: "withdraw_7",
	}, "attempt-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payout.ID != "pout_123" || payout.Status != "processing" {
		t.Fatalf("unexpected payout %+v", payout)
	}
	if received.AccountNumber != "2323230000" {
		t.Fatalf("expected default account number, got %q", received.AccountNumber)
	}
	if received.FundAccount.BankAccount != nil || received.FundAccount.VPA == nil {
		t.Fatalf("unexpected fund account %+v", received.FundAccount)
	}
}

func TestCreatePayoutReturnsErrorResponseOn4xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"Invalid IFSC Code","field":"ifsc"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).CreatePayout(context.Background(), PayoutRequest{}, "k")
	var errResp *ErrorResponse
	if !errors.As(err, &errResp) {
		t.Fatalf("expected *ErrorResponse, got %T %v", err, err)
	}
	if errResp.StatusCode != http.StatusBadRequest || errResp.Error() != "Invalid IFSC Code" {
		t.Fatalf("unexpected error response %+v", errResp)
	}
}

func TestCreatePayoutTreats5xxAsUnknownOutcome(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).CreatePayout(context.Background(), PayoutRequest{}, "k")
	if err == nil {
		t.Fatal("expected error")
	}
	var errResp *ErrorResponse
	if errors.As(err, &errResp) {
		t.Fatalf("5xx must not be reported as an explicit rejection: %v", err)
	}
}

func TestFindPayoutByReference(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("reference_id") != "withdraw_9" || r.URL.Query().Get("account_number") != "2323230000" {
			t.Fatalf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"items":[{"id":"pout_9","status":"processed","reference_id":"withdraw_9"}]}`))
	}))
	defer server.Close()

	payout, err := newTestClient(server.URL).FindPayoutByReference(context.Background(), "withdraw_9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payout == nil || payout.ID != "pout_9" || payout.Failed() {
		t.Fatalf("unexpected payout %+v", payout)
	}
}

func TestFindPayoutByReferenceNone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer server.Close()

	payout, err := newTestClient(server.URL).FindPayoutByReference(context.Background(), "withdraw_1")
	if err != nil || payout != nil {
		t.Fatalf("expected no payout, got %+v, %v", payout, err)
	}
}

func TestCreateOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req OrderRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if r.URL.Path != "/v1/orders" || req.Amount != 25000 {
			t.Fatalf("unexpected order request %s %+v", r.URL.Path, req)
		}
		_, _ = w.Write([]byte(`{"id":"order_1","amount":25000,"currency":"INR","status":"created"}`))
	}))
	defer server.Close()

	order, err := newTestClient(server.URL).CreateOrder(context.Background(), OrderRequest{Amount: 25000, Currency: "INR", Receipt: "r1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.ID != "order_1" {
		t.Fatalf("unexpected order %+v", order)
	}
}

func TestVerifyPaymentSignature(t *testing.T) {
	client := newTestClient("http://unused")
	signature := PaymentSignature("order_1", "pay_1", "key_secret")

	if !client.VerifyPaymentSignature("order_1", "pay_1", signature) {
		t.Fatal("expected valid signature")
	}
	if client.VerifyPaymentSignature("order_1", "pay_2", signature) {
		t.Fatal("signature must be bound to the payment id")
	}
	client.KeySecret = ""
	if client.VerifyPaymentSignature("order_1", "pay_1", signature) {
		t.Fatal("empty secret must never verify")
	}
}
