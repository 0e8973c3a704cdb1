/**
 * @description
 * This package provides a client for the payout provider's HTTP API (payouts to bank
 * accounts and UPI addresses, payout lookup by reference, and checkout orders for wallet
 * top-ups). It handles authentication, request body construction and error decoding.
 *
 * @dependencies
 * - bytes, context, encoding/json, net/http, time: Standard Go libraries.
 * - github.com/sirupsen/logrus: Request failure logging.
 */
package payoutclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

const idempotencyHeader = "X-Payout-Idempotency"

// Client is a client for the payout provider API.
type Client struct {
	BaseURL       string
	KeyID         string
	KeySecret     string
	AccountNumber string
	HTTPClient    *http.Client
	Logger        logrus.FieldLogger
}

// NewClient creates a new payout provider client.
func NewClient(baseURL, keyID, keySecret, accountNumber string) *Client {
	return &Client{
		BaseURL:       baseURL,
		KeyID:         keyID,
		KeySecret:     keySecret,
		AccountNumber: accountNumber,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		Logger: logrus.StandardLogger(),
	}
}

// Contact identifies the payout beneficiary.
type Contact struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	ReferenceID string `json:"reference_id,omitempty"`
}

type BankAccount struct {
	Name          string `json:"name"`
	IFSC          string `json:"ifsc"`
	AccountNumber string `json:"account_number"`
}

type VPA struct {
	Address string `json:"address"`
}

// FundAccount is the payout destination. Exactly one of BankAccount or VPA is set.
type FundAccount struct {
	AccountType string       `json:"account_type"`
	BankAccount *BankAccount `json:"bank_account,omitempty"`
	VPA         *VPA         `json:"vpa,omitempty"`
	Contact     Contact      `json:"contact"`
}

// PayoutRequest is the payload for creating a payout. Amount is in minor units.
type PayoutRequest struct {
	AccountNumber     string      `json:"account_number"`
	FundAccount       FundAccount `json:"fund_account"`
	Amount            int64       `json:"amount"`
	Currency          string      `json:"currency"`
	Mode              string      `json:"mode"`
	Purpose           string      `json:"purpose"`
	QueueIfLowBalance bool        `json:"queue_if_low_balance"`
	ReferenceID       string      `json:"reference_id"`
	Narration         string      `json:"narration,omitempty"`
}

// Payout is the provider's payout entity.
type Payout struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Mode        string `json:"mode"`
	ReferenceID string `json:"reference_id"`
	UTR         string `json:"utr,omitempty"`
}

// Failed reports whether the payout reached a state where no money moved.
func (p *Payout) Failed() bool {
	switch p.Status {
	case "failed", "rejected", "reversed", "cancelled":
		return true
	}
	return false
}

type payoutCollection struct {
	Items []Payout `json:"items"`
}

// OrderRequest creates a checkout order. Amount is in minor units.
type OrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// ErrorResponse is an explicit rejection from the provider (a 4xx answer).
type ErrorResponse struct {
	StatusCode int `json:"-"`
	Detail     struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Field       string `json:"field,omitempty"`
	} `json:"error"`
}

func (e *ErrorResponse) Error() string {
	if e.Detail.Description != "" {
		return e.Detail.Description
	}
	return fmt.Sprintf("payout provider error (status %d)", e.StatusCode)
}

// CreatePayout submits a payout. idempotencyKey must be unique per attempt.
func (c *Client) CreatePayout(ctx context.Context, payload PayoutRequest, idempotencyKey string) (*Payout, error) {
	if payload.AccountNumber == "" {
		payload.AccountNumber = c.AccountNumber
	}
	headers := map[string]string{idempotencyHeader: idempotencyKey}

	var payout Payout
	if err := c.do(ctx, "create_payout", http.MethodPost, "/v1/payouts", payload, headers, &payout); err != nil {
		return nil, err
	}
	return &payout, nil
}

// FindPayoutByReference returns the most recent payout created with referenceID, or nil
// when the provider has none.
func (c *Client) FindPayoutByReference(ctx context.Context, referenceID string) (*Payout, error) {
	query := url.Values{}
	query.Set("account_number", c.AccountNumber)
	query.Set("reference_id", referenceID)

	var collection payoutCollection
	if err := c.do(ctx, "find_payout", http.MethodGet, "/v1/payouts?"+query.Encode(), nil, nil, &collection); err != nil {
		return nil, err
	}
	for i := range collection.Items {
		if collection.Items[i].ReferenceID == referenceID {
			return &collection.Items[i], nil
		}
	}
	return nil, nil
}

// CreateOrder creates a checkout order for a wallet top-up.
func (c *Client) CreateOrder(ctx context.Context, payload OrderRequest) (*Order, error) {
	var order Order
	if err := c.do(ctx, "create_order", http.MethodPost, "/v1/orders", payload, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// do is the shared request helper. 4xx answers become *ErrorResponse; transport failures
// and 5xx answers are returned as plain errors because the outcome is unknown.
func (c *Client) do(ctx context.Context, op, method, path string, payload interface{}, headers map[string]string, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.SetBasicAuth(c.KeyID, c.KeySecret)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s request: %w", op, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}

	log := c.logger().WithFields(logrus.Fields{"component": "payout_client", "op": op, "status": resp.StatusCode})
	switch {
	case resp.StatusCode >= 500:
		log.Warn("provider server error")
		return fmt.Errorf("%s: provider returned status %d", op, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		errResp := &ErrorResponse{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, errResp); err != nil {
			log.Warn("non-2xx response (unparsable error body)")
		} else {
			log.WithFields(logrus.Fields{"code": errResp.Detail.Code, "description": errResp.Detail.Description}).Warn("provider rejected request")
		}
		return errResp
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

func (c *Client) logger() logrus.FieldLogger {
	if c.Logger == nil {
		return logrus.StandardLogger()
	}
	return c.Logger
}
