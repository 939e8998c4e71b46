package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.razorpay.com"

// razorpayClient talks to the Razorpay REST API with basic auth. Orders use
// the Payments API; contacts, fund accounts and payouts use RazorpayX.
type razorpayClient struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
}

// NewRazorpay returns the live gateway client.
func NewRazorpay(keyID, keySecret string) Client {
	return &razorpayClient{
		baseURL:    defaultBaseURL,
		keyID:      keyID,
		keySecret:  keySecret,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *razorpayClient) CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string, notes map[string]string) (*Order, error) {
	body := map[string]any{
		"amount":          amountPaise,
		"currency":        currency,
		"receipt":         receipt,
		"payment_capture": 1,
		"notes":           notes,
	}
	var order Order
	if err := c.post(ctx, "/v1/orders", body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *razorpayClient) CreateContact(ctx context.Context, name, email, phone, referenceID string) (*Contact, error) {
	body := map[string]any{
		"name":         name,
		"email":        email,
		"contact":      phone,
		"type":         "vendor",
		"reference_id": referenceID,
	}
	var contact Contact
	if err := c.post(ctx, "/v1/contacts", body, &contact); err != nil {
		return nil, err
	}
	return &contact, nil
}

func (c *razorpayClient) CreateFundAccount(ctx context.Context, contactID string, bank BankAccount) (*FundAccount, error) {
	body := map[string]any{
		"contact_id":   contactID,
		"account_type": "bank_account",
		"bank_account": bank,
	}
	var fa FundAccount
	if err := c.post(ctx, "/v1/fund_accounts", body, &fa); err != nil {
		return nil, err
	}
	return &fa, nil
}

func (c *razorpayClient) CreatePayout(ctx context.Context, req PayoutRequest) (*Payout, error) {
	body := map[string]any{
		"account_number":       req.AccountNumber,
		"fund_account_id":      req.FundAccountID,
		"amount":               req.AmountPaise,
		"currency":             req.Currency,
		"mode":                 req.Mode,
		"purpose":              "payout",
		"queue_if_low_balance": true,
		"reference_id":         req.ReferenceID,
		"narration":            req.Narration,
		"notes":                req.Notes,
	}
	var payout Payout
	if err := c.post(ctx, "/v1/payouts", body, &payout); err != nil {
		return nil, err
	}
	return &payout, nil
}

func (c *razorpayClient) FetchPayout(ctx context.Context, payoutID string) (*Payout, error) {
	var payout Payout
	if err := c.do(ctx, http.MethodGet, "/v1/payouts/"+payoutID, nil, &payout); err != nil {
		return nil, err
	}
	return &payout, nil
}

func (c *razorpayClient) post(ctx context.Context, path string, body any, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *razorpayClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", path, err)
		}
		payload = bytes.NewReader(b)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{StatusCode: 0, Description: fmt.Sprintf("network error calling %s: %v", path, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// decodeError converts a non-2xx gateway response into an *Error. Razorpay
// wraps failures as {"error": {"code": ..., "description": ...}}.
func decodeError(resp *http.Response) error {
	var wrapper struct {
		Error struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil || wrapper.Error.Description == "" {
		return &Error{StatusCode: resp.StatusCode, Description: http.StatusText(resp.StatusCode)}
	}
	return &Error{
		StatusCode:  resp.StatusCode,
		Code:        wrapper.Error.Code,
		Description: wrapper.Error.Description,
	}
}
