package provider

import (
	"context"
	"fmt"
)

// All amounts cross this boundary in minor currency units (paise).

type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type Contact struct {
	ID string `json:"id"`
}

type FundAccount struct {
	ID string `json:"id"`
}

type Payout struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	UTR    string `json:"utr,omitempty"`
}

// BankAccount is the destination for a fund account.
type BankAccount struct {
	Name          string `json:"name"`
	IFSC          string `json:"ifsc"`
	AccountNumber string `json:"account_number"`
}

// PayoutRequest instructs the provider to move money from the platform
// account to a fund account.
type PayoutRequest struct {
	AccountNumber string            // platform account, debited
	FundAccountID string
	AmountPaise   int64
	Currency      string
	Mode          string // IMPS, NEFT, RTGS, UPI
	ReferenceID   string
	Narration     string
	Notes         map[string]string
}

// Client is the payment gateway surface the settlement engine consumes.
// Implementations: the live HTTP client and the offline mock.
type Client interface {
	CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string, notes map[string]string) (*Order, error)
	CreateContact(ctx context.Context, name, email, phone, referenceID string) (*Contact, error)
	CreateFundAccount(ctx context.Context, contactID string, bank BankAccount) (*FundAccount, error)
	CreatePayout(ctx context.Context, req PayoutRequest) (*Payout, error)
	FetchPayout(ctx context.Context, payoutID string) (*Payout, error)
}

// Error is a failed gateway call. StatusCode 401 distinguishes credential
// problems from transient failures; Description is the provider's message
// and never contains key material.
type Error struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider: %s (%s, http %d)", e.Description, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("provider: %s (http %d)", e.Description, e.StatusCode)
}

// IsAuthError reports whether the call failed on credentials rather than a
// transient condition.
func (e *Error) IsAuthError() bool { return e.StatusCode == 401 }
