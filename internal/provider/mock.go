package provider

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// mockClient synthesizes deterministic provider entities so the settlement
// path, notifications and UI can be exercised without gateway credentials.
// Payouts complete immediately.
type mockClient struct {
	seq atomic.Int64
}

// NewMock returns the offline gateway client.
func NewMock() Client {
	return &mockClient{}
}

func (m *mockClient) next() int64 {
	return time.Now().UnixMilli() + m.seq.Add(1)
}

func (m *mockClient) CreateOrder(_ context.Context, amountPaise int64, currency, _ string, _ map[string]string) (*Order, error) {
	return &Order{
		ID:       fmt.Sprintf("order_mock_%d", m.next()),
		Amount:   amountPaise,
		Currency: currency,
	}, nil
}

func (m *mockClient) CreateContact(_ context.Context, _, _, _, _ string) (*Contact, error) {
	return &Contact{ID: fmt.Sprintf("cont_mock_%d", m.next())}, nil
}

func (m *mockClient) CreateFundAccount(_ context.Context, _ string, _ BankAccount) (*FundAccount, error) {
	return &FundAccount{ID: fmt.Sprintf("fa_mock_%d", m.next())}, nil
}

func (m *mockClient) CreatePayout(_ context.Context, _ PayoutRequest) (*Payout, error) {
	n := m.next()
	return &Payout{
		ID:     fmt.Sprintf("pout_mock_%d", n),
		Status: "processed",
		UTR:    fmt.Sprintf("UTR%d", n),
	}, nil
}

func (m *mockClient) FetchPayout(_ context.Context, payoutID string) (*Payout, error) {
	return &Payout{ID: payoutID, Status: "processed"}, nil
}
