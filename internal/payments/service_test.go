package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/krishisangam/backend/internal/config"
	"github.com/krishisangam/backend/internal/models"
	"github.com/krishisangam/backend/internal/provider"
)

// ---------------------------------------------------------------------------
// Mock Store
// ---------------------------------------------------------------------------

// mockStore keeps payments in a map and reproduces the conditional-update
// contracts of the SQL layer: MarkPaid settles once, BeginTransfer admits one
// claimer, UpdatePayoutStatus never changes a terminal row.
type mockStore struct {
	payments  map[uuid.UUID]*models.Payment
	jobs      map[uuid.UUID]*models.Job
	claimedAt map[uuid.UUID]time.Time
}

func newMockStore() *mockStore {
	return &mockStore{
		payments:  make(map[uuid.UUID]*models.Payment),
		jobs:      make(map[uuid.UUID]*models.Job),
		claimedAt: make(map[uuid.UUID]time.Time),
	}
}

func (m *mockStore) Create(_ context.Context, p *models.Payment) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.Status = models.PaymentStatusCreated
	p.PayoutStatus = models.PayoutStatusPending
	m.payments[p.ID] = p
	return nil
}

func (m *mockStore) GetByID(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	return m.payments[id], nil
}

func (m *mockStore) GetByProviderOrderID(_ context.Context, orderID string) (*models.Payment, error) {
	for _, p := range m.payments {
		if p.ProviderOrderID == orderID {
			return p, nil
		}
	}
	return nil, nil
}

func (m *mockStore) GetByPayoutID(_ context.Context, payoutID string) (*models.Payment, error) {
	for _, p := range m.payments {
		if p.PayoutID != nil && *p.PayoutID == payoutID {
			return p, nil
		}
	}
	return nil, nil
}

func (m *mockStore) GetByJob(_ context.Context, jobID uuid.UUID) (*models.Payment, error) {
	for _, p := range m.payments {
		if p.JobID == jobID {
			return p, nil
		}
	}
	return nil, nil
}

func (m *mockStore) ListByFarmer(_ context.Context, farmerID uuid.UUID) ([]*models.Payment, error) {
	var out []*models.Payment
	for _, p := range m.payments {
		if p.FarmerID == farmerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockStore) ListByLabour(_ context.Context, labourID uuid.UUID) ([]*models.Payment, error) {
	var out []*models.Payment
	for _, p := range m.payments {
		if p.LabourID == labourID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockStore) MarkPaid(_ context.Context, orderID, providerPaymentID, signature string) (bool, error) {
	p, _ := m.GetByProviderOrderID(context.Background(), orderID)
	if p == nil || (p.Status != models.PaymentStatusCreated && p.Status != models.PaymentStatusPending) {
		return false, nil
	}
	p.Status = models.PaymentStatusSuccess
	p.ProviderPaymentID = providerPaymentID
	p.ProviderSignature = signature
	now := time.Now()
	p.PaidAt = &now
	return true, nil
}

func (m *mockStore) MarkFailed(_ context.Context, orderID string) (bool, error) {
	p, _ := m.GetByProviderOrderID(context.Background(), orderID)
	if p == nil || (p.Status != models.PaymentStatusCreated && p.Status != models.PaymentStatusPending) {
		return false, nil
	}
	p.Status = models.PaymentStatusFailed
	return true, nil
}

func (m *mockStore) BeginTransfer(_ context.Context, paymentID uuid.UUID) (bool, error) {
	p := m.payments[paymentID]
	if p == nil || p.Status != models.PaymentStatusSuccess {
		return false, nil
	}
	fresh := p.PayoutID == nil && p.PayoutStatus == models.PayoutStatusPending
	stale := p.PayoutID == nil && p.PayoutStatus == models.PayoutStatusQueued &&
		time.Since(m.claimedAt[paymentID]) > 10*time.Minute
	retry := models.PayoutRetryable(p.PayoutStatus)
	if !fresh && !stale && !retry {
		return false, nil
	}
	p.PayoutStatus = models.PayoutStatusQueued
	p.PayoutID = nil
	p.PayoutUTR = nil
	p.TransferredAt = nil
	m.claimedAt[paymentID] = time.Now()
	return true, nil
}

func (m *mockStore) ReleaseTransfer(_ context.Context, paymentID uuid.UUID) error {
	p := m.payments[paymentID]
	if p != nil && p.PayoutID == nil && p.PayoutStatus == models.PayoutStatusQueued {
		p.PayoutStatus = models.PayoutStatusPending
	}
	return nil
}

func (m *mockStore) RecordPayout(_ context.Context, paymentID uuid.UUID, payoutID, status string, utr *string) error {
	p := m.payments[paymentID]
	if p == nil || p.PayoutID != nil {
		return nil
	}
	p.PayoutID = &payoutID
	p.PayoutStatus = status
	p.PayoutUTR = utr
	if status == models.PayoutStatusProcessed {
		now := time.Now()
		p.TransferredAt = &now
	}
	return nil
}

func (m *mockStore) UpdatePayoutStatus(_ context.Context, payoutID, status string, utr *string) (bool, error) {
	p, _ := m.GetByPayoutID(context.Background(), payoutID)
	if p == nil || models.PayoutTerminal(p.PayoutStatus) {
		return false, nil
	}
	p.PayoutStatus = status
	if utr != nil {
		p.PayoutUTR = utr
	}
	if status == models.PayoutStatusProcessed {
		now := time.Now()
		p.TransferredAt = &now
	}
	return true, nil
}

func (m *mockStore) SetJobOrder(_ context.Context, jobID uuid.UUID, orderID, receipt string, totalAmount int64) (bool, error) {
	j := m.jobs[jobID]
	if j == nil || j.PaymentStatus == models.JobPaymentCompleted {
		return false, nil
	}
	j.PaymentStatus = models.JobPaymentProcessing
	j.TotalAmount = &totalAmount
	j.PaymentDetails = &models.PaymentDetails{ProviderOrderID: orderID, Receipt: receipt}
	return true, nil
}

func (m *mockStore) SetJobPaid(_ context.Context, jobID uuid.UUID, providerPaymentID string) error {
	j := m.jobs[jobID]
	if j == nil {
		return nil
	}
	j.PaymentStatus = models.JobPaymentCompleted
	if j.PaymentDetails == nil {
		j.PaymentDetails = &models.PaymentDetails{}
	}
	j.PaymentDetails.ProviderPaymentID = providerPaymentID
	now := time.Now()
	j.PaymentDetails.PaidAt = &now
	return nil
}

func (m *mockStore) SetJobPaymentFailed(_ context.Context, jobID uuid.UUID) error {
	if j := m.jobs[jobID]; j != nil && j.PaymentStatus == models.JobPaymentProcessing {
		j.PaymentStatus = models.JobPaymentFailed
	}
	return nil
}

// mockStore doubles as the job lookup.
func (m *mockStore) jobLookup() JobLookup { return jobLookupFunc(m.getJob) }

type jobLookupFunc func(ctx context.Context, id uuid.UUID) (*models.Job, error)

func (f jobLookupFunc) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return f(ctx, id)
}

func (m *mockStore) getJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	return m.jobs[id], nil
}

// ---------------------------------------------------------------------------
// Mock users, notifier and gateway
// ---------------------------------------------------------------------------

type mockUsers struct {
	users map[uuid.UUID]*models.User
}

func (m *mockUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return m.users[id], nil
}

func (m *mockUsers) ClaimProviderContact(_ context.Context, userID uuid.UUID, contactID string) (bool, error) {
	u := m.users[userID]
	if u == nil || u.ProviderContactID != nil {
		return false, nil
	}
	u.ProviderContactID = &contactID
	return true, nil
}

func (m *mockUsers) ClaimProviderFundAccount(_ context.Context, userID uuid.UUID, fundAccountID string) (bool, error) {
	u := m.users[userID]
	if u == nil || u.ProviderFundAccountID != nil {
		return false, nil
	}
	u.ProviderFundAccountID = &fundAccountID
	if u.BankDetails != nil {
		u.BankDetails.Verified = true
	}
	return true, nil
}

type mockNotifier struct {
	sent []*models.Notification
}

func (m *mockNotifier) Notify(_ context.Context, n *models.Notification) {
	m.sent = append(m.sent, n)
}

// countingGateway wraps the offline provider mock and counts payout calls.
// payoutStatus, when set, overrides the mock's immediate "processed" so tests
// can exercise the live gateway's queued lifecycle.
type countingGateway struct {
	provider.Client
	payouts      int
	payoutErr    error
	payoutStatus string
}

func (g *countingGateway) CreatePayout(ctx context.Context, req provider.PayoutRequest) (*provider.Payout, error) {
	g.payouts++
	if g.payoutErr != nil {
		return nil, g.payoutErr
	}
	payout, err := g.Client.CreatePayout(ctx, req)
	if err == nil && g.payoutStatus != "" {
		payout.Status = g.payoutStatus
		payout.UTR = ""
	}
	return payout, err
}

// ---------------------------------------------------------------------------
// fixture
// ---------------------------------------------------------------------------

const (
	testKeySecret     = "test_key_secret"
	testWebhookSecret = "test_webhook_secret"
)

type fixture struct {
	svc      Service
	store    *mockStore
	users    *mockUsers
	notifier *mockNotifier
	gateway  *countingGateway
	enqueued []uuid.UUID

	farmer *models.User
	labour *models.User
	job    *models.Job
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    newMockStore(),
		users:    &mockUsers{users: make(map[uuid.UUID]*models.User)},
		notifier: &mockNotifier{},
		gateway:  &countingGateway{Client: provider.NewMock()},
	}
	f.farmer = &models.User{ID: uuid.New(), Role: models.RoleFarmer, FirstName: "Raman"}
	f.labour = &models.User{
		ID: uuid.New(), Role: models.RoleLabour, FirstName: "Selvi",
		Phone: "9800000001",
		BankDetails: &models.BankDetails{
			AccountHolderName: "Selvi M",
			AccountNumber:     "1234567890",
			IFSCCode:          "HDFC0000123",
		},
	}
	f.users.users[f.farmer.ID] = f.farmer
	f.users.users[f.labour.ID] = f.labour

	labourID := f.labour.ID
	f.job = &models.Job{
		ID:               uuid.New(),
		FarmerID:         f.farmer.ID,
		Title:            "Paddy harvest",
		Wage:             500,
		DurationUnits:    3,
		Status:           models.JobStatusInProgress,
		AssignedLabourID: &labourID,
		PaymentStatus:    models.JobPaymentPending,
	}
	f.store.jobs[f.job.ID] = f.job

	cfg := &config.Config{
		PaymentMode:           config.PaymentModeMock,
		ProviderKeyID:         "rzp_test_key",
		ProviderKeySecret:     testKeySecret,
		ProviderAccountNumber: "2323230000000000",
		WebhookSecret:         testWebhookSecret,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	enqueue := func(_ context.Context, paymentID uuid.UUID) error {
		f.enqueued = append(f.enqueued, paymentID)
		return nil
	}
	f.svc = NewService(f.store, f.store.jobLookup(), f.users, f.gateway, f.notifier, enqueue, cfg, logger)
	return f
}

func (f *fixture) createOrder(t *testing.T) *Order {
	t.Helper()
	order, err := f.svc.CreateOrder(context.Background(), f.farmer.ID, f.job.ID, nil)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return order
}

func (f *fixture) verify(t *testing.T, order *Order) *models.Payment {
	t.Helper()
	providerPaymentID := "pay_mock_1"
	p, err := f.svc.VerifyPayment(context.Background(), f.farmer.ID, VerifyInput{
		OrderID:           order.OrderID,
		ProviderPaymentID: providerPaymentID,
		Signature:         checkoutSignature(testKeySecret, order.OrderID, providerPaymentID),
	})
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	return p
}

// ---------------------------------------------------------------------------
// 1. Order creation
// ---------------------------------------------------------------------------

func TestCreateOrderAmountFromWage(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)

	// wage 500 x 3 duration units
	if order.Amount != 1500 {
		t.Fatalf("amount = %d, want 1500", order.Amount)
	}
	if order.AmountPaise != 150000 {
		t.Fatalf("amount paise = %d, want 150000", order.AmountPaise)
	}
	if order.Currency != "INR" || order.KeyID != "rzp_test_key" {
		t.Fatalf("order = %+v", order)
	}
	if f.job.PaymentStatus != models.JobPaymentProcessing {
		t.Fatalf("job payment status = %q", f.job.PaymentStatus)
	}
	if f.job.TotalAmount == nil || *f.job.TotalAmount != 1500 {
		t.Fatal("total amount not recorded on job")
	}
}

func TestCreateOrderAmountOverride(t *testing.T) {
	f := newFixture(t)
	override := int64(2000)
	order, err := f.svc.CreateOrder(context.Background(), f.farmer.ID, f.job.ID, &override)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Amount != 2000 {
		t.Fatalf("amount = %d, want 2000", order.Amount)
	}

	bad := int64(-10)
	if _, err := f.svc.CreateOrder(context.Background(), f.farmer.ID, f.job.ID, &bad); !errors.Is(err, ErrBadAmount) {
		t.Fatalf("expected ErrBadAmount, got %v", err)
	}
}

func TestCreateOrderGuards(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.CreateOrder(context.Background(), uuid.New(), f.job.ID, nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.CreateOrder(context.Background(), f.farmer.ID, uuid.New(), nil); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}

	f.job.AssignedLabourID = nil
	if _, err := f.svc.CreateOrder(context.Background(), f.farmer.ID, f.job.ID, nil); !errors.Is(err, ErrJobNotAssigned) {
		t.Fatalf("expected ErrJobNotAssigned, got %v", err)
	}

	labourID := f.labour.ID
	f.job.AssignedLabourID = &labourID
	f.job.PaymentStatus = models.JobPaymentCompleted
	if _, err := f.svc.CreateOrder(context.Background(), f.farmer.ID, f.job.ID, nil); !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("expected ErrAlreadyPaid, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// 2. Verification
// ---------------------------------------------------------------------------

func TestVerifyPayment(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	p := f.verify(t, order)

	if p.Status != models.PaymentStatusSuccess {
		t.Fatalf("status = %q, want success", p.Status)
	}
	if f.job.PaymentStatus != models.JobPaymentCompleted {
		t.Fatalf("job payment status = %q, want completed", f.job.PaymentStatus)
	}
	if len(f.enqueued) != 1 || f.enqueued[0] != p.ID {
		t.Fatalf("transfer not enqueued: %v", f.enqueued)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].Type != models.NotifyPaymentReceived {
		t.Fatalf("notifications = %+v", f.notifier.sent)
	}
}

func TestVerifyPaymentTamperedSignature(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)

	_, err := f.svc.VerifyPayment(context.Background(), f.farmer.ID, VerifyInput{
		OrderID:           order.OrderID,
		ProviderPaymentID: "pay_mock_1",
		Signature:         checkoutSignature(testKeySecret, order.OrderID, "pay_mock_other"),
	})
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}

	p, _ := f.store.GetByProviderOrderID(context.Background(), order.OrderID)
	if p.Status != models.PaymentStatusFailed {
		t.Fatalf("payment status = %q, want failed", p.Status)
	}
	if f.job.PaymentStatus != models.JobPaymentFailed {
		t.Fatalf("job payment status = %q, want failed", f.job.PaymentStatus)
	}
	if len(f.enqueued) != 0 {
		t.Fatal("transfer must not be enqueued on signature failure")
	}
}

func TestVerifyPaymentTwice(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	f.verify(t, order)

	providerPaymentID := "pay_mock_1"
	_, err := f.svc.VerifyPayment(context.Background(), f.farmer.ID, VerifyInput{
		OrderID:           order.OrderID,
		ProviderPaymentID: providerPaymentID,
		Signature:         checkoutSignature(testKeySecret, order.OrderID, providerPaymentID),
	})
	if !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("expected ErrAlreadyPaid on replay, got %v", err)
	}
}

func TestVerifyPaymentWrongCaller(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	_, err := f.svc.VerifyPayment(context.Background(), uuid.New(), VerifyInput{
		OrderID:           order.OrderID,
		ProviderPaymentID: "pay_mock_1",
		Signature:         "sig",
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// 3. Transfer
// ---------------------------------------------------------------------------

func TestTransferHappyPath(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	p := f.verify(t, order)

	if err := f.svc.TransferToLaborer(context.Background(), p.ID); err != nil {
		t.Fatalf("TransferToLaborer: %v", err)
	}

	got := f.store.payments[p.ID]
	if got.PayoutID == nil {
		t.Fatal("payout id not recorded")
	}
	if got.PayoutStatus != models.PayoutStatusProcessed {
		t.Fatalf("payout status = %q", got.PayoutStatus)
	}
	if got.PayoutUTR == nil {
		t.Fatal("UTR not recorded")
	}
	// Contact and fund account were created and cached on the labourer.
	if f.labour.ProviderContactID == nil || f.labour.ProviderFundAccountID == nil {
		t.Fatal("provider ids not cached on labourer")
	}
	if !f.labour.BankDetails.Verified {
		t.Fatal("bank details not flipped to verified")
	}
	if f.gateway.payouts != 1 {
		t.Fatalf("payout calls = %d, want 1", f.gateway.payouts)
	}
}

func TestTransferOrderedChecks(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)

	// 1. unknown payment
	if err := f.svc.TransferToLaborer(context.Background(), uuid.New()); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}

	// 2. not captured yet
	p, _ := f.store.GetByProviderOrderID(context.Background(), order.OrderID)
	if err := f.svc.TransferToLaborer(context.Background(), p.ID); !errors.Is(err, ErrPaymentNotCaptured) {
		t.Fatalf("expected ErrPaymentNotCaptured, got %v", err)
	}

	// 4. missing bank details
	f.verify(t, order)
	f.labour.BankDetails = nil
	if err := f.svc.TransferToLaborer(context.Background(), p.ID); !errors.Is(err, ErrNoBankDetails) {
		t.Fatalf("expected ErrNoBankDetails, got %v", err)
	}
	// The claim was never taken, so a retry works once details exist.
	f.labour.BankDetails = &models.BankDetails{AccountHolderName: "Selvi M", AccountNumber: "1234567890", IFSCCode: "HDFC0000123"}
	if err := f.svc.TransferToLaborer(context.Background(), p.ID); err != nil {
		t.Fatalf("retry after adding bank details: %v", err)
	}

	// 3. already transferred
	if err := f.svc.TransferToLaborer(context.Background(), p.ID); !errors.Is(err, ErrAlreadyTransferred) {
		t.Fatalf("expected ErrAlreadyTransferred, got %v", err)
	}
	if f.gateway.payouts != 1 {
		t.Fatalf("payout calls = %d, want exactly 1", f.gateway.payouts)
	}
}

func TestTransferReleasesClaimOnGatewayError(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	p := f.verify(t, order)

	f.gateway.payoutErr = &provider.Error{StatusCode: 502, Description: "gateway busy"}
	if err := f.svc.TransferToLaborer(context.Background(), p.ID); err == nil {
		t.Fatal("expected gateway error")
	}

	got := f.store.payments[p.ID]
	if got.PayoutID != nil || got.PayoutStatus != models.PayoutStatusPending {
		t.Fatalf("claim not released: %+v", got)
	}

	// Retry succeeds once the gateway recovers.
	f.gateway.payoutErr = nil
	if err := f.svc.TransferToLaborer(context.Background(), p.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestTransferQueuedPayoutHasNoTransferTime(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	p := f.verify(t, order)

	// A live gateway queues the payout; money has not moved yet.
	f.gateway.payoutStatus = models.PayoutStatusQueued
	if err := f.svc.TransferToLaborer(context.Background(), p.ID); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	got := f.store.payments[p.ID]
	if got.PayoutID == nil || got.PayoutStatus != models.PayoutStatusQueued {
		t.Fatalf("payout not recorded as queued: %+v", got)
	}
	if got.TransferredAt != nil {
		t.Fatalf("transferred_at stamped before settlement: %v", *got.TransferredAt)
	}

	// The settlement webhook stamps the transfer time.
	body := webhookBody(t, "payout.processed", map[string]any{
		"payout": map[string]any{"entity": map[string]any{
			"id": *got.PayoutID, "status": "processed", "utr": "UTR777",
		}},
	})
	if err := f.svc.ProcessWebhook(context.Background(), body); err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}
	if got.PayoutStatus != models.PayoutStatusProcessed || got.TransferredAt == nil {
		t.Fatalf("settlement not stamped: %+v", got)
	}
}

func TestTransferRetriesReversedPayout(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	p := f.verify(t, order)
	if err := f.svc.TransferToLaborer(context.Background(), p.ID); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	got := f.store.payments[p.ID]
	firstPayout := *got.PayoutID

	// A processed payout never runs twice.
	if err := f.svc.TransferToLaborer(context.Background(), p.ID); !errors.Is(err, ErrAlreadyTransferred) {
		t.Fatalf("err = %v, want ErrAlreadyTransferred", err)
	}

	// The bank bounced the transfer; the provider reverses the payout.
	got.PayoutStatus = models.PayoutStatusReversed

	if err := f.svc.TransferToLaborer(context.Background(), p.ID); err != nil {
		t.Fatalf("retry after reversal: %v", err)
	}
	if got.PayoutID == nil || *got.PayoutID == firstPayout {
		t.Fatalf("expected a fresh payout, got %+v", got.PayoutID)
	}
	if got.PayoutStatus != models.PayoutStatusProcessed || f.gateway.payouts != 2 {
		t.Fatalf("retry did not settle: status=%q payouts=%d", got.PayoutStatus, f.gateway.payouts)
	}
}

func TestTransferRecoversStaleClaim(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	p := f.verify(t, order)

	// Simulate a crash after the claim but before the provider call: the
	// slot is queued with no payout recorded.
	got := f.store.payments[p.ID]
	got.PayoutStatus = models.PayoutStatusQueued
	f.store.claimedAt[p.ID] = time.Now().Add(-30 * time.Minute)

	if err := f.svc.TransferToLaborer(context.Background(), p.ID); err != nil {
		t.Fatalf("recovery transfer: %v", err)
	}
	if got.PayoutID == nil || got.PayoutStatus != models.PayoutStatusProcessed {
		t.Fatalf("stale claim not recovered: %+v", got)
	}

	// A fresh claim stays exclusive.
	got2 := f.store.payments[p.ID]
	got2.PayoutStatus = models.PayoutStatusQueued
	got2.PayoutID = nil
	f.store.claimedAt[p.ID] = time.Now()
	if err := f.svc.TransferToLaborer(context.Background(), p.ID); !errors.Is(err, ErrAlreadyTransferred) {
		t.Fatalf("err = %v, want ErrAlreadyTransferred for in-flight claim", err)
	}
}

// ---------------------------------------------------------------------------
// 4. Payout status and webhooks
// ---------------------------------------------------------------------------

func TestGetPayoutStatusAuthorization(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	p := f.verify(t, order)

	if _, err := f.svc.GetPayoutStatus(context.Background(), uuid.New(), p.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	// Both parties may look.
	for _, caller := range []uuid.UUID{f.farmer.ID, f.labour.ID} {
		if _, err := f.svc.GetPayoutStatus(context.Background(), caller, p.ID); err != nil {
			t.Fatalf("GetPayoutStatus(%s): %v", caller, err)
		}
	}
}

func webhookBody(t *testing.T, event string, payload map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{"event": event, "payload": payload})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestWebhookPayoutProcessed(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	p := f.verify(t, order)
	if err := f.svc.TransferToLaborer(context.Background(), p.ID); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	got := f.store.payments[p.ID]
	// Rewind to a non-terminal status as if the provider had queued it.
	got.PayoutStatus = models.PayoutStatusProcessing

	body := webhookBody(t, "payout.processed", map[string]any{
		"payout": map[string]any{"entity": map[string]any{
			"id": *got.PayoutID, "status": "processed", "utr": "UTR999",
		}},
	})
	if err := f.svc.ProcessWebhook(context.Background(), body); err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}
	if got.PayoutStatus != models.PayoutStatusProcessed || got.PayoutUTR == nil || *got.PayoutUTR != "UTR999" {
		t.Fatalf("payout not reconciled: %+v", got)
	}

	// Replaying the event is a no-op on a terminal row.
	if err := f.svc.ProcessWebhook(context.Background(), body); err != nil {
		t.Fatalf("replay: %v", err)
	}
}

func TestWebhookPaymentFailed(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)

	body := webhookBody(t, "payment.failed", map[string]any{
		"payment": map[string]any{"entity": map[string]any{
			"id": "pay_mock_1", "order_id": order.OrderID,
		}},
	})
	if err := f.svc.ProcessWebhook(context.Background(), body); err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}
	p, _ := f.store.GetByProviderOrderID(context.Background(), order.OrderID)
	if p.Status != models.PaymentStatusFailed {
		t.Fatalf("payment status = %q, want failed", p.Status)
	}
	if f.job.PaymentStatus != models.JobPaymentFailed {
		t.Fatalf("job payment status = %q, want failed", f.job.PaymentStatus)
	}
}

func TestWebhookUnknownEventIgnored(t *testing.T) {
	f := newFixture(t)
	body := webhookBody(t, "invoice.paid", map[string]any{})
	if err := f.svc.ProcessWebhook(context.Background(), body); err != nil {
		t.Fatalf("unknown event should be absorbed, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// 5. Signatures
// ---------------------------------------------------------------------------

func TestCheckoutSignature(t *testing.T) {
	sig := checkoutSignature("secret", "order_1", "pay_1")
	if !validCheckoutSignature("secret", "order_1", "pay_1", sig) {
		t.Fatal("valid signature rejected")
	}
	if validCheckoutSignature("secret", "order_1", "pay_2", sig) {
		t.Fatal("signature accepted for different payment")
	}
	if validCheckoutSignature("other", "order_1", "pay_1", sig) {
		t.Fatal("signature accepted under different secret")
	}
}

func webhookSig(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookSignature(t *testing.T) {
	body := []byte(`{"event":"payout.processed"}`)
	good := webhookSig(testWebhookSecret, body)
	if !validWebhookSignature(testWebhookSecret, body, good) {
		t.Fatal("valid webhook signature rejected")
	}
	if validWebhookSignature(testWebhookSecret, append(body, ' '), good) {
		t.Fatal("signature accepted for altered body")
	}
}
