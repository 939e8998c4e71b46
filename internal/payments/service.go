package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/krishisangam/backend/internal/config"
	"github.com/krishisangam/backend/internal/models"
	"github.com/krishisangam/backend/internal/provider"
)

var (
	ErrJobNotFound        = errors.New("job not found")
	ErrForbidden          = errors.New("payment does not belong to caller")
	ErrJobNotAssigned     = errors.New("job has no assigned labourer")
	ErrAlreadyPaid        = errors.New("job already paid")
	ErrBadAmount          = errors.New("amount must be positive")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrBadSignature       = errors.New("payment signature verification failed")
	ErrPaymentNotCaptured = errors.New("payment is not in success state")
	ErrAlreadyTransferred = errors.New("payout already initiated for this payment")
	ErrNoBankDetails      = errors.New("labourer has no bank account on file")
)

// Store is the repository surface the service depends on.
type Store interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetByProviderOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	GetByPayoutID(ctx context.Context, payoutID string) (*models.Payment, error)
	GetByJob(ctx context.Context, jobID uuid.UUID) (*models.Payment, error)
	ListByFarmer(ctx context.Context, farmerID uuid.UUID) ([]*models.Payment, error)
	ListByLabour(ctx context.Context, labourID uuid.UUID) ([]*models.Payment, error)
	MarkPaid(ctx context.Context, orderID, providerPaymentID, signature string) (bool, error)
	MarkFailed(ctx context.Context, orderID string) (bool, error)
	BeginTransfer(ctx context.Context, paymentID uuid.UUID) (bool, error)
	ReleaseTransfer(ctx context.Context, paymentID uuid.UUID) error
	RecordPayout(ctx context.Context, paymentID uuid.UUID, payoutID, status string, utr *string) error
	UpdatePayoutStatus(ctx context.Context, payoutID, status string, utr *string) (bool, error)
	SetJobOrder(ctx context.Context, jobID uuid.UUID, orderID, receipt string, totalAmount int64) (bool, error)
	SetJobPaid(ctx context.Context, jobID uuid.UUID, providerPaymentID string) error
	SetJobPaymentFailed(ctx context.Context, jobID uuid.UUID) error
}

// JobLookup resolves the job a payment settles.
type JobLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

// UserStore covers labourer lookup and the provider-id claims used when a
// contact or fund account is created lazily.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ClaimProviderContact(ctx context.Context, userID uuid.UUID, contactID string) (bool, error)
	ClaimProviderFundAccount(ctx context.Context, userID uuid.UUID, fundAccountID string) (bool, error)
}

type Notifier interface {
	Notify(ctx context.Context, n *models.Notification)
}

// EnqueueTransferFunc schedules a deferred payout for the payment. Provided
// by main as a closure over the river client.
type EnqueueTransferFunc func(ctx context.Context, paymentID uuid.UUID) error

// Order is what a checkout frontend needs to collect the payment.
type Order struct {
	PaymentID   uuid.UUID `json:"payment_id"`
	OrderID     string    `json:"order_id"`
	Amount      int64     `json:"amount"`       // rupees
	AmountPaise int64     `json:"amount_paise"`
	Currency    string    `json:"currency"`
	KeyID       string    `json:"key_id"`
	Receipt     string    `json:"receipt"`
}

type VerifyInput struct {
	OrderID           string `json:"provider_order_id"`
	ProviderPaymentID string `json:"provider_payment_id"`
	Signature         string `json:"provider_signature"`
}

type Service interface {
	CreateOrder(ctx context.Context, farmerID, jobID uuid.UUID, amountOverride *int64) (*Order, error)
	VerifyPayment(ctx context.Context, farmerID uuid.UUID, input VerifyInput) (*models.Payment, error)
	TransferToLaborer(ctx context.Context, paymentID uuid.UUID) error
	GetPayoutStatus(ctx context.Context, callerID, paymentID uuid.UUID) (*models.Payment, error)
	GetJobPayment(ctx context.Context, callerID, jobID uuid.UUID) (*models.Payment, error)
	ListByFarmer(ctx context.Context, farmerID uuid.UUID) ([]*models.Payment, error)
	ListByLabour(ctx context.Context, labourID uuid.UUID) ([]*models.Payment, error)
	ProcessWebhook(ctx context.Context, body []byte) error
}

type service struct {
	store           Store
	jobs            JobLookup
	users           UserStore
	gateway         provider.Client
	notifier        Notifier
	enqueueTransfer EnqueueTransferFunc
	cfg             *config.Config
	logger          *slog.Logger
}

var _ Service = (*service)(nil)

func NewService(store Store, jobs JobLookup, users UserStore, gateway provider.Client,
	notifier Notifier, enqueueTransfer EnqueueTransferFunc, cfg *config.Config, logger *slog.Logger) Service {
	return &service{
		store:           store,
		jobs:            jobs,
		users:           users,
		gateway:         gateway,
		notifier:        notifier,
		enqueueTransfer: enqueueTransfer,
		cfg:             cfg,
		logger:          logger,
	}
}

const currency = "INR"

func (s *service) CreateOrder(ctx context.Context, farmerID, jobID uuid.UUID, amountOverride *int64) (*Order, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	if job.FarmerID != farmerID {
		return nil, ErrForbidden
	}
	if job.AssignedLabourID == nil {
		return nil, ErrJobNotAssigned
	}
	if job.PaymentStatus == models.JobPaymentCompleted {
		return nil, ErrAlreadyPaid
	}

	amount := job.Wage * int64(job.DurationUnits)
	if amountOverride != nil {
		amount = *amountOverride
	}
	if amount <= 0 {
		return nil, ErrBadAmount
	}

	receipt := fmt.Sprintf("job_%s_%d", strings.Split(jobID.String(), "-")[0], time.Now().Unix())
	order, err := s.gateway.CreateOrder(ctx, amount*100, currency, receipt, map[string]string{
		"job_id":    jobID.String(),
		"farmer_id": farmerID.String(),
	})
	if err != nil {
		return nil, err
	}

	p := &models.Payment{
		JobID:           jobID,
		FarmerID:        farmerID,
		LabourID:        *job.AssignedLabourID,
		Amount:          amount,
		Currency:        currency,
		ProviderOrderID: order.ID,
		Status:          models.PaymentStatusCreated,
		Receipt:         receipt,
		PayoutStatus:    models.PayoutStatusPending,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	ok, err := s.store.SetJobOrder(ctx, jobID, order.ID, receipt, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyPaid
	}

	ordersCreated.Inc()
	s.logger.Info("payment order created",
		"job_id", jobID, "payment_id", p.ID, "order_id", order.ID, "amount", amount)

	return &Order{
		PaymentID:   p.ID,
		OrderID:     order.ID,
		Amount:      amount,
		AmountPaise: amount * 100,
		Currency:    currency,
		KeyID:       s.cfg.ProviderKeyID,
		Receipt:     receipt,
	}, nil
}

func (s *service) VerifyPayment(ctx context.Context, farmerID uuid.UUID, input VerifyInput) (*models.Payment, error) {
	p, err := s.store.GetByProviderOrderID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPaymentNotFound
	}
	if p.FarmerID != farmerID {
		return nil, ErrForbidden
	}

	if !validCheckoutSignature(s.cfg.ProviderKeySecret, input.OrderID, input.ProviderPaymentID, input.Signature) {
		verifications.WithLabelValues("invalid").Inc()
		if _, err := s.store.MarkFailed(ctx, input.OrderID); err != nil {
			s.logger.Error("mark payment failed", "order_id", input.OrderID, "error", err)
		}
		if err := s.store.SetJobPaymentFailed(ctx, p.JobID); err != nil {
			s.logger.Error("mark job payment failed", "job_id", p.JobID, "error", err)
		}
		return nil, ErrBadSignature
	}

	ok, err := s.store.MarkPaid(ctx, input.OrderID, input.ProviderPaymentID, input.Signature)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyPaid
	}
	if err := s.store.SetJobPaid(ctx, p.JobID, input.ProviderPaymentID); err != nil {
		return nil, err
	}
	verifications.WithLabelValues("valid").Inc()

	s.notifier.Notify(ctx, &models.Notification{
		RecipientID: p.LabourID,
		SenderID:    &farmerID,
		Type:        models.NotifyPaymentReceived,
		Title:       "Payment received",
		Message:     fmt.Sprintf("A payment of Rs %d has been received; your payout will follow shortly", p.Amount),
		JobID:       &p.JobID,
		PaymentID:   &p.ID,
	})

	// The payout runs out of band so a queue hiccup never unwinds a
	// verified payment. A stuck transfer is retried through the transfer
	// endpoint.
	if err := s.enqueueTransfer(ctx, p.ID); err != nil {
		s.logger.Error("enqueue payout failed", "payment_id", p.ID, "error", err)
	}

	return s.store.GetByID(ctx, p.ID)
}

func (s *service) TransferToLaborer(ctx context.Context, paymentID uuid.UUID) error {
	p, err := s.store.GetByID(ctx, paymentID)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrPaymentNotFound
	}
	if p.Status != models.PaymentStatusSuccess {
		return ErrPaymentNotCaptured
	}
	if p.PayoutID != nil && !models.PayoutRetryable(p.PayoutStatus) {
		return ErrAlreadyTransferred
	}

	labour, err := s.users.GetByID(ctx, p.LabourID)
	if err != nil {
		return err
	}
	if labour == nil || labour.BankDetails == nil || labour.BankDetails.AccountNumber == "" {
		return ErrNoBankDetails
	}

	claimed, err := s.store.BeginTransfer(ctx, paymentID)
	if err != nil {
		return err
	}
	if !claimed {
		return ErrAlreadyTransferred
	}

	fundAccountID, err := s.ensureFundAccount(ctx, labour)
	if err != nil {
		s.release(ctx, paymentID)
		return err
	}

	payout, err := s.gateway.CreatePayout(ctx, provider.PayoutRequest{
		AccountNumber: s.cfg.ProviderAccountNumber,
		FundAccountID: fundAccountID,
		AmountPaise:   p.Amount * 100,
		Currency:      p.Currency,
		Mode:          "IMPS",
		ReferenceID:   p.ID.String(),
		Narration:     "KrishiSangam wage payout",
		Notes: map[string]string{
			"job_id":     p.JobID.String(),
			"payment_id": p.ID.String(),
		},
	})
	if err != nil {
		s.release(ctx, paymentID)
		return err
	}

	var utr *string
	if payout.UTR != "" {
		utr = &payout.UTR
	}
	if err := s.store.RecordPayout(ctx, paymentID, payout.ID, payout.Status, utr); err != nil {
		return err
	}
	payoutsInitiated.Inc()
	payoutTransitions.WithLabelValues(payout.Status).Inc()
	s.logger.Info("payout initiated",
		"payment_id", paymentID, "payout_id", payout.ID, "status", payout.Status)

	s.notifier.Notify(ctx, &models.Notification{
		RecipientID: p.LabourID,
		SenderID:    &p.FarmerID,
		Type:        models.NotifyMoneyTransferred,
		Title:       "Money on the way",
		Message:     fmt.Sprintf("Rs %d is being transferred to your bank account", p.Amount),
		JobID:       &p.JobID,
		PaymentID:   &p.ID,
	})
	return nil
}

func (s *service) release(ctx context.Context, paymentID uuid.UUID) {
	if err := s.store.ReleaseTransfer(ctx, paymentID); err != nil {
		s.logger.Error("release transfer claim failed", "payment_id", paymentID, "error", err)
	}
}

// ensureFundAccount returns the labourer's provider fund account, creating
// the contact and fund account on first use. Claims are conditional updates;
// losing one means a concurrent transfer created the id first, so re-read.
func (s *service) ensureFundAccount(ctx context.Context, labour *models.User) (string, error) {
	if labour.ProviderFundAccountID != nil {
		return *labour.ProviderFundAccountID, nil
	}

	contactID := ""
	if labour.ProviderContactID != nil {
		contactID = *labour.ProviderContactID
	} else {
		contact, err := s.gateway.CreateContact(ctx, labour.FullName(), labour.Email, labour.Phone, labour.ID.String())
		if err != nil {
			return "", err
		}
		contactID = contact.ID
		won, err := s.users.ClaimProviderContact(ctx, labour.ID, contactID)
		if err != nil {
			return "", err
		}
		if !won {
			fresh, err := s.users.GetByID(ctx, labour.ID)
			if err != nil {
				return "", err
			}
			if fresh != nil && fresh.ProviderContactID != nil {
				contactID = *fresh.ProviderContactID
			}
		}
	}

	fa, err := s.gateway.CreateFundAccount(ctx, contactID, provider.BankAccount{
		Name:          labour.BankDetails.AccountHolderName,
		IFSC:          labour.BankDetails.IFSCCode,
		AccountNumber: labour.BankDetails.AccountNumber,
	})
	if err != nil {
		return "", err
	}
	won, err := s.users.ClaimProviderFundAccount(ctx, labour.ID, fa.ID)
	if err != nil {
		return "", err
	}
	if !won {
		fresh, err := s.users.GetByID(ctx, labour.ID)
		if err != nil {
			return "", err
		}
		if fresh != nil && fresh.ProviderFundAccountID != nil {
			return *fresh.ProviderFundAccountID, nil
		}
	}
	return fa.ID, nil
}

func (s *service) GetPayoutStatus(ctx context.Context, callerID, paymentID uuid.UUID) (*models.Payment, error) {
	p, err := s.store.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPaymentNotFound
	}
	if p.FarmerID != callerID && p.LabourID != callerID {
		return nil, ErrForbidden
	}
	if p.PayoutID == nil || models.PayoutTerminal(p.PayoutStatus) {
		return p, nil
	}

	payout, err := s.gateway.FetchPayout(ctx, *p.PayoutID)
	if err != nil {
		// Provider unreachable: serve the local view.
		s.logger.Warn("payout fetch failed", "payout_id", *p.PayoutID, "error", err)
		return p, nil
	}
	var utr *string
	if payout.UTR != "" {
		utr = &payout.UTR
	}
	changed, err := s.store.UpdatePayoutStatus(ctx, *p.PayoutID, payout.Status, utr)
	if err != nil {
		return nil, err
	}
	if changed {
		payoutTransitions.WithLabelValues(payout.Status).Inc()
	}
	return s.store.GetByID(ctx, paymentID)
}

func (s *service) GetJobPayment(ctx context.Context, callerID, jobID uuid.UUID) (*models.Payment, error) {
	p, err := s.store.GetByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPaymentNotFound
	}
	if p.FarmerID != callerID && p.LabourID != callerID {
		return nil, ErrForbidden
	}
	return p, nil
}

func (s *service) ListByFarmer(ctx context.Context, farmerID uuid.UUID) ([]*models.Payment, error) {
	return s.store.ListByFarmer(ctx, farmerID)
}

func (s *service) ListByLabour(ctx context.Context, labourID uuid.UUID) ([]*models.Payment, error) {
	return s.store.ListByLabour(ctx, labourID)
}

// ---------------------------------------------------------------------------
// Webhook
// ---------------------------------------------------------------------------

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payout *struct {
			Entity struct {
				ID     string `json:"id"`
				Status string `json:"status"`
				UTR    string `json:"utr"`
			} `json:"entity"`
		} `json:"payout"`
		Payment *struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// ProcessWebhook applies a provider event to local state. Events for unknown
// rows and replayed events are absorbed silently; the conditional updates
// make replays no-ops.
func (s *service) ProcessWebhook(ctx context.Context, body []byte) error {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		webhookEvents.WithLabelValues("unknown", "malformed").Inc()
		return fmt.Errorf("decode webhook: %w", err)
	}

	switch {
	case strings.HasPrefix(env.Event, "payout.") && env.Payload.Payout != nil:
		entity := env.Payload.Payout.Entity
		var utr *string
		if entity.UTR != "" {
			utr = &entity.UTR
		}
		changed, err := s.store.UpdatePayoutStatus(ctx, entity.ID, entity.Status, utr)
		if err != nil {
			webhookEvents.WithLabelValues(env.Event, "error").Inc()
			return err
		}
		if changed {
			payoutTransitions.WithLabelValues(entity.Status).Inc()
			s.notifyPayoutSettled(ctx, entity.ID, entity.Status)
		}
		webhookEvents.WithLabelValues(env.Event, "ok").Inc()

	case env.Event == "payment.captured" && env.Payload.Payment != nil:
		entity := env.Payload.Payment.Entity
		p, err := s.store.GetByProviderOrderID(ctx, entity.OrderID)
		if err != nil || p == nil {
			webhookEvents.WithLabelValues(env.Event, "unmatched").Inc()
			return err
		}
		ok, err := s.store.MarkPaid(ctx, entity.OrderID, entity.ID, "")
		if err != nil {
			return err
		}
		if ok {
			if err := s.store.SetJobPaid(ctx, p.JobID, entity.ID); err != nil {
				return err
			}
		}
		webhookEvents.WithLabelValues(env.Event, "ok").Inc()

	case env.Event == "payment.failed" && env.Payload.Payment != nil:
		entity := env.Payload.Payment.Entity
		p, err := s.store.GetByProviderOrderID(ctx, entity.OrderID)
		if err != nil || p == nil {
			webhookEvents.WithLabelValues(env.Event, "unmatched").Inc()
			return err
		}
		if _, err := s.store.MarkFailed(ctx, entity.OrderID); err != nil {
			return err
		}
		if err := s.store.SetJobPaymentFailed(ctx, p.JobID); err != nil {
			return err
		}
		webhookEvents.WithLabelValues(env.Event, "ok").Inc()

	default:
		webhookEvents.WithLabelValues(env.Event, "ignored").Inc()
	}
	return nil
}

func (s *service) notifyPayoutSettled(ctx context.Context, payoutID, status string) {
	if status != models.PayoutStatusProcessed {
		return
	}
	p, err := s.store.GetByPayoutID(ctx, payoutID)
	if err != nil || p == nil {
		return
	}
	s.notifier.Notify(ctx, &models.Notification{
		RecipientID: p.LabourID,
		SenderID:    &p.FarmerID,
		Type:        models.NotifyMoneyTransferred,
		Title:       "Payout completed",
		Message:     fmt.Sprintf("Rs %d has reached your bank account", p.Amount),
		JobID:       &p.JobID,
		PaymentID:   &p.ID,
	})
}
