package workrequests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/krishisangam/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Mock Store
// ---------------------------------------------------------------------------

// mockStore reproduces the partial-unique-index contract: at most one pending
// request per (farmer, labour) pair.
type mockStore struct {
	requests map[uuid.UUID]*models.WorkRequest
}

func newMockStore() *mockStore {
	return &mockStore{requests: make(map[uuid.UUID]*models.WorkRequest)}
}

func (m *mockStore) Create(_ context.Context, wr *models.WorkRequest) error {
	for _, existing := range m.requests {
		if existing.FarmerID == wr.FarmerID && existing.LabourID == wr.LabourID &&
			existing.Status == models.WorkRequestPending {
			return &pgconn.PgError{Code: "23505"}
		}
	}
	wr.ID = uuid.New()
	wr.CreatedAt = time.Now()
	m.requests[wr.ID] = wr
	return nil
}

func (m *mockStore) GetByID(_ context.Context, id uuid.UUID) (*models.WorkRequest, error) {
	return m.requests[id], nil
}

func (m *mockStore) ListByFarmer(_ context.Context, farmerID uuid.UUID) ([]*models.WorkRequest, error) {
	var out []*models.WorkRequest
	for _, wr := range m.requests {
		if wr.FarmerID == farmerID {
			out = append(out, wr)
		}
	}
	return out, nil
}

func (m *mockStore) ListByLabour(_ context.Context, labourID uuid.UUID) ([]*models.WorkRequest, error) {
	var out []*models.WorkRequest
	for _, wr := range m.requests {
		if wr.LabourID == labourID {
			out = append(out, wr)
		}
	}
	return out, nil
}

func (m *mockStore) SetStatus(_ context.Context, id uuid.UUID, status string) (bool, error) {
	wr, ok := m.requests[id]
	if !ok || wr.Status != models.WorkRequestPending {
		return false, nil
	}
	wr.Status = status
	now := time.Now()
	wr.RespondedAt = &now
	return true, nil
}

func (m *mockStore) Cancel(_ context.Context, id uuid.UUID) (bool, error) {
	wr, ok := m.requests[id]
	if !ok || wr.Status != models.WorkRequestPending {
		return false, nil
	}
	wr.Status = models.WorkRequestCancelled
	return true, nil
}

type mockUsers struct {
	users map[uuid.UUID]*models.User
}

func (m *mockUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return m.users[id], nil
}

type mockNotifier struct {
	sent []*models.Notification
}

func (m *mockNotifier) Notify(_ context.Context, n *models.Notification) {
	m.sent = append(m.sent, n)
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func newTestService() (Service, *mockStore, *mockUsers, *mockNotifier) {
	store := newMockStore()
	users := &mockUsers{users: make(map[uuid.UUID]*models.User)}
	notifier := &mockNotifier{}
	return NewService(store, users, notifier), store, users, notifier
}

func addLabour(users *mockUsers) *models.User {
	u := &models.User{ID: uuid.New(), Role: models.RoleLabour, FirstName: "Selvi"}
	users.users[u.ID] = u
	return u
}

func testFarmer() *models.User {
	return &models.User{ID: uuid.New(), Role: models.RoleFarmer, FirstName: "Raman",
		Location: models.Location{Village: "Koottu", District: "Thanjavur", State: "Tamil Nadu"}}
}

func testTerms() models.WorkRequestTerms {
	return models.WorkRequestTerms{JobType: "harvesting", Wage: 500, DurationUnits: 2, StartDate: time.Now()}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestSendAndRespond(t *testing.T) {
	svc, store, users, notifier := newTestService()
	farmer := testFarmer()
	labour := addLabour(users)

	wr, err := svc.Send(context.Background(), farmer, labour.ID, testTerms())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if wr.Status != models.WorkRequestPending {
		t.Fatalf("status = %q, want pending", wr.Status)
	}
	// Empty location falls back to the farmer's.
	if wr.Terms.Location != farmer.Location {
		t.Fatalf("location = %+v", wr.Terms.Location)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].RecipientID != labour.ID {
		t.Fatalf("notification not sent to labourer: %+v", notifier.sent)
	}

	got, err := svc.Respond(context.Background(), labour.ID, wr.ID, models.WorkRequestAccepted)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got.Status != models.WorkRequestAccepted {
		t.Fatalf("status = %q, want accepted", got.Status)
	}
	if store.requests[wr.ID].RespondedAt == nil {
		t.Fatal("responded_at not stamped on answer")
	}
	// Farmer gets the answer.
	if len(notifier.sent) != 2 || notifier.sent[1].RecipientID != farmer.ID {
		t.Fatalf("farmer not notified: %+v", notifier.sent)
	}
}

func TestSendDuplicatePending(t *testing.T) {
	svc, _, users, _ := newTestService()
	farmer := testFarmer()
	labour := addLabour(users)

	if _, err := svc.Send(context.Background(), farmer, labour.ID, testTerms()); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if _, err := svc.Send(context.Background(), farmer, labour.ID, testTerms()); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}
}

func TestSendAfterRejection(t *testing.T) {
	svc, _, users, _ := newTestService()
	farmer := testFarmer()
	labour := addLabour(users)

	wr, err := svc.Send(context.Background(), farmer, labour.ID, testTerms())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := svc.Respond(context.Background(), labour.ID, wr.ID, models.WorkRequestRejected); err != nil {
		t.Fatalf("respond: %v", err)
	}
	// Once the previous request is terminal a new one is allowed.
	if _, err := svc.Send(context.Background(), farmer, labour.ID, testTerms()); err != nil {
		t.Fatalf("send after rejection: %v", err)
	}
}

func TestSendToNonLabour(t *testing.T) {
	svc, _, users, _ := newTestService()
	farmer := testFarmer()

	other := &models.User{ID: uuid.New(), Role: models.RoleFarmer}
	users.users[other.ID] = other

	if _, err := svc.Send(context.Background(), farmer, other.ID, testTerms()); !errors.Is(err, ErrLabourNotFound) {
		t.Fatalf("expected ErrLabourNotFound for farmer target, got %v", err)
	}
	if _, err := svc.Send(context.Background(), farmer, uuid.New(), testTerms()); !errors.Is(err, ErrLabourNotFound) {
		t.Fatalf("expected ErrLabourNotFound for unknown id, got %v", err)
	}
}

func TestRespondValidation(t *testing.T) {
	svc, _, users, _ := newTestService()
	farmer := testFarmer()
	labour := addLabour(users)
	wr, err := svc.Send(context.Background(), farmer, labour.ID, testTerms())
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, err := svc.Respond(context.Background(), labour.ID, wr.ID, "maybe"); !errors.Is(err, ErrBadResponse) {
		t.Fatalf("expected ErrBadResponse, got %v", err)
	}
	// Only the addressed labourer may answer.
	if _, err := svc.Respond(context.Background(), uuid.New(), wr.ID, models.WorkRequestAccepted); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	if _, err := svc.Respond(context.Background(), labour.ID, wr.ID, models.WorkRequestAccepted); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if _, err := svc.Respond(context.Background(), labour.ID, wr.ID, models.WorkRequestRejected); !errors.Is(err, ErrAlreadyAnswered) {
		t.Fatalf("expected ErrAlreadyAnswered, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	svc, store, users, _ := newTestService()
	farmer := testFarmer()
	labour := addLabour(users)
	wr, err := svc.Send(context.Background(), farmer, labour.ID, testTerms())
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := svc.Cancel(context.Background(), uuid.New(), wr.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for stranger, got %v", err)
	}
	if err := svc.Cancel(context.Background(), farmer.ID, wr.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if store.requests[wr.ID].Status != models.WorkRequestCancelled {
		t.Fatalf("status = %q, want cancelled", store.requests[wr.ID].Status)
	}
	// A withdrawal is not an answer; responded_at stays empty.
	if store.requests[wr.ID].RespondedAt != nil {
		t.Fatalf("cancel stamped responded_at: %v", *store.requests[wr.ID].RespondedAt)
	}
	// A cancelled request cannot be answered.
	if _, err := svc.Respond(context.Background(), labour.ID, wr.ID, models.WorkRequestAccepted); !errors.Is(err, ErrAlreadyAnswered) {
		t.Fatalf("expected ErrAlreadyAnswered, got %v", err)
	}
}
