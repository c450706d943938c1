package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dealmates/backend/internal/models"
)

// Common test errors
var (
	ErrMockProvider = errors.New("mock provider error")
	ErrMockStore    = errors.New("mock store error")
)

// MockStore implements Store in memory.
type MockStore struct {
	mu       sync.Mutex
	Payments map[uuid.UUID]*models.Payment

	CreateErr error
	SettleErr error
}

func NewMockStore() *MockStore {
	return &MockStore{Payments: make(map[uuid.UUID]*models.Payment)}
}

func (m *MockStore) Put(p *models.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.Payments[p.ID] = &cp
}

func (m *MockStore) Create(ctx context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	for _, existing := range m.Payments {
		if existing.UserID == p.UserID && existing.DealID == p.DealID {
			return ErrDuplicateJoin
		}
	}
	p.ID = uuid.New()
	cp := *p
	m.Payments[p.ID] = &cp
	return nil
}

func (m *MockStore) GetByUserAndDeal(ctx context.Context, userID, dealID uuid.UUID) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.Payments {
		if p.UserID == userID && p.DealID == dealID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MockStore) GetByProviderOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.Payments {
		if p.ProviderOrderID == orderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MockStore) ListSettleable(ctx context.Context, dealID uuid.UUID) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, p := range m.Payments {
		if p.DealID == dealID && (p.Status == models.PaymentStatusPending || p.Status == models.PaymentStatusApproved) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *MockStore) List(ctx context.Context) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, p := range m.Payments {
		out = append(out, *p)
	}
	return out, nil
}

func (m *MockStore) HasForDeal(ctx context.Context, dealID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.Payments {
		if p.DealID == dealID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockStore) Approve(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Payments[id]
	if !ok || p.Status != models.PaymentStatusPending {
		return false, nil
	}
	p.Status = models.PaymentStatusApproved
	return true, nil
}

func (m *MockStore) Settle(ctx context.Context, id uuid.UUID, status string, amountCents int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SettleErr != nil {
		return false, m.SettleErr
	}
	p, ok := m.Payments[id]
	if !ok {
		return false, nil
	}
	if p.Status != models.PaymentStatusPending && p.Status != models.PaymentStatusApproved {
		return false, nil
	}
	p.Status = status
	p.AmountCents = amountCents
	return true, nil
}

// MockProvider implements Provider.
type MockProvider struct {
	mu sync.Mutex

	CreateErr      error
	CaptureErr     error
	FailOrders     map[string]bool
	orderSeq       int
	Captured       []string
	CreatedAmounts []int
}

func (m *MockProvider) CreateOrder(ctx context.Context, amountCents int, currency string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	m.orderSeq++
	m.CreatedAmounts = append(m.CreatedAmounts, amountCents)
	return fmt.Sprintf("ORDER-%d", m.orderSeq), nil
}

func (m *MockProvider) CaptureOrder(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CaptureErr != nil {
		return m.CaptureErr
	}
	if m.FailOrders[orderID] {
		return ErrMockProvider
	}
	m.Captured = append(m.Captured, orderID)
	return nil
}

// MockDealStore implements DealStore.
type MockDealStore struct {
	mu    sync.Mutex
	Deals map[uuid.UUID]*models.Deal
	Added []uuid.UUID
}

func NewMockDealStore() *MockDealStore {
	return &MockDealStore{Deals: make(map[uuid.UUID]*models.Deal)}
}

func (m *MockDealStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.Deals[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *MockDealStore) AddParticipant(ctx context.Context, dealID, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.Deals[dealID]
	if !ok {
		return false, errors.New("not found")
	}
	for _, id := range d.JoinedUserIDs {
		if id == userID {
			return false, nil
		}
	}
	d.JoinedUserIDs = append(d.JoinedUserIDs, userID)
	m.Added = append(m.Added, userID)
	return true, nil
}

// MockNotifier implements Notifier, recording titles per user.
type MockNotifier struct {
	mu     sync.Mutex
	Err    error
	Titles []string
	Users  []uuid.UUID
}

func (m *MockNotifier) Create(ctx context.Context, userID uuid.UUID, title, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Titles = append(m.Titles, title)
	m.Users = append(m.Users, userID)
	return nil
}

// MockCache records deal invalidations.
type MockCache struct {
	mu          sync.Mutex
	Invalidated []string
}

func (m *MockCache) InvalidateDeal(ctx context.Context, dealID, category string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Invalidated = append(m.Invalidated, dealID)
}
