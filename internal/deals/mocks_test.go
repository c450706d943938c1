package deals

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dealmates/backend/internal/models"
	"github.com/dealmates/backend/pkg/cache"
)

// Common test errors
var (
	ErrMockStore      = errors.New("mock store error")
	ErrMockSettlement = errors.New("mock settlement error")
	ErrMockNotifier   = errors.New("mock notifier error")
)

// MockStore implements Store in memory.
type MockStore struct {
	mu    sync.Mutex
	Deals map[uuid.UUID]*models.Deal
	Fired map[string]bool

	StatusUpdates []string
	Deleted       []uuid.UUID

	GetErr    error
	UpdateErr error
}

func NewMockStore() *MockStore {
	return &MockStore{
		Deals: make(map[uuid.UUID]*models.Deal),
		Fired: make(map[string]bool),
	}
}

func (m *MockStore) Put(d *models.Deal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.Deals[d.ID] = &cp
}

func (m *MockStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	d, ok := m.Deals[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *MockStore) List(ctx context.Context) ([]models.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Deal
	for _, d := range m.Deals {
		out = append(out, *d)
	}
	return out, nil
}

func (m *MockStore) ListByCategory(ctx context.Context, category string) ([]models.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Deal
	for _, d := range m.Deals {
		if d.Category == category {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *MockStore) ListJoinedBy(ctx context.Context, userID uuid.UUID) ([]models.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Deal
	for _, d := range m.Deals {
		for _, id := range d.JoinedUserIDs {
			if id == userID {
				out = append(out, *d)
				break
			}
		}
	}
	return out, nil
}

func (m *MockStore) ListWishlistedBy(ctx context.Context, userID uuid.UUID) ([]models.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Deal
	for _, d := range m.Deals {
		for _, id := range d.WishlistUserIDs {
			if id == userID {
				out = append(out, *d)
				break
			}
		}
	}
	return out, nil
}

func (m *MockStore) Create(ctx context.Context, d *models.Deal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	cp := *d
	m.Deals[d.ID] = &cp
	return nil
}

func (m *MockStore) UpdateInfo(ctx context.Context, d *models.Deal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.Deals[d.ID]
	if !ok {
		return errors.New("not found")
	}
	existing.Name = d.Name
	existing.Content = d.Content
	existing.Category = d.Category
	existing.Supplier = d.Supplier
	return nil
}

func (m *MockStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return false, m.UpdateErr
	}
	d, ok := m.Deals[id]
	if !ok {
		return false, errors.New("not found")
	}
	if d.Status != models.DealStatusActive {
		return false, nil
	}
	d.Status = status
	m.StatusUpdates = append(m.StatusUpdates, fmt.Sprintf("%s=%s", id, status))
	return true, nil
}

func (m *MockStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Deals, id)
	m.Deleted = append(m.Deleted, id)
	return nil
}

func (m *MockStore) IsParticipant(ctx context.Context, dealID, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.Deals[dealID]
	if !ok {
		return false, nil
	}
	for _, id := range d.JoinedUserIDs {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockStore) AddParticipant(ctx context.Context, dealID, userID uuid.UUID) (bool, error) {
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
	return true, nil
}

func (m *MockStore) AddWishlist(ctx context.Context, dealID, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.Deals[dealID]
	if !ok {
		return errors.New("not found")
	}
	for _, id := range d.WishlistUserIDs {
		if id == userID {
			return nil
		}
	}
	d.WishlistUserIDs = append(d.WishlistUserIDs, userID)
	return nil
}

func (m *MockStore) RemoveWishlist(ctx context.Context, dealID, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.Deals[dealID]
	if !ok {
		return errors.New("not found")
	}
	out := d.WishlistUserIDs[:0]
	for _, id := range d.WishlistUserIDs {
		if id != userID {
			out = append(out, id)
		}
	}
	d.WishlistUserIDs = out
	return nil
}

func (m *MockStore) MarkThresholdFired(ctx context.Context, dealID uuid.UUID, threshold int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s|%d", dealID, threshold)
	if m.Fired[key] {
		return false, nil
	}
	m.Fired[key] = true
	return true, nil
}

// MockSettlement implements Settlement, recording calls.
type MockSettlement struct {
	mu sync.Mutex

	CreateErr    error
	FinalizeErr  error
	HasPaymentsV bool

	Created   []uuid.UUID
	Finalized []string
}

func (m *MockSettlement) CreatePendingPayment(ctx context.Context, userID, dealID uuid.UUID) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	m.Created = append(m.Created, userID)
	return &models.Payment{ID: uuid.New(), UserID: userID, DealID: dealID, Status: models.PaymentStatusPending}, nil
}

func (m *MockSettlement) Finalize(ctx context.Context, dealID uuid.UUID, outcome string) (*models.SettlementReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FinalizeErr != nil {
		return nil, m.FinalizeErr
	}
	m.Finalized = append(m.Finalized, fmt.Sprintf("%s=%s", dealID, outcome))
	return &models.SettlementReport{DealID: dealID, Outcome: outcome}, nil
}

func (m *MockSettlement) HasPayments(ctx context.Context, dealID uuid.UUID) (bool, error) {
	return m.HasPaymentsV, nil
}

// MockNotifier implements Notifier, recording every call.
type MockNotifier struct {
	mu sync.Mutex

	CreateErr    error
	BroadcastErr error

	Creates    []string
	Broadcasts []string
	Recipients [][]uuid.UUID
}

func (m *MockNotifier) Create(ctx context.Context, userID uuid.UUID, title, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.Creates = append(m.Creates, title)
	return nil
}

func (m *MockNotifier) Broadcast(ctx context.Context, userIDs []uuid.UUID, title, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BroadcastErr != nil {
		return m.BroadcastErr
	}
	m.Broadcasts = append(m.Broadcasts, title)
	m.Recipients = append(m.Recipients, userIDs)
	return nil
}

// MockUsers implements UserDirectory.
type MockUsers struct {
	IDs []uuid.UUID
	Err error
}

func (m *MockUsers) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.IDs, nil
}

// MockCache is a pass-through cache: a miss unless StaleDeal is set, in
// which case the single-deal key serves that copy regardless of the store.
type MockCache struct {
	mu          sync.Mutex
	StaleDeal   *models.Deal
	Invalidated []string
	Sets        []string
}

func (m *MockCache) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StaleDeal != nil && key == cache.DealKey(m.StaleDeal.ID.String()) {
		if out, ok := dest.(*models.Deal); ok {
			*out = *m.StaleDeal
			return true
		}
	}
	return false
}

func (m *MockCache) SetJSON(ctx context.Context, key string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sets = append(m.Sets, key)
}

func (m *MockCache) InvalidateDeal(ctx context.Context, dealID, category string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Invalidated = append(m.Invalidated, dealID)
}
