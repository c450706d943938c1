package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dealmates/backend/internal/models"
	"github.com/dealmates/backend/pkg/queue"
)

var errMockStore = errors.New("mock store error")

// MockStore implements Store in memory.
type MockStore struct {
	mu            sync.Mutex
	Notifications map[uuid.UUID]*models.Notification
	CreateErr     error
}

func NewMockStore() *MockStore {
	return &MockStore{Notifications: make(map[uuid.UUID]*models.Notification)}
}

func (m *MockStore) Create(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	n.ID = uuid.New()
	n.CreatedAt = time.Now()
	cp := *n
	m.Notifications[n.ID] = &cp
	return nil
}

func (m *MockStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for _, n := range m.Notifications {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (m *MockStore) List(ctx context.Context) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for _, n := range m.Notifications {
		out = append(out, *n)
	}
	return out, nil
}

func (m *MockStore) MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.Notifications[id]
	if !ok || n.UserID != userID {
		return false, nil
	}
	n.IsRead = true
	return true, nil
}

// MockEnqueuer implements Enqueuer, recording payloads.
type MockEnqueuer struct {
	mu       sync.Mutex
	Err      error
	Payloads []queue.NotificationFanoutPayload
}

func (m *MockEnqueuer) EnqueueNotificationFanout(ctx context.Context, payload queue.NotificationFanoutPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Payloads = append(m.Payloads, payload)
	return nil
}

// MockCache records invalidations; reads always miss.
type MockCache struct {
	mu          sync.Mutex
	Invalidated []string
}

func (m *MockCache) GetJSON(ctx context.Context, key string, dest interface{}) bool { return false }
func (m *MockCache) SetJSON(ctx context.Context, key string, value interface{})     {}

func (m *MockCache) InvalidateUserNotifications(ctx context.Context, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Invalidated = append(m.Invalidated, userID)
}

func newTestService() (*Service, *MockStore, *MockEnqueuer, *MockCache) {
	store := NewMockStore()
	q := &MockEnqueuer{}
	mc := &MockCache{}
	return NewService(store, q, mc, nil), store, q, mc
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Given a notification When created Then the recipient's cache is invalidated", func(t *testing.T) {
		svc, store, _, mc := newTestService()
		userID := uuid.New()

		if err := svc.Create(ctx, userID, "title", "message"); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if len(store.Notifications) != 1 {
			t.Errorf("stored = %d, want 1", len(store.Notifications))
		}
		if len(mc.Invalidated) != 1 || mc.Invalidated[0] != userID.String() {
			t.Errorf("invalidations = %v, want the recipient", mc.Invalidated)
		}
	})

	t.Run("Given the store fails Then the error propagates", func(t *testing.T) {
		svc, store, _, _ := newTestService()
		store.CreateErr = errMockStore
		if err := svc.Create(ctx, uuid.New(), "t", "m"); !errors.Is(err, errMockStore) {
			t.Fatalf("err = %v, want store error", err)
		}
	})
}

func TestService_Broadcast(t *testing.T) {
	ctx := context.Background()

	t.Run("Given recipients When broadcasting Then one job is enqueued", func(t *testing.T) {
		svc, _, q, _ := newTestService()
		ids := []uuid.UUID{uuid.New(), uuid.New()}

		if err := svc.Broadcast(ctx, ids, "title", "message"); err != nil {
			t.Fatalf("Broadcast failed: %v", err)
		}
		if len(q.Payloads) != 1 {
			t.Fatalf("jobs = %d, want 1", len(q.Payloads))
		}
		if len(q.Payloads[0].UserIDs) != 2 || q.Payloads[0].Title != "title" {
			t.Errorf("payload = %+v", q.Payloads[0])
		}
	})

	t.Run("Given no recipients Then nothing is enqueued", func(t *testing.T) {
		svc, _, q, _ := newTestService()
		if err := svc.Broadcast(ctx, nil, "title", "message"); err != nil {
			t.Fatalf("Broadcast failed: %v", err)
		}
		if len(q.Payloads) != 0 {
			t.Errorf("jobs = %d, want 0", len(q.Payloads))
		}
	})
}

func TestService_MarkAsRead(t *testing.T) {
	ctx := context.Background()

	t.Run("Given the owner When marking read Then it succeeds and invalidates", func(t *testing.T) {
		svc, store, _, mc := newTestService()
		userID := uuid.New()
		n := &models.Notification{UserID: userID, Title: "t", Message: "m"}
		if err := store.Create(ctx, n); err != nil {
			t.Fatalf("seed failed: %v", err)
		}

		if err := svc.MarkAsRead(ctx, n.ID, userID); err != nil {
			t.Fatalf("MarkAsRead failed: %v", err)
		}
		if !store.Notifications[n.ID].IsRead {
			t.Errorf("notification not marked read")
		}
		if len(mc.Invalidated) != 1 {
			t.Errorf("invalidations = %v, want one", mc.Invalidated)
		}
	})

	t.Run("Given another user's notification Then ErrNotFound", func(t *testing.T) {
		svc, store, _, _ := newTestService()
		n := &models.Notification{UserID: uuid.New(), Title: "t", Message: "m"}
		if err := store.Create(ctx, n); err != nil {
			t.Fatalf("seed failed: %v", err)
		}

		if err := svc.MarkAsRead(ctx, n.ID, uuid.New()); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}
