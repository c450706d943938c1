package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/dealmates/backend/internal/models"
)

var (
	ErrMockStore    = errors.New("mock store error")
	ErrMockNotifier = errors.New("mock notifier error")
	errNotFound     = errors.New("not found")
)

// MockStore implements UserStore in memory.
type MockStore struct {
	mu    sync.Mutex
	Users map[uuid.UUID]*models.User

	Deleted []uuid.UUID
	Updated []uuid.UUID

	DeleteErr error
}

func NewMockStore() *MockStore {
	return &MockStore{Users: make(map[uuid.UUID]*models.User)}
}

func (m *MockStore) Put(u *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.Users[u.ID] = &cp
}

func (m *MockStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MockStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, errNotFound
}

func (m *MockStore) List(ctx context.Context) ([]models.UserPublic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.UserPublic
	for _, u := range m.Users {
		out = append(out, u.ToPublic())
	}
	return out, nil
}

func (m *MockStore) ListAdminIDs(ctx context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for _, u := range m.Users {
		if u.Role == models.RoleAdmin {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

func (m *MockStore) Create(ctx context.Context, email, passwordHash, fullName string, role models.Role, profile *CreateUserParams) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &models.User{
		ID:       uuid.New(),
		Email:    email,
		Password: passwordHash,
		FullName: fullName,
		Role:     role,
	}
	if profile != nil {
		u.Phone = profile.Phone
		u.Address = profile.Address
	}
	m.Users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *MockStore) UpdateProfile(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Users[u.ID]; !ok {
		return errNotFound
	}
	cp := *u
	m.Users[u.ID] = &cp
	m.Updated = append(m.Updated, u.ID)
	return nil
}

func (m *MockStore) UpdateAvatar(ctx context.Context, userID uuid.UUID, avatarURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[userID]
	if !ok {
		return errNotFound
	}
	u.AvatarURL = avatarURL
	return nil
}

func (m *MockStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	if _, ok := m.Users[id]; !ok {
		return errNotFound
	}
	delete(m.Users, id)
	m.Deleted = append(m.Deleted, id)
	return nil
}

// MockNotifier implements Notifier, recording broadcasts.
type MockNotifier struct {
	mu sync.Mutex

	BroadcastErr error

	Broadcasts []string
	Recipients [][]uuid.UUID
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

// MockDeals implements DealBrowser.
type MockDeals struct {
	Joined     []models.DealView
	Wishlisted []models.DealView
	Err        error
}

func (m *MockDeals) ListJoinedBy(ctx context.Context, userID uuid.UUID) ([]models.DealView, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Joined, nil
}

func (m *MockDeals) ListWishlistedBy(ctx context.Context, userID uuid.UUID) ([]models.DealView, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Wishlisted, nil
}
