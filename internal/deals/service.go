package deals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dealmates/backend/internal/models"
	"github.com/dealmates/backend/pkg/cache"
)

var (
	// ErrNotFound means the deal does not exist.
	ErrNotFound = errors.New("deal not found")
	// ErrAlreadyJoined means the user is already a participant.
	ErrAlreadyJoined = errors.New("already joined this deal")
	// ErrNotActive means the deal is not accepting joins.
	ErrNotActive = errors.New("deal is not active")
	// ErrGroupFull means the participant target is already reached.
	ErrGroupFull = errors.New("group is full")
	// ErrHasPayments blocks deletion while payments reference the deal.
	ErrHasPayments = errors.New("deal has payments and cannot be deleted")
)

// Store is the persistence surface the lifecycle controller drives.
// Implemented by *Repository.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error)
	List(ctx context.Context) ([]models.Deal, error)
	ListByCategory(ctx context.Context, category string) ([]models.Deal, error)
	ListJoinedBy(ctx context.Context, userID uuid.UUID) ([]models.Deal, error)
	ListWishlistedBy(ctx context.Context, userID uuid.UUID) ([]models.Deal, error)
	Create(ctx context.Context, d *models.Deal) error
	UpdateInfo(ctx context.Context, d *models.Deal) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
	IsParticipant(ctx context.Context, dealID, userID uuid.UUID) (bool, error)
	AddParticipant(ctx context.Context, dealID, userID uuid.UUID) (bool, error)
	AddWishlist(ctx context.Context, dealID, userID uuid.UUID) error
	RemoveWishlist(ctx context.Context, dealID, userID uuid.UUID) error
	MarkThresholdFired(ctx context.Context, dealID uuid.UUID, threshold int) (bool, error)
}

// Settlement is the payment side of a terminal transition. Implemented by
// the payments service.
type Settlement interface {
	CreatePendingPayment(ctx context.Context, userID, dealID uuid.UUID) (*models.Payment, error)
	Finalize(ctx context.Context, dealID uuid.UUID, outcome string) (*models.SettlementReport, error)
	HasPayments(ctx context.Context, dealID uuid.UUID) (bool, error)
}

// Notifier creates notifications. Failures are always non-fatal here.
type Notifier interface {
	Create(ctx context.Context, userID uuid.UUID, title, message string) error
	Broadcast(ctx context.Context, userIDs []uuid.UUID, title, message string) error
}

// UserDirectory lists user IDs for platform-wide broadcasts.
type UserDirectory interface {
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Cache is the subset of pkg/cache the service uses.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) bool
	SetJSON(ctx context.Context, key string, value interface{})
	InvalidateDeal(ctx context.Context, dealID, category string)
}

// Service is the single authority for a deal's derived status, threshold
// notifications, and terminal transitions.
type Service struct {
	repo       Store
	settlement Settlement
	notifier   Notifier
	users      UserDirectory
	cache      Cache
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates the deal lifecycle service.
func NewService(repo Store, settlement Settlement, notifier Notifier, users UserDirectory, c Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:       repo,
		settlement: settlement,
		notifier:   notifier,
		users:      users,
		cache:      c,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Service) view(d *models.Deal) *models.DealView {
	return &models.DealView{Deal: *d, Derived: ComputeDerivedState(d, s.now())}
}

// Get returns a deal with derived progress. Uses the read cache; an ACTIVE
// deal found past its deadline is transitioned to FAILED here, since there is
// no background scheduler.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.DealView, error) {
	var d models.Deal
	if !s.cache.GetJSON(ctx, cache.DealKey(id.String()), &d) {
		fresh, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get deal: %w", err)
		}
		if fresh == nil {
			return nil, ErrNotFound
		}
		d = *fresh
		s.cache.SetJSON(ctx, cache.DealKey(id.String()), d)
	}

	derived := ComputeDerivedState(&d, s.now())
	if derived.Status != d.Status && !models.IsTerminalStatus(d.Status) {
		if _, err := s.transition(ctx, &d, derived.Status); err != nil {
			s.logger.Error("lazy status transition failed", zap.Error(err), zap.String("deal_id", d.ID.String()))
		}
	}
	return s.view(&d), nil
}

// List returns all deals with derived progress, via the aggregate cache.
func (s *Service) List(ctx context.Context) ([]models.DealView, error) {
	var list []models.Deal
	if !s.cache.GetJSON(ctx, cache.DealsAllKey, &list) {
		var err error
		list, err = s.repo.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list deals: %w", err)
		}
		s.cache.SetJSON(ctx, cache.DealsAllKey, list)
	}
	return s.views(list), nil
}

// ListByCategory returns a category's deals with derived progress.
func (s *Service) ListByCategory(ctx context.Context, category string) ([]models.DealView, error) {
	var list []models.Deal
	if !s.cache.GetJSON(ctx, cache.DealsCategoryKey(category), &list) {
		var err error
		list, err = s.repo.ListByCategory(ctx, category)
		if err != nil {
			return nil, fmt.Errorf("list deals by category: %w", err)
		}
		s.cache.SetJSON(ctx, cache.DealsCategoryKey(category), list)
	}
	return s.views(list), nil
}

// ListActive returns deals whose derived status is still ACTIVE.
func (s *Service) ListActive(ctx context.Context) ([]models.DealView, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]models.DealView, 0, len(all))
	for _, v := range all {
		if v.Derived.Status == models.DealStatusActive {
			active = append(active, v)
		}
	}
	return active, nil
}

// ListJoinedBy returns the deals the user participates in, with derived
// progress. Not cached: membership changes have no per-user invalidation
// choke point, so these reads go straight to the store.
func (s *Service) ListJoinedBy(ctx context.Context, userID uuid.UUID) ([]models.DealView, error) {
	list, err := s.repo.ListJoinedBy(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list joined deals: %w", err)
	}
	return s.views(list), nil
}

// ListWishlistedBy returns the deals on the user's wishlist, with derived
// progress.
func (s *Service) ListWishlistedBy(ctx context.Context, userID uuid.UUID) ([]models.DealView, error) {
	list, err := s.repo.ListWishlistedBy(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list wishlisted deals: %w", err)
	}
	return s.views(list), nil
}

func (s *Service) views(list []models.Deal) []models.DealView {
	out := make([]models.DealView, 0, len(list))
	for i := range list {
		out = append(out, *s.view(&list[i]))
	}
	return out
}

// Create inserts a deal and broadcasts a "new deal" notification to every
// user. The broadcast is queued and non-fatal.
func (s *Service) Create(ctx context.Context, d *models.Deal) (*models.DealView, error) {
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create deal: %w", err)
	}
	s.cache.InvalidateDeal(ctx, d.ID.String(), d.Category)

	if ids, err := s.users.ListIDs(ctx); err != nil {
		s.logger.Warn("list users for new deal broadcast failed", zap.Error(err))
	} else if err := s.notifier.Broadcast(ctx, ids, "New deal available!",
		fmt.Sprintf("The deal %q was just added.", d.Name)); err != nil {
		s.logger.Warn("new deal broadcast failed", zap.Error(err), zap.String("deal_id", d.ID.String()))
	}
	return s.view(d), nil
}

// Update changes a deal's descriptive fields.
func (s *Service) Update(ctx context.Context, d *models.Deal) (*models.DealView, error) {
	existing, err := s.repo.GetByID(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("get deal: %w", err)
	}
	if existing == nil {
		return nil, ErrNotFound
	}
	if err := s.repo.UpdateInfo(ctx, d); err != nil {
		return nil, fmt.Errorf("update deal: %w", err)
	}
	s.cache.InvalidateDeal(ctx, d.ID.String(), d.Category)
	if existing.Category != d.Category {
		s.cache.InvalidateDeal(ctx, d.ID.String(), existing.Category)
	}
	updated, err := s.repo.GetByID(ctx, d.ID)
	if err != nil || updated == nil {
		return nil, fmt.Errorf("reload deal: %w", err)
	}
	return s.view(updated), nil
}

// Delete removes a deal, refused while payments reference it.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get deal: %w", err)
	}
	if d == nil {
		return ErrNotFound
	}
	has, err := s.settlement.HasPayments(ctx, id)
	if err != nil {
		return fmt.Errorf("check payments: %w", err)
	}
	if has {
		return ErrHasPayments
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete deal: %w", err)
	}
	s.cache.InvalidateDeal(ctx, id.String(), d.Category)
	return nil
}

// Join adds a user to a deal. The payment authorization happens first; if
// the provider declines, no membership is created. Crossing a progress
// milestone broadcasts to every current participant exactly once, and
// reaching the target completes the deal and settles all payments before
// this returns.
func (s *Service) Join(ctx context.Context, dealID, userID uuid.UUID) (*models.DealView, error) {
	d, err := s.repo.GetByID(ctx, dealID)
	if err != nil {
		return nil, fmt.Errorf("get deal: %w", err)
	}
	if d == nil {
		return nil, ErrNotFound
	}

	joined, err := s.repo.IsParticipant(ctx, dealID, userID)
	if err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if joined {
		return nil, ErrAlreadyJoined
	}

	if d.Status != models.DealStatusActive {
		return nil, ErrNotActive
	}
	derived := ComputeDerivedState(d, s.now())
	if derived.Status == models.DealStatusFailed {
		// Deadline passed while the deal sat ACTIVE; settle before rejecting.
		if _, err := s.transition(ctx, d, models.DealStatusFailed); err != nil {
			s.logger.Error("expiry transition failed", zap.Error(err), zap.String("deal_id", dealID.String()))
		}
		return nil, ErrNotActive
	}
	if d.Participants() >= d.TargetParticipantCount {
		return nil, ErrGroupFull
	}

	if _, err := s.settlement.CreatePendingPayment(ctx, userID, dealID); err != nil {
		return nil, err
	}

	added, err := s.repo.AddParticipant(ctx, dealID, userID)
	if err != nil {
		return nil, fmt.Errorf("add participant: %w", err)
	}
	if !added {
		s.logger.Warn("participant already present after payment", zap.String("deal_id", dealID.String()), zap.String("user_id", userID.String()))
	}
	s.cache.InvalidateDeal(ctx, dealID.String(), d.Category)

	d, err = s.repo.GetByID(ctx, dealID)
	if err != nil || d == nil {
		return nil, fmt.Errorf("reload deal: %w", err)
	}

	derived = ComputeDerivedState(d, s.now())
	s.fireThresholds(ctx, d, derived.ProgressPercent)

	if derived.Participants >= d.TargetParticipantCount {
		if _, err := s.transition(ctx, d, models.DealStatusCompleted); err != nil {
			s.logger.Error("completion transition failed", zap.Error(err), zap.String("deal_id", dealID.String()))
		}
	}
	return s.view(d), nil
}

// fireThresholds broadcasts each newly crossed milestone to all current
// participants. The store's add-if-absent decides who fires; notification
// failures never fail the join.
func (s *Service) fireThresholds(ctx context.Context, d *models.Deal, progress int) {
	for _, m := range ProgressMilestones {
		if progress < m {
			continue
		}
		won, err := s.repo.MarkThresholdFired(ctx, d.ID, m)
		if err != nil {
			s.logger.Error("mark threshold failed", zap.Error(err), zap.String("deal_id", d.ID.String()), zap.Int("threshold", m))
			continue
		}
		if !won {
			continue
		}
		title := fmt.Sprintf("Deal reached %d%% of its target!", m)
		message := fmt.Sprintf("The deal %q reached %d%% of its target. Your join has been counted.", d.Name, m)
		if err := s.notifier.Broadcast(ctx, d.JoinedUserIDs, title, message); err != nil {
			s.logger.Warn("threshold broadcast failed", zap.Error(err), zap.String("deal_id", d.ID.String()), zap.Int("threshold", m))
		}
	}
}

// UpdateStatus transitions a deal (admin- or derived-triggered). Entering a
// terminal status settles all pending payments before returning; terminal
// states are sticky, so a repeat or conflicting transition is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, dealID uuid.UUID, status string) (*models.DealView, *models.SettlementReport, error) {
	d, err := s.repo.GetByID(ctx, dealID)
	if err != nil {
		return nil, nil, fmt.Errorf("get deal: %w", err)
	}
	if d == nil {
		return nil, nil, ErrNotFound
	}
	report, err := s.transition(ctx, d, status)
	if err != nil {
		return nil, report, err
	}
	return s.view(d), report, nil
}

// transition persists a status change and, when the new status is terminal,
// invokes settlement before returning. Sticky: once a deal is terminal every
// further transition is ignored, which makes the direct path and the webhook
// path order-independent. The in-memory check is only an early exit; the
// store's guarded update is what holds when this copy is stale.
func (s *Service) transition(ctx context.Context, d *models.Deal, status string) (*models.SettlementReport, error) {
	if models.IsTerminalStatus(d.Status) {
		if d.Status != status {
			s.logger.Warn("ignoring transition out of terminal status",
				zap.String("deal_id", d.ID.String()), zap.String("from", d.Status), zap.String("to", status))
		}
		return nil, nil
	}
	if status == d.Status {
		return nil, nil
	}
	won, err := s.repo.UpdateStatus(ctx, d.ID, status)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	s.cache.InvalidateDeal(ctx, d.ID.String(), d.Category)
	if !won {
		// The in-memory copy was stale and the row is already terminal.
		// Pick up the winning status; settlement belongs to the winner.
		fresh, err := s.repo.GetByID(ctx, d.ID)
		if err != nil {
			return nil, fmt.Errorf("reload deal: %w", err)
		}
		if fresh != nil {
			*d = *fresh
		}
		s.logger.Warn("status transition lost to a concurrent write",
			zap.String("deal_id", d.ID.String()), zap.String("to", status), zap.String("current", d.Status))
		return nil, nil
	}
	d.Status = status

	if !models.IsTerminalStatus(status) {
		return nil, nil
	}
	report, err := s.settlement.Finalize(ctx, d.ID, status)
	if err != nil {
		return report, fmt.Errorf("finalize payments: %w", err)
	}
	if report != nil && len(report.Failures) > 0 {
		s.logger.Error("settlement finished with failures",
			zap.String("deal_id", d.ID.String()), zap.Int("failed", len(report.Failures)))
	}
	return report, nil
}

// SyncStatus recomputes a deal's derived status and persists a terminal
// transition if one is due. The webhook reconciler calls this after marking
// a payment PAID so a deal that just crossed its target via that webhook is
// completed and swept.
func (s *Service) SyncStatus(ctx context.Context, dealID uuid.UUID) error {
	d, err := s.repo.GetByID(ctx, dealID)
	if err != nil {
		return fmt.Errorf("get deal: %w", err)
	}
	if d == nil {
		return ErrNotFound
	}
	derived := ComputeDerivedState(d, s.now())
	if derived.Status == d.Status {
		return nil
	}
	_, err = s.transition(ctx, d, derived.Status)
	return err
}

// AddToWishlist adds the user to the deal's wishlist (idempotent).
func (s *Service) AddToWishlist(ctx context.Context, dealID, userID uuid.UUID) (*models.DealView, error) {
	return s.wishlist(ctx, dealID, userID, s.repo.AddWishlist)
}

// RemoveFromWishlist removes the user from the deal's wishlist (idempotent).
func (s *Service) RemoveFromWishlist(ctx context.Context, dealID, userID uuid.UUID) (*models.DealView, error) {
	return s.wishlist(ctx, dealID, userID, s.repo.RemoveWishlist)
}

func (s *Service) wishlist(ctx context.Context, dealID, userID uuid.UUID, op func(context.Context, uuid.UUID, uuid.UUID) error) (*models.DealView, error) {
	d, err := s.repo.GetByID(ctx, dealID)
	if err != nil {
		return nil, fmt.Errorf("get deal: %w", err)
	}
	if d == nil {
		return nil, ErrNotFound
	}
	if err := op(ctx, dealID, userID); err != nil {
		return nil, fmt.Errorf("update wishlist: %w", err)
	}
	s.cache.InvalidateDeal(ctx, dealID.String(), d.Category)
	d, err = s.repo.GetByID(ctx, dealID)
	if err != nil || d == nil {
		return nil, fmt.Errorf("reload deal: %w", err)
	}
	return s.view(d), nil
}
