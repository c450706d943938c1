package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dealmates/backend/internal/models"
)

var (
	// ErrDuplicateJoin means the user already holds a payment for the deal.
	ErrDuplicateJoin = errors.New("payment already exists for this deal")
	// ErrPaymentNotFound means no payment matches the given identifier.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrDealNotFound means the referenced deal does not exist.
	ErrDealNotFound = errors.New("deal not found")
)

// verificationAmountCents is the amount authorized at join time. The hold
// only proves the payment method works; the real amount is captured at
// settlement.
const verificationAmountCents = 100

// Store is the persistence surface of the settlement engine. Implemented by
// *Repository.
type Store interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByUserAndDeal(ctx context.Context, userID, dealID uuid.UUID) (*models.Payment, error)
	GetByProviderOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	ListSettleable(ctx context.Context, dealID uuid.UUID) ([]models.Payment, error)
	List(ctx context.Context) ([]models.Payment, error)
	HasForDeal(ctx context.Context, dealID uuid.UUID) (bool, error)
	Approve(ctx context.Context, id uuid.UUID) (bool, error)
	Settle(ctx context.Context, id uuid.UUID, status string, amountCents int) (bool, error)
}

// Provider is the external payment API. Implemented by *PayPalClient.
type Provider interface {
	CreateOrder(ctx context.Context, amountCents int, currency string) (string, error)
	CaptureOrder(ctx context.Context, orderID string) error
}

// DealStore is the slice of the deal repository the engine needs: reading a
// deal for its price, and the idempotent membership insert used when a
// webhook lands for a join that never finished. Implemented by
// *deals.Repository.
type DealStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error)
	AddParticipant(ctx context.Context, dealID, userID uuid.UUID) (bool, error)
}

// Notifier creates settlement notifications. Failures never fail settlement.
type Notifier interface {
	Create(ctx context.Context, userID uuid.UUID, title, message string) error
}

// Cache invalidates deal cache entries after membership changes.
type Cache interface {
	InvalidateDeal(ctx context.Context, dealID, category string)
}

// Service is the settlement engine: it opens payment authorizations at join
// time and resolves every payment of a deal when the deal goes terminal.
type Service struct {
	repo     Store
	provider Provider
	deals    DealStore
	notifier Notifier
	cache    Cache
	currency string
	logger   *zap.Logger
}

// NewService creates the settlement engine.
func NewService(repo Store, provider Provider, deals DealStore, notifier Notifier, c Cache, currency string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		provider: provider,
		deals:    deals,
		notifier: notifier,
		cache:    c,
		currency: currency,
		logger:   logger,
	}
}

// CreatePendingPayment authorizes a verification hold with the provider and
// records a PENDING payment. Fail-closed: a provider error means no payment
// row, and the caller must not create the membership either. A second call
// for the same (user, deal) returns ErrDuplicateJoin.
func (s *Service) CreatePendingPayment(ctx context.Context, userID, dealID uuid.UUID) (*models.Payment, error) {
	existing, err := s.repo.GetByUserAndDeal(ctx, userID, dealID)
	if err != nil {
		return nil, fmt.Errorf("check existing payment: %w", err)
	}
	if existing != nil {
		return nil, ErrDuplicateJoin
	}

	orderID, err := s.provider.CreateOrder(ctx, verificationAmountCents, s.currency)
	if err != nil {
		s.logger.Error("provider authorization failed",
			zap.Error(err), zap.String("deal_id", dealID.String()), zap.String("user_id", userID.String()))
		return nil, err
	}

	p := &models.Payment{
		UserID:          userID,
		DealID:          dealID,
		ProviderOrderID: orderID,
		AmountCents:     verificationAmountCents,
		Currency:        s.currency,
		Status:          models.PaymentStatusPending,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		// The race loser leaves an unused provider order behind; the hold
		// expires on its own and is never captured.
		return nil, err
	}
	s.logger.Info("payment authorized",
		zap.String("payment_id", p.ID.String()), zap.String("deal_id", dealID.String()), zap.String("order_id", orderID))
	return p, nil
}

// Approve moves the payment for a provider order to APPROVED, meaning the
// buyer completed the provider's approval flow. Idempotent; a payment past
// PENDING is left alone.
func (s *Service) Approve(ctx context.Context, orderID string, userID uuid.UUID) (*models.Payment, error) {
	p, err := s.repo.GetByProviderOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if p == nil || p.UserID != userID {
		return nil, ErrPaymentNotFound
	}
	changed, err := s.repo.Approve(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("approve payment: %w", err)
	}
	if changed {
		p.Status = models.PaymentStatusApproved
		if err := s.notifier.Create(ctx, p.UserID, "You joined the deal!",
			"Your payment method was approved. You will only be charged if the group reaches its target."); err != nil {
			s.logger.Warn("approve notification failed", zap.Error(err), zap.String("payment_id", p.ID.String()))
		}
	}
	return p, nil
}

// Finalize resolves every still-settleable payment of a deal. COMPLETED
// captures each authorization and records the discounted price as the final
// amount; FAILED releases everyone at zero without touching the provider.
// Individual capture failures are collected, never aborting the rest, and
// re-entry only touches payments the previous run left unsettled.
func (s *Service) Finalize(ctx context.Context, dealID uuid.UUID, outcome string) (*models.SettlementReport, error) {
	if outcome != models.DealStatusCompleted && outcome != models.DealStatusFailed {
		return nil, fmt.Errorf("finalize: %q is not a terminal outcome", outcome)
	}

	pending, err := s.repo.ListSettleable(ctx, dealID)
	if err != nil {
		return nil, fmt.Errorf("list settleable payments: %w", err)
	}
	report := &models.SettlementReport{DealID: dealID, Outcome: outcome}
	if len(pending) == 0 {
		return report, nil
	}

	var chargeCents int
	if outcome == models.DealStatusCompleted {
		d, err := s.deals.GetByID(ctx, dealID)
		if err != nil {
			return nil, fmt.Errorf("get deal: %w", err)
		}
		if d == nil {
			return nil, ErrDealNotFound
		}
		chargeCents = d.DiscountedPriceCents
	}

	for i := range pending {
		p := &pending[i]
		if outcome == models.DealStatusCompleted {
			s.settleCharge(ctx, p, chargeCents, report)
		} else {
			s.settleRelease(ctx, p, report)
		}
	}
	s.logger.Info("settlement finished",
		zap.String("deal_id", dealID.String()), zap.String("outcome", outcome),
		zap.Int("settled", len(report.Settled)), zap.Int("failed", len(report.Failures)))
	return report, nil
}

func (s *Service) settleCharge(ctx context.Context, p *models.Payment, chargeCents int, report *models.SettlementReport) {
	if err := s.provider.CaptureOrder(ctx, p.ProviderOrderID); err != nil {
		s.logger.Error("capture failed",
			zap.Error(err), zap.String("payment_id", p.ID.String()), zap.String("order_id", p.ProviderOrderID))
		report.Failures = append(report.Failures, models.SettlementFailure{PaymentID: p.ID, Error: err.Error()})
		return
	}
	changed, err := s.repo.Settle(ctx, p.ID, models.PaymentStatusPaid, chargeCents)
	if err != nil {
		report.Failures = append(report.Failures, models.SettlementFailure{PaymentID: p.ID, Error: err.Error()})
		return
	}
	if !changed {
		// Settled concurrently, e.g. by the webhook path.
		return
	}
	p.Status = models.PaymentStatusPaid
	p.AmountCents = chargeCents
	report.Settled = append(report.Settled, *p)
	if err := s.notifier.Create(ctx, p.UserID, "Charged successfully!",
		"The group reached its target and your payment was completed."); err != nil {
		s.logger.Warn("charge notification failed", zap.Error(err), zap.String("payment_id", p.ID.String()))
	}
}

func (s *Service) settleRelease(ctx context.Context, p *models.Payment, report *models.SettlementReport) {
	changed, err := s.repo.Settle(ctx, p.ID, models.PaymentStatusFailed, 0)
	if err != nil {
		report.Failures = append(report.Failures, models.SettlementFailure{PaymentID: p.ID, Error: err.Error()})
		return
	}
	if !changed {
		return
	}
	p.Status = models.PaymentStatusFailed
	p.AmountCents = 0
	report.Settled = append(report.Settled, *p)
	if err := s.notifier.Create(ctx, p.UserID, "Group did not reach its target",
		"The deal closed below its target. Your payment hold was released and you were not charged."); err != nil {
		s.logger.Warn("release notification failed", zap.Error(err), zap.String("payment_id", p.ID.String()))
	}
}

// HandleCaptureCompleted reconciles a provider capture event. The payment is
// marked PAID at the deal's discounted price, and the membership is inserted
// in case the join flow died between authorization and membership. The payer
// gets the same two notifications as the direct path, since the approval
// step never ran locally. Returns the deal id so the caller can resync the
// deal's status. Duplicate events land on an already-PAID row and are no-ops.
func (s *Service) HandleCaptureCompleted(ctx context.Context, orderID string) (uuid.UUID, error) {
	p, err := s.repo.GetByProviderOrderID(ctx, orderID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("get payment: %w", err)
	}
	if p == nil {
		return uuid.Nil, ErrPaymentNotFound
	}

	d, err := s.deals.GetByID(ctx, p.DealID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("get deal: %w", err)
	}
	if d == nil {
		return uuid.Nil, ErrDealNotFound
	}

	changed, err := s.repo.Settle(ctx, p.ID, models.PaymentStatusPaid, d.DiscountedPriceCents)
	if err != nil {
		return uuid.Nil, fmt.Errorf("settle payment: %w", err)
	}
	added, err := s.deals.AddParticipant(ctx, p.DealID, p.UserID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("reconcile membership: %w", err)
	}
	if changed || added {
		s.cache.InvalidateDeal(ctx, p.DealID.String(), d.Category)
	}
	if changed {
		s.logger.Info("payment reconciled from capture event",
			zap.String("payment_id", p.ID.String()), zap.String("order_id", orderID))
		if err := s.notifier.Create(ctx, p.UserID, "You joined the deal!",
			"Your payment method was approved. You will only be charged if the group reaches its target."); err != nil {
			s.logger.Warn("capture notification failed", zap.Error(err), zap.String("payment_id", p.ID.String()))
		}
		if err := s.notifier.Create(ctx, p.UserID, "Charged successfully!",
			"The group reached its target and your payment was completed."); err != nil {
			s.logger.Warn("capture notification failed", zap.Error(err), zap.String("payment_id", p.ID.String()))
		}
	}
	return p.DealID, nil
}

// HasPayments reports whether any payment references the deal.
func (s *Service) HasPayments(ctx context.Context, dealID uuid.UUID) (bool, error) {
	return s.repo.HasForDeal(ctx, dealID)
}

// List returns all payments (admin).
func (s *Service) List(ctx context.Context) ([]models.Payment, error) {
	return s.repo.List(ctx)
}
