package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus for deal payments. Transitions are one-directional:
// PENDING -> APPROVED -> PAID, or PENDING/APPROVED -> FAILED.
const (
	PaymentStatusPending  = "PENDING"
	PaymentStatusApproved = "APPROVED"
	PaymentStatusPaid     = "PAID"
	PaymentStatusFailed   = "FAILED"
)

// Payment represents the provider authorization tied to a user's join of a
// deal. At most one payment exists per (user, deal) pair.
type Payment struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	DealID          uuid.UUID `json:"deal_id"`
	ProviderOrderID string    `json:"provider_order_id"`
	AmountCents     int       `json:"amount_cents"`
	Currency        string    `json:"currency"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SettlementFailure records a single payment that could not be settled
// during a finalize batch.
type SettlementFailure struct {
	PaymentID uuid.UUID `json:"payment_id"`
	Error     string    `json:"error"`
}

// SettlementReport is the outcome of finalizing a deal's payments. Settled
// holds every payment brought to a terminal state; Failures identifies the
// ones whose provider capture failed and are left for a retry.
type SettlementReport struct {
	DealID   uuid.UUID           `json:"deal_id"`
	Outcome  string              `json:"outcome"`
	Settled  []Payment           `json:"settled"`
	Failures []SettlementFailure `json:"failures,omitempty"`
}
