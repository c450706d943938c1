package models

import (
	"time"

	"github.com/google/uuid"
)

// DealStatus for group-buying deals. COMPLETED and FAILED are terminal.
const (
	DealStatusActive    = "ACTIVE"
	DealStatusCompleted = "COMPLETED"
	DealStatusFailed    = "FAILED"
)

// IsTerminalStatus reports whether a deal status admits no further transitions.
func IsTerminalStatus(status string) bool {
	return status == DealStatusCompleted || status == DealStatusFailed
}

// Deal represents a group-buying deal: a product offered at a discount
// contingent on reaching a participant target by a deadline.
type Deal struct {
	ID                     uuid.UUID   `json:"id"`
	Name                   string      `json:"name"`
	Content                string      `json:"content"`
	Category               string      `json:"category"`
	Supplier               string      `json:"supplier,omitempty"`
	RegularPriceCents      int         `json:"regular_price_cents"`
	DiscountedPriceCents   int         `json:"discounted_price_cents"`
	TargetParticipantCount int         `json:"target_participant_count"`
	TargetDate             time.Time   `json:"target_date"`
	Status                 string      `json:"status"`
	MainImageURL           string      `json:"main_image_url,omitempty"`
	ImageURLs              []string    `json:"image_urls,omitempty"`
	VideoURLs              []string    `json:"video_urls,omitempty"`
	JoinedUserIDs          []uuid.UUID `json:"joined_user_ids"`
	WishlistUserIDs        []uuid.UUID `json:"wishlist_user_ids"`
	CreatedAt              time.Time   `json:"created_at"`
	UpdatedAt              time.Time   `json:"updated_at"`
}

// Participants returns the current participant count.
func (d *Deal) Participants() int {
	return len(d.JoinedUserIDs)
}

// DealProgress is the derived read model attached to deal responses:
// status recomputed against participant count and deadline.
type DealProgress struct {
	Status          string        `json:"status"`
	Participants    int           `json:"participants"`
	ProgressPercent int           `json:"progress_percent"`
	TimeLeft        time.Duration `json:"time_left_ms"`
}

// DealView is a deal with its derived progress inlined for API responses.
type DealView struct {
	Deal
	Derived DealProgress `json:"derived"`
}
