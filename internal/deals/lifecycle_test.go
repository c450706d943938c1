package deals

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dealmates/backend/internal/models"
)

func dealWith(target, joined int, status string, targetDate time.Time) *models.Deal {
	ids := make([]uuid.UUID, joined)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return &models.Deal{
		ID:                     uuid.New(),
		Status:                 status,
		TargetParticipantCount: target,
		TargetDate:             targetDate,
		JoinedUserIDs:          ids,
	}
}

func TestComputeDerivedState(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(48 * time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name         string
		deal         *models.Deal
		wantStatus   string
		wantProgress int
	}{
		{
			name:         "active deal below target before deadline stays active",
			deal:         dealWith(10, 3, models.DealStatusActive, future),
			wantStatus:   models.DealStatusActive,
			wantProgress: 30,
		},
		{
			name:         "reaching target completes",
			deal:         dealWith(10, 10, models.DealStatusActive, future),
			wantStatus:   models.DealStatusCompleted,
			wantProgress: 100,
		},
		{
			name:         "over target clamps progress at 100",
			deal:         dealWith(10, 12, models.DealStatusActive, future),
			wantStatus:   models.DealStatusCompleted,
			wantProgress: 100,
		},
		{
			name:         "deadline passed below target fails",
			deal:         dealWith(10, 9, models.DealStatusActive, past),
			wantStatus:   models.DealStatusFailed,
			wantProgress: 90,
		},
		{
			name:         "target reached exactly at deadline completes, not fails",
			deal:         dealWith(10, 10, models.DealStatusActive, past),
			wantStatus:   models.DealStatusCompleted,
			wantProgress: 100,
		},
		{
			name:         "deal exactly at deadline instant is not yet expired",
			deal:         dealWith(10, 5, models.DealStatusActive, now),
			wantStatus:   models.DealStatusActive,
			wantProgress: 50,
		},
		{
			name:         "stored failed status is sticky even when target later reached",
			deal:         dealWith(10, 10, models.DealStatusFailed, past),
			wantStatus:   models.DealStatusFailed,
			wantProgress: 100,
		},
		{
			name:         "stored completed status is sticky past deadline",
			deal:         dealWith(10, 10, models.DealStatusCompleted, past),
			wantStatus:   models.DealStatusCompleted,
			wantProgress: 100,
		},
		{
			name:         "progress rounds to nearest percent",
			deal:         dealWith(3, 1, models.DealStatusActive, future),
			wantStatus:   models.DealStatusActive,
			wantProgress: 33,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeDerivedState(tt.deal, now)
			if got.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", got.Status, tt.wantStatus)
			}
			if got.ProgressPercent != tt.wantProgress {
				t.Errorf("progress = %d, want %d", got.ProgressPercent, tt.wantProgress)
			}
			if got.Participants != tt.deal.Participants() {
				t.Errorf("participants = %d, want %d", got.Participants, tt.deal.Participants())
			}
		})
	}
}

func TestComputeDerivedState_TimeLeft(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Given a future deadline Then time left is the remaining duration", func(t *testing.T) {
		d := dealWith(10, 1, models.DealStatusActive, now.Add(3*time.Hour))
		got := ComputeDerivedState(d, now)
		if got.TimeLeft != 3*time.Hour {
			t.Errorf("time left = %v, want %v", got.TimeLeft, 3*time.Hour)
		}
	})

	t.Run("Given a past deadline Then time left clamps to zero", func(t *testing.T) {
		d := dealWith(10, 1, models.DealStatusActive, now.Add(-3*time.Hour))
		got := ComputeDerivedState(d, now)
		if got.TimeLeft != 0 {
			t.Errorf("time left = %v, want 0", got.TimeLeft)
		}
	})
}
