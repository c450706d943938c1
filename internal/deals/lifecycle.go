package deals

import (
	"math"
	"time"

	"github.com/dealmates/backend/internal/models"
)

// ProgressMilestones are the fixed percentages at which a one-time broadcast
// goes out to every current participant.
var ProgressMilestones = []int{70, 95}

// ComputeDerivedState derives a deal's current status and progress from its
// participant count and deadline. Pure function of (deal, now).
//
// The target check runs before the deadline check: a deal that fills exactly
// at or after its deadline is COMPLETED, never FAILED. Terminal stored
// statuses are never overridden.
func ComputeDerivedState(d *models.Deal, now time.Time) models.DealProgress {
	participants := d.Participants()

	progress := 0
	if d.TargetParticipantCount > 0 {
		ratio := float64(participants) / float64(d.TargetParticipantCount)
		progress = int(math.Round(math.Min(ratio, 1) * 100))
	}

	status := d.Status
	if status == models.DealStatusActive {
		if participants >= d.TargetParticipantCount {
			status = models.DealStatusCompleted
		} else if now.After(d.TargetDate) {
			status = models.DealStatusFailed
		}
	}

	timeLeft := d.TargetDate.Sub(now)
	if timeLeft < 0 {
		timeLeft = 0
	}

	return models.DealProgress{
		Status:          status,
		Participants:    participants,
		ProgressPercent: progress,
		TimeLeft:        timeLeft,
	}
}
