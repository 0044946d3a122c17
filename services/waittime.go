package services

import (
	"time"

	"clinic-queue/models"
)

// Wait-time estimation is advisory only. It is displayed to clients and
// never used to order the queue, so every caller recomputes from current
// queue contents instead of trusting a cached value.

// EstimateByClass estimates the wait for a patient joining with the
// given priority, with emergencyAhead and regularAhead entries already
// waiting. Emergency patients only wait behind other emergencies.
func EstimateByClass(emergencyAhead, regularAhead int, priority string, triage, consultation time.Duration) time.Duration {
	if priority == models.PriorityEmergency {
		return time.Duration(emergencyAhead) * triage
	}
	return time.Duration(emergencyAhead)*triage + time.Duration(regularAhead)*consultation
}

// EstimateByPosition estimates the wait for a patient at the given
// 1-based position in the combined ordering.
func EstimateByPosition(position int, consultation time.Duration) time.Duration {
	if position <= 1 {
		return 0
	}
	return time.Duration(position-1) * consultation
}
