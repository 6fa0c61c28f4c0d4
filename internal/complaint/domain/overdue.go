package domain

import "time"

// DefaultOverdueThreshold is the overdue threshold in days when none is configured.
const DefaultOverdueThreshold = 7

const day = 24 * time.Hour

// Overdue is the read-time SLA projection of a complaint
type Overdue struct {
	AgeDays     int  `json:"age_days"`
	Threshold   int  `json:"threshold"`
	IsOverdue   bool `json:"is_overdue"`
	DaysOverdue int  `json:"days_overdue"`
}

// EvaluateOverdue computes whole days since createdAt and flags open
// complaints older than threshold days. Terminal complaints are never
// overdue. A non-positive threshold falls back to the default.
func EvaluateOverdue(createdAt time.Time, status Status, threshold int, now time.Time) Overdue {
	if threshold <= 0 {
		threshold = DefaultOverdueThreshold
	}

	age := 0
	if elapsed := now.Sub(createdAt); elapsed > 0 {
		age = int(elapsed / day)
	}

	o := Overdue{AgeDays: age, Threshold: threshold}
	if status.IsOpen() && age > threshold {
		o.IsOverdue = true
		o.DaysOverdue = age - threshold
	}
	return o
}

// Overdue evaluates the complaint against threshold
func (c *Complaint) Overdue(threshold int, now time.Time) Overdue {
	return EvaluateOverdue(c.CreatedAt, c.Status, threshold, now)
}

// OverdueCutoff returns the latest creation time that is overdue at now for
// threshold, for pushing the overdue filter into queries.
func OverdueCutoff(threshold int, now time.Time) time.Time {
	if threshold <= 0 {
		threshold = DefaultOverdueThreshold
	}
	return now.Add(-time.Duration(threshold+1) * day)
}
