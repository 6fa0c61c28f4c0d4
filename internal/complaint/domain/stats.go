package domain

import (
	"time"
)

// StatSample is the slice of a complaint that statistics need
type StatSample struct {
	Status    Status
	Assigned  bool
	CreatedAt time.Time
}

// Summary aggregates complaints for dashboards
type Summary struct {
	Total          int            `json:"total"`
	ByStatus       map[Status]int `json:"by_status"`
	Unassigned     int            `json:"unassigned"`
	Overdue        int            `json:"overdue"`
	Threshold      int            `json:"threshold"`
	ResolutionRate float64        `json:"resolution_rate"`
}

// Summarize counts samples by status and evaluates overdue at now.
// ResolutionRate is the share of complaints RESOLVED or CLOSED.
func Summarize(samples []StatSample, threshold int, now time.Time) Summary {
	if threshold <= 0 {
		threshold = DefaultOverdueThreshold
	}

	s := Summary{
		ByStatus:  make(map[Status]int, len(Statuses)),
		Threshold: threshold,
	}
	for _, st := range Statuses {
		s.ByStatus[st] = 0
	}

	for _, sample := range samples {
		s.Total++
		s.ByStatus[sample.Status]++
		if sample.Status.IsOpen() && !sample.Assigned {
			s.Unassigned++
		}
		if EvaluateOverdue(sample.CreatedAt, sample.Status, threshold, now).IsOverdue {
			s.Overdue++
		}
	}

	if s.Total > 0 {
		resolved := s.ByStatus[StatusResolved] + s.ByStatus[StatusClosed]
		s.ResolutionRate = float64(resolved) / float64(s.Total)
	}
	return s
}
