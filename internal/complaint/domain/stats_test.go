package domain

import (
	"testing"
	"time"
)

// TestSummarize tests dashboard aggregation
func TestSummarize(t *testing.T) {
	now := time.Date(2024, 6, 20, 12, 0, 0, 0, time.UTC)
	old := now.Add(-10 * day)
	recent := now.Add(-day)

	samples := []StatSample{
		{Status: StatusPending, Assigned: false, CreatedAt: old},
		{Status: StatusPending, Assigned: true, CreatedAt: recent},
		{Status: StatusInProgress, Assigned: true, CreatedAt: old},
		{Status: StatusResolved, Assigned: true, CreatedAt: old},
		{Status: StatusClosed, Assigned: true, CreatedAt: old},
		{Status: StatusRejected, Assigned: false, CreatedAt: recent},
	}

	s := Summarize(samples, 7, now)

	if s.Total != 6 {
		t.Errorf("Expected total 6, got %d", s.Total)
	}
	if s.ByStatus[StatusPending] != 2 || s.ByStatus[StatusResolved] != 1 {
		t.Errorf("Unexpected counts: %v", s.ByStatus)
	}
	if s.Unassigned != 1 {
		t.Errorf("Expected 1 unassigned open complaint, got %d", s.Unassigned)
	}
	if s.Overdue != 2 {
		t.Errorf("Expected 2 overdue, got %d", s.Overdue)
	}
	if s.ResolutionRate < 0.333 || s.ResolutionRate > 0.334 {
		t.Errorf("Expected resolution rate 1/3, got %f", s.ResolutionRate)
	}
}

// TestSummarizeEmpty tests aggregation without complaints
func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, 0, time.Now())
	if s.Total != 0 || s.ResolutionRate != 0 {
		t.Errorf("Unexpected summary: %+v", s)
	}
	if s.Threshold != DefaultOverdueThreshold {
		t.Errorf("Expected default threshold, got %d", s.Threshold)
	}
	if len(s.ByStatus) != len(Statuses) {
		t.Errorf("Expected every status present, got %v", s.ByStatus)
	}
}
