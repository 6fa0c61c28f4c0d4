package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/civic-complaints/platform/internal/shared/types"
)

// TestHistoryRecordFields tests which nullable fields each variant fills
func TestHistoryRecordFields(t *testing.T) {
	f := newFixture()
	c := newTestComplaint(t, f)
	c.Assign(f.admin, f.staffTarget(f.staff1), t0.Add(time.Hour))
	c.Transfer(f.admin, AgencyTarget{ID: f.agencyB, Active: true}, "wrong department", t0.Add(2*time.Hour))

	history := c.Uncommitted()

	submitted := history[0].Record()
	if submitted.FromAgencyID != nil || submitted.FromUserID != nil || submitted.ActorID != nil {
		t.Errorf("SUBMITTED must not carry from* or actor fields: %+v", submitted)
	}
	if types.Deref(submitted.ToAgencyID) != f.agencyA {
		t.Errorf("Expected SUBMITTED to agency A")
	}

	assigned := history[1].Record()
	if assigned.FromUserID != nil || types.Deref(assigned.ToUserID) != f.staff1 {
		t.Errorf("Unexpected ASSIGNED record: %+v", assigned)
	}
	if types.Deref(assigned.ActorID) != f.admin.ID {
		t.Errorf("Expected actor %s", f.admin.ID)
	}

	transferred := history[2].Record()
	if types.Deref(transferred.FromUserID) != f.staff1 || transferred.ToUserID != nil {
		t.Errorf("Unexpected TRANSFERRED users: %+v", transferred)
	}
}

// TestHistoryRecordRoundTrip tests that records rebuild into the same variant
func TestHistoryRecordRoundTrip(t *testing.T) {
	f := newFixture()
	c := newTestComplaint(t, f)
	c.Assign(f.admin, f.staffTarget(f.staff1), t0.Add(time.Hour))
	c.Assign(f.admin, f.staffTarget(f.staff2), t0.Add(2*time.Hour))
	c.UpdateStatus(f.admin, StatusRejected, "duplicate report", t0.Add(3*time.Hour))

	for _, e := range c.Uncommitted() {
		got, err := e.Record().Entry()
		if err != nil {
			t.Fatalf("Failed to rebuild %s: %v", e.Action(), err)
		}
		if got.Detail != e.Detail {
			t.Errorf("Expected %+v, got %+v", e.Detail, got.Detail)
		}
	}
}

// TestHistoryRecordInvalid tests rejection of records that do not fit their action
func TestHistoryRecordInvalid(t *testing.T) {
	agency := types.NewID()

	tests := []struct {
		name string
		rec  HistoryRecord
	}{
		{"assigned without user", HistoryRecord{Action: HistoryAssigned, ToAgencyID: &agency}},
		{"transferred without target", HistoryRecord{Action: HistoryTransferred, FromAgencyID: &agency}},
		{"reassigned without anything", HistoryRecord{Action: HistoryReassigned}},
		{"unknown action", HistoryRecord{Action: "ESCALATED"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.rec.Entry(); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

// TestHistoryEntryJSON tests the flat wire shape
func TestHistoryEntryJSON(t *testing.T) {
	from, to := types.NewID(), types.NewID()
	entry := HistoryEntry{
		ID:          types.NewID(),
		ComplaintID: types.NewID(),
		Sequence:    3,
		Timestamp:   t0,
		Detail:      Transferred{FromAgencyID: from, ToAgencyID: to, Reason: "wrong department"},
	}

	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var raw map[string]any
	json.Unmarshal(data, &raw)
	if raw["action"] != "TRANSFERRED" || raw["metadata"] != "wrong department" {
		t.Errorf("Unexpected JSON: %s", data)
	}
	if _, ok := raw["to_user_id"]; ok {
		t.Errorf("Empty references should be omitted: %s", data)
	}

	var back HistoryEntry
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if back.Detail != entry.Detail {
		t.Errorf("Expected %+v, got %+v", entry.Detail, back.Detail)
	}
}
