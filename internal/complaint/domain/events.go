package domain

import (
	"github.com/civic-complaints/platform/internal/shared/types"
)

// Event types published after a complaint change is persisted
const (
	EventComplaintSubmitted     = "complaint.submitted"
	EventComplaintAssigned      = "complaint.assigned"
	EventComplaintReassigned    = "complaint.reassigned"
	EventComplaintTransferred   = "complaint.transferred"
	EventComplaintStatusChanged = "complaint.status_changed"
)

// EventSource identifies complaint events on the bus
const EventSource = "complaint"

// EventType maps a history action to the event published for it
func EventType(action HistoryAction) string {
	switch action {
	case HistorySubmitted:
		return EventComplaintSubmitted
	case HistoryAssigned:
		return EventComplaintAssigned
	case HistoryReassigned:
		return EventComplaintReassigned
	case HistoryTransferred:
		return EventComplaintTransferred
	}
	return EventComplaintStatusChanged
}

// ComplaintEvent is the payload of every complaint event. It carries the
// citizen contact so notification consumers do not read the database.
type ComplaintEvent struct {
	ComplaintID  types.ID           `json:"complaint_id"`
	TrackingCode types.TrackingCode `json:"tracking_code"`
	Subject      string             `json:"subject"`
	Status       Status             `json:"status"`
	AgencyID     types.ID           `json:"agency_id"`
	CitizenName  string             `json:"citizen_name"`
	CitizenEmail string             `json:"citizen_email"`
	History      HistoryRecord      `json:"history"`
}

// NewComplaintEvent builds the payload for entry on c
func NewComplaintEvent(c *Complaint, entry HistoryEntry) ComplaintEvent {
	return ComplaintEvent{
		ComplaintID:  c.ID,
		TrackingCode: c.TrackingCode,
		Subject:      c.Subject,
		Status:       c.Status,
		AgencyID:     c.AgencyID,
		CitizenName:  c.CitizenName,
		CitizenEmail: c.CitizenEmail,
		History:      entry.Record(),
	}
}
