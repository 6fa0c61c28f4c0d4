package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/civic-complaints/platform/internal/shared/types"
)

// HistoryAction names the kind of a history entry
type HistoryAction string

const (
	HistorySubmitted   HistoryAction = "SUBMITTED"
	HistoryAssigned    HistoryAction = "ASSIGNED"
	HistoryReassigned  HistoryAction = "REASSIGNED"
	HistoryTransferred HistoryAction = "TRANSFERRED"
	HistoryInProgress  HistoryAction = "IN_PROGRESS"
	HistoryResolved    HistoryAction = "RESOLVED"
	HistoryRejected    HistoryAction = "REJECTED"
	HistoryClosed      HistoryAction = "CLOSED"
)

// HistoryEntry is one append-only row of a complaint's audit trail.
type HistoryEntry struct {
	ID          types.ID
	ComplaintID types.ID
	// Sequence is 1 for the submission and increases by one per transition.
	Sequence int
	// ActorID is the staff member who made the change; zero for submissions.
	ActorID   types.ID
	Timestamp time.Time
	Detail    HistoryDetail
}

// Action returns the kind of the entry
func (e HistoryEntry) Action() HistoryAction {
	if e.Detail == nil {
		return ""
	}
	return e.Detail.Action()
}

// HistoryDetail is the action-specific part of a history entry. Each variant
// carries only the fields its action needs.
type HistoryDetail interface {
	Action() HistoryAction
	fill(r *HistoryRecord)
}

// Submitted records the citizen submission.
type Submitted struct {
	AgencyID types.ID
}

// Assigned records the first assignment of a complaint.
type Assigned struct {
	AgencyID types.ID
	ToUserID types.ID
}

// Reassigned records a change of assignee. Entries written by this service
// always stay within one agency; rows imported from older systems may carry
// two different agencies.
type Reassigned struct {
	FromAgencyID types.ID
	ToAgencyID   types.ID
	FromUserID   types.ID
	ToUserID     types.ID
}

// SameAgency reports whether this is a staff reassignment inside one agency.
func (r Reassigned) SameAgency() bool {
	return r.FromAgencyID == r.ToAgencyID
}

// Transferred records a move of ownership between agencies.
type Transferred struct {
	FromAgencyID types.ID
	ToAgencyID   types.ID
	// FromUserID is the assignee cleared by the transfer, if any.
	FromUserID types.ID
	Reason     string
}

// StatusChanged records an UPDATE_STATUS. Its action is named after To.
type StatusChanged struct {
	AgencyID types.ID
	From     Status
	To       Status
	Note     string
}

func (Submitted) Action() HistoryAction       { return HistorySubmitted }
func (Assigned) Action() HistoryAction        { return HistoryAssigned }
func (Reassigned) Action() HistoryAction      { return HistoryReassigned }
func (Transferred) Action() HistoryAction     { return HistoryTransferred }
func (d StatusChanged) Action() HistoryAction { return HistoryAction(d.To) }

func (d Submitted) fill(r *HistoryRecord) {
	r.ToAgencyID = d.AgencyID.Ptr()
}

func (d Assigned) fill(r *HistoryRecord) {
	r.FromAgencyID = d.AgencyID.Ptr()
	r.ToAgencyID = d.AgencyID.Ptr()
	r.ToUserID = d.ToUserID.Ptr()
}

func (d Reassigned) fill(r *HistoryRecord) {
	r.FromAgencyID = d.FromAgencyID.Ptr()
	r.ToAgencyID = d.ToAgencyID.Ptr()
	r.FromUserID = d.FromUserID.Ptr()
	r.ToUserID = d.ToUserID.Ptr()
}

func (d Transferred) fill(r *HistoryRecord) {
	r.FromAgencyID = d.FromAgencyID.Ptr()
	r.ToAgencyID = d.ToAgencyID.Ptr()
	r.FromUserID = d.FromUserID.Ptr()
	r.Metadata = d.Reason
}

func (d StatusChanged) fill(r *HistoryRecord) {
	r.FromAgencyID = d.AgencyID.Ptr()
	r.ToAgencyID = d.AgencyID.Ptr()
	r.FromStatus = d.From
	r.ToStatus = d.To
	r.Metadata = d.Note
}

// HistoryRecord is the flat storage and wire shape of a history entry.
type HistoryRecord struct {
	ID           types.ID      `json:"id"`
	ComplaintID  types.ID      `json:"complaint_id"`
	Sequence     int           `json:"sequence"`
	Action       HistoryAction `json:"action"`
	ActorID      *types.ID     `json:"actor_id,omitempty"`
	FromUserID   *types.ID     `json:"from_user_id,omitempty"`
	ToUserID     *types.ID     `json:"to_user_id,omitempty"`
	FromAgencyID *types.ID     `json:"from_agency_id,omitempty"`
	ToAgencyID   *types.ID     `json:"to_agency_id,omitempty"`
	FromStatus   Status        `json:"from_status,omitempty"`
	ToStatus     Status        `json:"to_status,omitempty"`
	Metadata     string        `json:"metadata,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// Record flattens the entry for storage or transport.
func (e HistoryEntry) Record() HistoryRecord {
	r := HistoryRecord{
		ID:          e.ID,
		ComplaintID: e.ComplaintID,
		Sequence:    e.Sequence,
		Action:      e.Action(),
		ActorID:     e.ActorID.Ptr(),
		Timestamp:   e.Timestamp,
	}
	if e.Detail != nil {
		e.Detail.fill(&r)
	}
	return r
}

// MarshalJSON renders the entry in its flat record shape.
func (e HistoryEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Record())
}

// UnmarshalJSON parses the flat record shape.
func (e *HistoryEntry) UnmarshalJSON(data []byte) error {
	var r HistoryRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	entry, err := r.Entry()
	if err != nil {
		return err
	}
	*e = entry
	return nil
}

// Entry rebuilds the typed entry, rejecting records whose fields do not fit
// their action.
func (r HistoryRecord) Entry() (HistoryEntry, error) {
	e := HistoryEntry{
		ID:          r.ID,
		ComplaintID: r.ComplaintID,
		Sequence:    r.Sequence,
		ActorID:     types.Deref(r.ActorID),
		Timestamp:   r.Timestamp,
	}

	from, to := types.Deref(r.FromAgencyID), types.Deref(r.ToAgencyID)
	fromUser, toUser := types.Deref(r.FromUserID), types.Deref(r.ToUserID)

	switch r.Action {
	case HistorySubmitted:
		e.Detail = Submitted{AgencyID: to}

	case HistoryAssigned:
		if toUser.IsZero() {
			return HistoryEntry{}, r.invalid("to_user_id is required")
		}
		agency := to
		if agency.IsZero() {
			agency = from
		}
		e.Detail = Assigned{AgencyID: agency, ToUserID: toUser}

	case HistoryReassigned:
		if toUser.IsZero() && (from.IsZero() || to.IsZero()) {
			return HistoryEntry{}, r.invalid("either to_user_id or both agencies are required")
		}
		if from.IsZero() {
			from = to
		}
		if to.IsZero() {
			to = from
		}
		e.Detail = Reassigned{FromAgencyID: from, ToAgencyID: to, FromUserID: fromUser, ToUserID: toUser}

	case HistoryTransferred:
		if from.IsZero() || to.IsZero() {
			return HistoryEntry{}, r.invalid("from_agency_id and to_agency_id are required")
		}
		e.Detail = Transferred{FromAgencyID: from, ToAgencyID: to, FromUserID: fromUser, Reason: r.Metadata}

	case HistoryInProgress, HistoryResolved, HistoryRejected, HistoryClosed:
		agency := from
		if agency.IsZero() {
			agency = to
		}
		e.Detail = StatusChanged{AgencyID: agency, From: r.FromStatus, To: Status(r.Action), Note: r.Metadata}

	default:
		return HistoryEntry{}, r.invalid("unknown action")
	}

	return e, nil
}

func (r HistoryRecord) invalid(msg string) error {
	return fmt.Errorf("history entry %s (%s): %s", r.ID, r.Action, msg)
}
