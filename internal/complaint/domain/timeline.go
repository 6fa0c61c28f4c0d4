package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/civic-complaints/platform/internal/shared/types"
)

// TimelineView selects who a timeline is rendered for
type TimelineView int

const (
	// TimelineInternal is the full trail shown to agency users.
	TimelineInternal TimelineView = iota
	// TimelinePublic is the tracking-code view: no staff identities and no
	// staff reassignments inside an agency.
	TimelinePublic
)

// Timeline entry kinds. Staff reassignment and agency transfer stay distinct.
const (
	KindSubmission         = "submission"
	KindAssignment         = "assignment"
	KindStaffReassignment  = "staff_reassignment"
	KindAgencyReassignment = "agency_reassignment"
	KindTransfer           = "transfer"
	KindStatusChange       = "status_change"
)

// AgencyRef is an agency resolved for display
type AgencyRef struct {
	ID      types.ID `json:"id"`
	Name    string   `json:"name"`
	Acronym string   `json:"acronym,omitempty"`
}

// Label renders "Name (ACR)" or just the name.
func (a AgencyRef) Label() string {
	if a.Acronym == "" {
		return a.Name
	}
	return fmt.Sprintf("%s (%s)", a.Name, a.Acronym)
}

// UserRef is a staff member resolved for display
type UserRef struct {
	ID   types.ID `json:"id"`
	Name string   `json:"name"`
}

// NameResolver resolves references to display names. Implementations return
// a placeholder for unknown IDs rather than failing.
type NameResolver interface {
	Agency(id types.ID) AgencyRef
	User(id types.ID) UserRef
}

// Names is a map-backed NameResolver
type Names struct {
	Agencies map[types.ID]AgencyRef
	Users    map[types.ID]UserRef
}

// Agency implements NameResolver
func (n Names) Agency(id types.ID) AgencyRef {
	if a, ok := n.Agencies[id]; ok {
		return a
	}
	return AgencyRef{ID: id, Name: "Unknown agency"}
}

// User implements NameResolver
func (n Names) User(id types.ID) UserRef {
	if u, ok := n.Users[id]; ok {
		return u
	}
	return UserRef{ID: id, Name: "Unknown user"}
}

// ReferencedIDs returns the agency and user IDs mentioned by entries, for
// building a resolver.
func ReferencedIDs(entries []HistoryEntry) (agencies, users []types.ID) {
	seenA := make(map[types.ID]bool)
	seenU := make(map[types.ID]bool)
	add := func(ids *[]types.ID, seen map[types.ID]bool, p *types.ID) {
		if p == nil || seen[*p] {
			return
		}
		seen[*p] = true
		*ids = append(*ids, *p)
	}
	for _, e := range entries {
		r := e.Record()
		add(&agencies, seenA, r.FromAgencyID)
		add(&agencies, seenA, r.ToAgencyID)
		add(&users, seenU, r.ActorID)
		add(&users, seenU, r.FromUserID)
		add(&users, seenU, r.ToUserID)
	}
	return agencies, users
}

// TimelineEntry is a display-ready history entry
type TimelineEntry struct {
	Sequence    int           `json:"sequence"`
	Action      HistoryAction `json:"action"`
	Kind        string        `json:"kind"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Timestamp   time.Time     `json:"timestamp"`
	Actor       *UserRef      `json:"actor,omitempty"`
	FromUser    *UserRef      `json:"from_user,omitempty"`
	ToUser      *UserRef      `json:"to_user,omitempty"`
	FromAgency  *AgencyRef    `json:"from_agency,omitempty"`
	ToAgency    *AgencyRef    `json:"to_agency,omitempty"`
	Metadata    string        `json:"metadata,omitempty"`
	// Synthetic marks a submission entry derived from the complaint itself.
	Synthetic bool `json:"synthetic,omitempty"`
}

// ProjectTimeline orders history by timestamp (stable, so equal timestamps
// keep insertion order) and renders it. The result always starts with a
// SUBMITTED entry; one is derived from the complaint when none is stored.
func ProjectTimeline(c *Complaint, history []HistoryEntry, names NameResolver, view TimelineView) []TimelineEntry {
	ordered := make([]HistoryEntry, 0, len(history))
	for _, e := range history {
		if e.Detail != nil && (c == nil || e.ComplaintID.IsZero() || e.ComplaintID == c.ID) {
			ordered = append(ordered, e)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	var submitted *HistoryEntry
	rest := make([]HistoryEntry, 0, len(ordered))
	for i := range ordered {
		if ordered[i].Action() == HistorySubmitted {
			if submitted == nil {
				submitted = &ordered[i]
			}
			continue
		}
		rest = append(rest, ordered[i])
	}

	timeline := make([]TimelineEntry, 0, len(rest)+1)
	if submitted != nil {
		timeline = append(timeline, renderEntry(*submitted, names, view))
	} else if c != nil {
		synthetic := renderEntry(syntheticSubmission(c, rest), names, view)
		synthetic.Synthetic = true
		timeline = append(timeline, synthetic)
	}

	for _, e := range rest {
		if view == TimelinePublic && !publicAction(e) {
			continue
		}
		timeline = append(timeline, renderEntry(e, names, view))
	}
	return timeline
}

// syntheticSubmission derives the submission entry. The submitting agency
// is the source of the first transfer, if the complaint has moved since.
func syntheticSubmission(c *Complaint, rest []HistoryEntry) HistoryEntry {
	agency := c.AgencyID
	for _, e := range rest {
		if t, ok := e.Detail.(Transferred); ok {
			agency = t.FromAgencyID
			break
		}
	}
	return HistoryEntry{
		ComplaintID: c.ID,
		Sequence:    0,
		Timestamp:   c.CreatedAt,
		Detail:      Submitted{AgencyID: agency},
	}
}

func publicAction(e HistoryEntry) bool {
	if r, ok := e.Detail.(Reassigned); ok {
		return !r.SameAgency()
	}
	return true
}

func renderEntry(e HistoryEntry, names NameResolver, view TimelineView) TimelineEntry {
	public := view == TimelinePublic
	te := TimelineEntry{
		Sequence:  e.Sequence,
		Action:    e.Action(),
		Timestamp: e.Timestamp,
	}

	userRef := func(id types.ID) *UserRef {
		if id.IsZero() || public {
			return nil
		}
		u := names.User(id)
		return &u
	}
	agencyRef := func(id types.ID) *AgencyRef {
		if id.IsZero() {
			return nil
		}
		a := names.Agency(id)
		return &a
	}
	te.Actor = userRef(e.ActorID)

	// by returns who acted: the staff member internally, the agency publicly.
	by := func(agencyID types.ID) string {
		if te.Actor != nil {
			return te.Actor.Name
		}
		return names.Agency(agencyID).Label()
	}

	switch d := e.Detail.(type) {
	case Submitted:
		te.Kind = KindSubmission
		te.Title = "Submitted"
		te.ToAgency = agencyRef(d.AgencyID)
		te.Description = "Complaint submitted"
		if te.ToAgency != nil {
			te.Description += " to " + te.ToAgency.Label()
		}

	case Assigned:
		te.Kind = KindAssignment
		te.Title = "Assigned"
		te.ToAgency = agencyRef(d.AgencyID)
		te.ToUser = userRef(d.ToUserID)
		if te.ToUser != nil {
			te.Description = "Assigned to " + te.ToUser.Name
		} else {
			te.Description = "Assigned to " + names.Agency(d.AgencyID).Label()
		}

	case Reassigned:
		te.Title = "Reassigned"
		te.FromAgency = agencyRef(d.FromAgencyID)
		te.ToAgency = agencyRef(d.ToAgencyID)
		te.FromUser = userRef(d.FromUserID)
		te.ToUser = userRef(d.ToUserID)
		if d.SameAgency() {
			te.Kind = KindStaffReassignment
			switch {
			case te.FromUser != nil && te.ToUser != nil:
				te.Description = fmt.Sprintf("Reassigned from %s to %s", te.FromUser.Name, te.ToUser.Name)
			case te.ToUser != nil:
				te.Description = "Reassigned to " + te.ToUser.Name
			default:
				te.Description = "Reassigned within " + names.Agency(d.ToAgencyID).Label()
			}
		} else {
			te.Kind = KindAgencyReassignment
			te.Description = fmt.Sprintf("Reassigned from %s to %s",
				names.Agency(d.FromAgencyID).Label(), names.Agency(d.ToAgencyID).Label())
		}

	case Transferred:
		te.Kind = KindTransfer
		te.Title = "Transferred"
		te.FromAgency = agencyRef(d.FromAgencyID)
		te.ToAgency = agencyRef(d.ToAgencyID)
		te.FromUser = userRef(d.FromUserID)
		te.Metadata = d.Reason
		te.Description = fmt.Sprintf("Transferred from %s to %s",
			names.Agency(d.FromAgencyID).Label(), names.Agency(d.ToAgencyID).Label())

	case StatusChanged:
		te.Kind = KindStatusChange
		te.Title = d.To.DisplayName()
		te.ToAgency = agencyRef(d.AgencyID)
		te.Metadata = d.Note
		if d.To == StatusInProgress {
			te.Description = "Status updated to In Progress by " + by(d.AgencyID)
		} else {
			te.Description = d.To.DisplayName() + " by " + by(d.AgencyID)
		}
	}

	if te.Metadata != "" {
		te.Description += fmt.Sprintf(". Reason: %q", te.Metadata)
	}
	return te
}
