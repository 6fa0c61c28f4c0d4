// Package domain holds the complaint aggregate and the rules that govern
// its lifecycle.
package domain

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/civic-complaints/platform/internal/auth"
	"github.com/civic-complaints/platform/internal/shared/errors"
	"github.com/civic-complaints/platform/internal/shared/types"
)

// Status represents the lifecycle status of a complaint
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusResolved   Status = "RESOLVED"
	StatusClosed     Status = "CLOSED"
	StatusRejected   Status = "REJECTED"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusResolved, StatusClosed, StatusRejected}

// ParseStatus parses a status name, case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if st.IsKnown() {
		return st, nil
	}
	return "", errors.Validation("unknown status", map[string]string{"status": s})
}

// IsKnown reports whether s is one of the defined statuses.
func (s Status) IsKnown() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further action is accepted in this status.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusClosed || s == StatusRejected
}

// IsOpen reports whether the complaint is still being worked on.
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusInProgress
}

// DisplayName returns the status as shown to people.
func (s Status) DisplayName() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusInProgress:
		return "In Progress"
	case StatusResolved:
		return "Resolved"
	case StatusClosed:
		return "Closed"
	case StatusRejected:
		return "Rejected"
	}
	return string(s)
}

const (
	maxSubjectLength     = 200
	maxDescriptionLength = 5000
	maxNameLength        = 200
)

// Complaint is a citizen-submitted issue tracked through resolution.
type Complaint struct {
	ID           types.ID           `json:"id"`
	TrackingCode types.TrackingCode `json:"tracking_code"`
	Subject      string             `json:"subject"`
	Description  string             `json:"description"`
	CitizenName  string             `json:"citizen_name"`
	CitizenEmail string             `json:"citizen_email"`
	CategoryID   types.ID           `json:"category_id"`
	AgencyID     types.ID           `json:"agency_id"`
	Status       Status             `json:"status"`
	AssignedTo   *types.ID          `json:"assigned_to"`

	// Version increments on every persisted change.
	Version int `json:"version"`
	// HistorySeq is the sequence number of the latest history entry.
	HistorySeq int `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	pending []HistoryEntry
}

// NewComplaintParams holds what a citizen submission provides after routing
type NewComplaintParams struct {
	Subject      string
	Description  string
	CitizenName  string
	CitizenEmail string
	CategoryID   types.ID
	AgencyID     types.ID
}

// NewComplaint creates a PENDING complaint with its SUBMITTED history entry.
func NewComplaint(p NewComplaintParams, now time.Time) (*Complaint, error) {
	p.Subject = strings.TrimSpace(p.Subject)
	p.Description = strings.TrimSpace(p.Description)
	p.CitizenName = strings.TrimSpace(p.CitizenName)
	p.CitizenEmail = strings.TrimSpace(p.CitizenEmail)

	if err := validateSubmission(p); err != nil {
		return nil, err
	}

	code, err := types.NewTrackingCode()
	if err != nil {
		return nil, errors.Internal(err)
	}

	now = now.UTC()
	c := &Complaint{
		ID:           types.NewID(),
		TrackingCode: code,
		Subject:      p.Subject,
		Description:  p.Description,
		CitizenName:  p.CitizenName,
		CitizenEmail: p.CitizenEmail,
		CategoryID:   p.CategoryID,
		AgencyID:     p.AgencyID,
		Status:       StatusPending,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	c.record(types.ID(""), Submitted{AgencyID: p.AgencyID}, now)
	return c, nil
}

// ValidateSubmission checks citizen input before routing.
func ValidateSubmission(description, citizenName, citizenEmail string) error {
	details := make(map[string]string)
	validateCitizenInput(strings.TrimSpace(description), strings.TrimSpace(citizenName), strings.TrimSpace(citizenEmail), details)
	if len(details) > 0 {
		return errors.Validation("invalid complaint submission", details)
	}
	return nil
}

func validateSubmission(p NewComplaintParams) error {
	details := make(map[string]string)

	if p.Subject == "" {
		details["subject"] = "required"
	} else if utf8.RuneCountInString(p.Subject) > maxSubjectLength {
		details["subject"] = "too long"
	}
	validateCitizenInput(p.Description, p.CitizenName, p.CitizenEmail, details)
	if p.CategoryID.IsZero() {
		details["category_id"] = "required"
	}
	if p.AgencyID.IsZero() {
		details["agency_id"] = "required"
	}

	if len(details) > 0 {
		return errors.Validation("invalid complaint submission", details)
	}
	return nil
}

func validateCitizenInput(description, name, email string, details map[string]string) {
	if description == "" {
		details["description"] = "required"
	} else if utf8.RuneCountInString(description) > maxDescriptionLength {
		details["description"] = "too long"
	}
	if name == "" {
		details["citizen_name"] = "required"
	} else if utf8.RuneCountInString(name) > maxNameLength {
		details["citizen_name"] = "too long"
	}
	if email == "" {
		details["citizen_email"] = "required"
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		details["citizen_email"] = "invalid email address"
	}
}

// RegenerateTrackingCode replaces the tracking code of an unsaved complaint
// after a collision.
func (c *Complaint) RegenerateTrackingCode() error {
	code, err := types.NewTrackingCode()
	if err != nil {
		return errors.Internal(err)
	}
	c.TrackingCode = code
	return nil
}

// State returns the part of the complaint the transition rules look at.
func (c *Complaint) State() State {
	return State{
		Status:     c.Status,
		AgencyID:   c.AgencyID,
		AssignedTo: types.Deref(c.AssignedTo),
	}
}

// Assign assigns the complaint to a staff member of the owning agency.
func (c *Complaint) Assign(actor auth.Actor, staff StaffTarget, now time.Time) (HistoryEntry, error) {
	return c.apply(actor, Request{Action: ActionAssign, Staff: &staff}, now)
}

// UpdateStatus moves the complaint to a new status.
func (c *Complaint) UpdateStatus(actor auth.Actor, status Status, metadata string, now time.Time) (HistoryEntry, error) {
	return c.apply(actor, Request{Action: ActionUpdateStatus, Status: status, Reason: metadata}, now)
}

// Transfer moves ownership of the complaint to another agency.
func (c *Complaint) Transfer(actor auth.Actor, target AgencyTarget, reason string, now time.Time) (HistoryEntry, error) {
	return c.apply(actor, Request{Action: ActionTransfer, Agency: &target, Reason: reason}, now)
}

func (c *Complaint) apply(actor auth.Actor, req Request, now time.Time) (HistoryEntry, error) {
	outcome, err := ValidateTransition(c.State(), req, actor)
	if err != nil {
		return HistoryEntry{}, err
	}

	c.Status = outcome.Next.Status
	c.AgencyID = outcome.Next.AgencyID
	c.AssignedTo = outcome.Next.AssignedTo.Ptr()

	return c.record(actor.ID, outcome.Detail, now), nil
}

// record appends a history entry. Timestamps never go backwards within a
// complaint, even if the clock does.
func (c *Complaint) record(actorID types.ID, detail HistoryDetail, now time.Time) HistoryEntry {
	ts := now.UTC()
	if ts.Before(c.UpdatedAt) {
		ts = c.UpdatedAt
	}

	c.HistorySeq++
	entry := HistoryEntry{
		ID:          types.NewID(),
		ComplaintID: c.ID,
		Sequence:    c.HistorySeq,
		ActorID:     actorID,
		Timestamp:   ts,
		Detail:      detail,
	}
	c.UpdatedAt = ts
	c.pending = append(c.pending, entry)
	return entry
}

// Uncommitted returns history entries not yet persisted.
func (c *Complaint) Uncommitted() []HistoryEntry {
	return c.pending
}

// MarkCommitted clears and returns the entries the repository has persisted.
func (c *Complaint) MarkCommitted() []HistoryEntry {
	entries := c.pending
	c.pending = nil
	return entries
}

// PublicView is what anyone holding the tracking code may see. Citizen
// contact details and staff identities are left out.
type PublicView struct {
	TrackingCode types.TrackingCode `json:"tracking_code"`
	Subject      string             `json:"subject"`
	Status       Status             `json:"status"`
	StatusName   string             `json:"status_name"`
	Agency       AgencyRef          `json:"agency"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	Timeline     []TimelineEntry    `json:"timeline"`
}
