package domain

import (
	"context"
	"time"

	"github.com/civic-complaints/platform/internal/shared/errors"
	"github.com/civic-complaints/platform/internal/shared/types"
)

// ErrTrackingCodeTaken is returned by Create when the tracking code of a new
// complaint is already in use.
var ErrTrackingCodeTaken = errors.Conflict("tracking code already in use")

// Repository defines the interface for complaint persistence
type Repository interface {
	// Create stores a new complaint and its uncommitted history.
	Create(ctx context.Context, c *Complaint) error
	// Update stores c and appends its uncommitted history, provided the
	// stored version still equals c.Version. On success c.Version is
	// incremented; otherwise a Conflict error is returned.
	Update(ctx context.Context, c *Complaint) error
	GetByID(ctx context.Context, id types.ID) (*Complaint, error)
	GetByTrackingCode(ctx context.Context, code types.TrackingCode) (*Complaint, error)
	List(ctx context.Context, filter ListFilter) ([]*Complaint, int, error)
	// History returns the entries of a complaint in insertion order.
	History(ctx context.Context, complaintID types.ID) ([]HistoryEntry, error)
	StatSamples(ctx context.Context, filter ListFilter) ([]StatSample, error)
}

// ListFilter defines filtering options for listing complaints
type ListFilter struct {
	AgencyID   *types.ID
	AssignedTo *types.ID
	CategoryID *types.ID
	Statuses   []Status
	// CreatedBefore keeps complaints created at or before this instant.
	CreatedBefore *time.Time
	Search        string
	Limit         int
	Offset        int
}
