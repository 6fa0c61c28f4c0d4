package agency

import (
	"time"

	"github.com/civic-complaints/platform/internal/auth"
	"github.com/civic-complaints/platform/internal/shared/types"
)

// Agency represents a municipal department that owns complaints
type Agency struct {
	ID          types.ID `json:"id"`
	Name        string   `json:"name"`
	Acronym     string   `json:"acronym"`
	Description string   `json:"description,omitempty"`
	LogoURL     string   `json:"logo_url,omitempty"`
	Active      bool     `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Staff represents a user who handles complaints
type Staff struct {
	ID          types.ID          `json:"id"`
	Name        string            `json:"name"`
	Email       string            `json:"email"`
	Role        auth.Role         `json:"role"`
	AgencyID    *types.ID         `json:"agency_id,omitempty"`
	Permissions []auth.Permission `json:"permissions"`
	Active      bool              `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
}

// BelongsTo reports whether the user is an active member of agencyID
func (s Staff) BelongsTo(agencyID types.ID) bool {
	return s.Active && s.AgencyID != nil && *s.AgencyID == agencyID
}

// Category is a complaint category routed to one agency
type Category struct {
	ID          types.ID `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	AgencyID    types.ID `json:"agency_id"`
	Active      bool     `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
}

// ListStaffFilter defines filters for listing staff
type ListStaffFilter struct {
	AgencyID        types.ID   `json:"agency_id"`
	Role            *auth.Role `json:"role,omitempty"`
	IncludeInactive bool       `json:"include_inactive,omitempty"`
	Search          string     `json:"search,omitempty"`
	Limit           int        `json:"limit,omitempty"`
	Offset          int        `json:"offset,omitempty"`
}
