// Package app orchestrates complaint use cases: routing and submission,
// scoped reads, and lifecycle transitions with history and events.
package app

import (
	"context"
	"log"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/civic-complaints/platform/internal/agency"
	"github.com/civic-complaints/platform/internal/auth"
	"github.com/civic-complaints/platform/internal/complaint/domain"
	"github.com/civic-complaints/platform/internal/shared/config"
	"github.com/civic-complaints/platform/internal/shared/errors"
	"github.com/civic-complaints/platform/internal/shared/events"
	"github.com/civic-complaints/platform/internal/shared/metrics"
	"github.com/civic-complaints/platform/internal/shared/types"
)

// maxCodeAttempts bounds tracking-code regeneration after collisions.
const maxCodeAttempts = 3

// Classifier suggests a category and subject for a complaint description.
type Classifier interface {
	Classify(ctx context.Context, description string, categories []domain.CategoryOption) (domain.Classification, error)
}

// Service implements the complaint use cases
type Service struct {
	repo       domain.Repository
	directory  agency.Store
	classifier Classifier
	bus        events.EventBus
	cfg        config.ComplaintsConfig
	now        func() time.Time
}

// NewService creates a complaint service. classifier may be nil, in which
// case submissions must name a category.
func NewService(repo domain.Repository, directory agency.Store, classifier Classifier, bus events.EventBus, cfg config.ComplaintsConfig) *Service {
	return &Service{
		repo:       repo,
		directory:  directory,
		classifier: classifier,
		bus:        bus,
		cfg:        cfg,
		now:        time.Now,
	}
}

// WithClock replaces the time source
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// --- Submission ---

// SubmitInput is a citizen submission
type SubmitInput struct {
	Description  string    `json:"description"`
	CitizenName  string    `json:"citizen_name"`
	CitizenEmail string    `json:"citizen_email"`
	Subject      string    `json:"subject,omitempty"`
	CategoryID   *types.ID `json:"category_id,omitempty"`
}

// Submit routes and stores a new complaint. Without a category the
// classifier picks one; an answer matching no category blocks the
// submission with an UnroutableComplaint error.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*domain.Complaint, error) {
	if err := domain.ValidateSubmission(in.Description, in.CitizenName, in.CitizenEmail); err != nil {
		return nil, err
	}

	route, routing, err := s.route(ctx, in)
	if err != nil {
		if errors.Is(err, errors.ErrUnroutable) {
			metrics.RecordComplaintUnroutable()
		}
		return nil, err
	}

	c, err := domain.NewComplaint(domain.NewComplaintParams{
		Subject:      route.Subject,
		Description:  in.Description,
		CitizenName:  in.CitizenName,
		CitizenEmail: in.CitizenEmail,
		CategoryID:   route.CategoryID,
		AgencyID:     route.AgencyID,
	}, s.now())
	if err != nil {
		return nil, err
	}

	entries := slices.Clone(c.Uncommitted())
	for attempt := 1; ; attempt++ {
		err = s.repo.Create(ctx, c)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrTrackingCodeTaken) || attempt == maxCodeAttempts {
			return nil, err
		}
		if err := c.RegenerateTrackingCode(); err != nil {
			return nil, err
		}
	}

	s.publish(ctx, c, entries, "citizen", types.ID(""))
	metrics.RecordComplaintSubmitted(route.AgencyID.String(), routing)
	return c, nil
}

// Classify previews the route a description would take without storing
// anything.
func (s *Service) Classify(ctx context.Context, description string) (domain.Route, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return domain.Route{}, errors.Validation("validation failed", map[string]string{"description": "required"})
	}
	if s.classifier == nil {
		return domain.Route{}, errors.Unavailable("automatic routing is disabled", nil)
	}

	options, err := s.categoryOptions(ctx)
	if err != nil {
		return domain.Route{}, err
	}
	classification, err := s.classifier.Classify(ctx, description, options)
	if err != nil {
		return domain.Route{}, err
	}
	return domain.ResolveRoute(description, options, classification)
}

func (s *Service) route(ctx context.Context, in SubmitInput) (domain.Route, string, error) {
	options, err := s.categoryOptions(ctx)
	if err != nil {
		return domain.Route{}, "", err
	}

	if in.CategoryID != nil {
		subject := in.Subject
		if strings.TrimSpace(subject) == "" && s.classifier != nil {
			// Only the subject is wanted; a failed call falls back to one
			// derived from the description.
			if cls, err := s.classifier.Classify(ctx, in.Description, options); err == nil {
				subject = cls.Subject
			}
		}
		route, err := domain.ManualRoute(*in.CategoryID, options, subject, in.Description)
		return route, "manual", err
	}

	if s.classifier == nil {
		return domain.Route{}, "", errors.Validation("automatic routing is disabled, choose a category",
			map[string]string{"category_id": "required"})
	}

	classification, err := s.classifier.Classify(ctx, in.Description, options)
	if err != nil {
		return domain.Route{}, "", err
	}
	route, err := domain.ResolveRoute(in.Description, options, classification)
	if err != nil {
		return domain.Route{}, "", err
	}
	if strings.TrimSpace(in.Subject) != "" {
		route.Subject = domain.CleanSubject(in.Subject, in.Description)
	}
	return route, "classifier", nil
}

// categoryOptions lists active categories whose agency is active
func (s *Service) categoryOptions(ctx context.Context) ([]domain.CategoryOption, error) {
	categories, err := s.directory.ListCategories(ctx, true)
	if err != nil {
		return nil, err
	}
	agencies, err := s.directory.ListAgencies(ctx, true)
	if err != nil {
		return nil, err
	}
	active := make(map[types.ID]bool, len(agencies))
	for _, a := range agencies {
		active[a.ID] = true
	}

	options := make([]domain.CategoryOption, 0, len(categories))
	for _, c := range categories {
		if active[c.AgencyID] {
			options = append(options, domain.CategoryOption{ID: c.ID, Name: c.Name, AgencyID: c.AgencyID})
		}
	}
	return options, nil
}

// --- Reads ---

// ComplaintView is a complaint with its overdue projection
type ComplaintView struct {
	*domain.Complaint
	Overdue domain.Overdue `json:"overdue"`
}

// Get returns a complaint the actor may read
func (s *Service) Get(ctx context.Context, actor auth.Actor, id types.ID) (*domain.Complaint, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Reaches(auth.PermComplaintRead, c.AgencyID, types.Deref(c.AssignedTo)) {
		return nil, errors.Forbidden("complaint is outside your scope")
	}
	return c, nil
}

// View returns a complaint with its overdue state at threshold days
func (s *Service) View(ctx context.Context, actor auth.Actor, id types.ID, threshold int) (*ComplaintView, error) {
	threshold, err := s.threshold(threshold)
	if err != nil {
		return nil, err
	}
	c, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return &ComplaintView{Complaint: c, Overdue: c.Overdue(threshold, s.now())}, nil
}

// Track returns the public view of a complaint by tracking code
func (s *Service) Track(ctx context.Context, code string) (*domain.PublicView, error) {
	tc, err := types.ParseTrackingCode(code)
	if err != nil {
		return nil, errors.NotFound("complaint", strings.TrimSpace(code))
	}

	c, err := s.repo.GetByTrackingCode(ctx, tc)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.History(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	names, err := s.names(ctx, c, history)
	if err != nil {
		return nil, err
	}

	return &domain.PublicView{
		TrackingCode: c.TrackingCode,
		Subject:      c.Subject,
		Status:       c.Status,
		StatusName:   c.Status.DisplayName(),
		Agency:       names.Agency(c.AgencyID),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		Timeline:     domain.ProjectTimeline(c, history, names, domain.TimelinePublic),
	}, nil
}

// ListQuery filters a complaint listing
type ListQuery struct {
	AgencyID    *types.ID
	AssignedTo  *types.ID
	CategoryID  *types.ID
	Statuses    []domain.Status
	Search      string
	OverdueOnly bool
	Threshold   int
	Limit       int
	Offset      int
}

// ListResult is a page of complaints
type ListResult struct {
	Data      []ComplaintView `json:"data"`
	Total     int             `json:"total"`
	Limit     int             `json:"limit"`
	Offset    int             `json:"offset"`
	Threshold int             `json:"threshold"`
}

// List lists the complaints within the actor's read scope
func (s *Service) List(ctx context.Context, actor auth.Actor, q ListQuery) (*ListResult, error) {
	threshold, err := s.threshold(q.Threshold)
	if err != nil {
		return nil, err
	}

	filter, err := s.scopedFilter(actor, auth.PermComplaintRead, q)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if q.OverdueOnly {
		applyOverdue(&filter, threshold, now)
	}

	filter.Limit = q.Limit
	if filter.Limit <= 0 {
		filter.Limit = s.cfg.DefaultPageSize
	}
	if s.cfg.MaxPageSize > 0 && filter.Limit > s.cfg.MaxPageSize {
		filter.Limit = s.cfg.MaxPageSize
	}
	filter.Offset = max(q.Offset, 0)

	complaints, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	result := &ListResult{
		Data:      make([]ComplaintView, 0, len(complaints)),
		Total:     total,
		Limit:     filter.Limit,
		Offset:    filter.Offset,
		Threshold: threshold,
	}
	for _, c := range complaints {
		result.Data = append(result.Data, ComplaintView{Complaint: c, Overdue: c.Overdue(threshold, now)})
	}
	return result, nil
}

// Stats summarizes the complaints within the actor's stats scope
func (s *Service) Stats(ctx context.Context, actor auth.Actor, agencyID *types.ID, threshold int) (*domain.Summary, error) {
	threshold, err := s.threshold(threshold)
	if err != nil {
		return nil, err
	}

	filter, err := s.scopedFilter(actor, auth.PermComplaintStats, ListQuery{AgencyID: agencyID})
	if err != nil {
		return nil, err
	}

	samples, err := s.repo.StatSamples(ctx, filter)
	if err != nil {
		return nil, err
	}
	summary := domain.Summarize(samples, threshold, s.now())
	return &summary, nil
}

// History returns the raw history of a complaint
func (s *Service) History(ctx context.Context, actor auth.Actor, id types.ID) ([]domain.HistoryEntry, error) {
	c, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.repo.History(ctx, c.ID)
}

// Timeline returns the staff timeline of a complaint
func (s *Service) Timeline(ctx context.Context, actor auth.Actor, id types.ID) ([]domain.TimelineEntry, error) {
	c, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.History(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	names, err := s.names(ctx, c, history)
	if err != nil {
		return nil, err
	}
	return domain.ProjectTimeline(c, history, names, domain.TimelineInternal), nil
}

// scopedFilter narrows q to what perm lets the actor see
func (s *Service) scopedFilter(actor auth.Actor, perm auth.Permission, q ListQuery) (domain.ListFilter, error) {
	filter := domain.ListFilter{
		AgencyID:   q.AgencyID,
		AssignedTo: q.AssignedTo,
		CategoryID: q.CategoryID,
		Statuses:   q.Statuses,
		Search:     q.Search,
	}

	switch actor.Scope(perm) {
	case auth.ScopeAll:
	case auth.ScopeAgency:
		if q.AgencyID != nil && *q.AgencyID != actor.AgencyID {
			return filter, errors.Forbidden("agency is outside your scope")
		}
		filter.AgencyID = actor.AgencyID.Ptr()
	case auth.ScopeAssigned:
		if q.AgencyID != nil && *q.AgencyID != actor.AgencyID {
			return filter, errors.Forbidden("agency is outside your scope")
		}
		if q.AssignedTo != nil && *q.AssignedTo != actor.ID {
			return filter, errors.Forbidden("only your own complaints are visible")
		}
		filter.AgencyID = actor.AgencyID.Ptr()
		filter.AssignedTo = actor.ID.Ptr()
	default:
		return filter, errors.Forbidden("insufficient permissions")
	}
	return filter, nil
}

// applyOverdue restricts filter to open complaints past threshold
func applyOverdue(filter *domain.ListFilter, threshold int, now time.Time) {
	var open []domain.Status
	for _, st := range domain.Statuses {
		if st.IsOpen() && (len(filter.Statuses) == 0 || slices.Contains(filter.Statuses, st)) {
			open = append(open, st)
		}
	}
	if len(open) == 0 {
		// Only terminal statuses were requested; none can be overdue.
		open = []domain.Status{""}
	}
	filter.Statuses = open

	cutoff := domain.OverdueCutoff(threshold, now)
	filter.CreatedBefore = &cutoff
}

// threshold resolves a requested overdue threshold; zero means the default
func (s *Service) threshold(days int) (int, error) {
	if days == 0 {
		days = s.cfg.OverdueThresholdDays
		if days <= 0 {
			days = domain.DefaultOverdueThreshold
		}
		return days, nil
	}
	if len(s.cfg.AllowedThresholds) > 0 && !s.cfg.IsAllowedThreshold(days) {
		allowed := make([]string, len(s.cfg.AllowedThresholds))
		for i, t := range s.cfg.AllowedThresholds {
			allowed[i] = strconv.Itoa(t)
		}
		return 0, errors.Validation("unsupported overdue threshold",
			map[string]string{"threshold": "must be one of " + strings.Join(allowed, ", ")})
	}
	if days < 0 {
		return 0, errors.Validation("unsupported overdue threshold", map[string]string{"threshold": "must be positive"})
	}
	return days, nil
}

// names resolves the agencies and users a timeline mentions
func (s *Service) names(ctx context.Context, c *domain.Complaint, history []domain.HistoryEntry) (domain.Names, error) {
	agencyIDs, userIDs := domain.ReferencedIDs(history)
	if !slices.Contains(agencyIDs, c.AgencyID) {
		agencyIDs = append(agencyIDs, c.AgencyID)
	}

	names := domain.Names{
		Agencies: make(map[types.ID]domain.AgencyRef, len(agencyIDs)),
		Users:    make(map[types.ID]domain.UserRef, len(userIDs)),
	}

	agencies, err := s.directory.AgenciesByIDs(ctx, agencyIDs)
	if err != nil {
		return names, err
	}
	for _, a := range agencies {
		names.Agencies[a.ID] = domain.AgencyRef{ID: a.ID, Name: a.Name, Acronym: a.Acronym}
	}

	staff, err := s.directory.StaffByIDs(ctx, userIDs)
	if err != nil {
		return names, err
	}
	for _, u := range staff {
		names.Users[u.ID] = domain.UserRef{ID: u.ID, Name: u.Name}
	}
	return names, nil
}

// --- Transitions ---

// Assign assigns a complaint to a staff member of its agency. A positive
// expectedVersion must match the stored version.
func (s *Service) Assign(ctx context.Context, actor auth.Actor, id, staffID types.ID, expectedVersion int) (*domain.Complaint, error) {
	return s.transition(ctx, actor, id, expectedVersion, domain.ActionAssign, func(c *domain.Complaint) error {
		target := domain.StaffTarget{ID: staffID}
		staff, err := s.directory.GetStaff(ctx, staffID)
		switch {
		case err == nil:
			target.AgencyID = types.Deref(staff.AgencyID)
			target.Active = staff.Active && staff.Role != auth.RoleSuperAdmin
		case !errors.Is(err, errors.ErrNotFound):
			return err
		}
		// Unknown staff stay an inactive target so the validator reports
		// lifecycle and permission failures first.
		_, err = c.Assign(actor, target, s.now())
		return err
	})
}

// UpdateStatus moves a complaint to status, recording metadata as the note
func (s *Service) UpdateStatus(ctx context.Context, actor auth.Actor, id types.ID, status domain.Status, metadata string, expectedVersion int) (*domain.Complaint, error) {
	return s.transition(ctx, actor, id, expectedVersion, domain.ActionUpdateStatus, func(c *domain.Complaint) error {
		_, err := c.UpdateStatus(actor, status, metadata, s.now())
		return err
	})
}

// Transfer moves a complaint to another agency
func (s *Service) Transfer(ctx context.Context, actor auth.Actor, id, agencyID types.ID, reason string, expectedVersion int) (*domain.Complaint, error) {
	return s.transition(ctx, actor, id, expectedVersion, domain.ActionTransfer, func(c *domain.Complaint) error {
		target := domain.AgencyTarget{ID: agencyID}
		a, err := s.directory.GetAgency(ctx, agencyID)
		switch {
		case err == nil:
			target.Active = a.Active
		case !errors.Is(err, errors.ErrNotFound):
			return err
		}
		_, err = c.Transfer(actor, target, reason, s.now())
		return err
	})
}

func (s *Service) transition(ctx context.Context, actor auth.Actor, id types.ID, expectedVersion int, action domain.Action, apply func(*domain.Complaint) error) (*domain.Complaint, error) {
	c, err := s.transitionTarget(ctx, id, expectedVersion)
	if err == nil {
		err = apply(c)
	}
	if err == nil {
		entries := slices.Clone(c.Uncommitted())
		if err = s.repo.Update(ctx, c); err == nil {
			s.publish(ctx, c, entries, "staff", actor.AgencyID)
			for _, e := range entries {
				metrics.RecordTransition(string(action), string(e.Action()))
			}
			return c, nil
		}
	}

	metrics.RecordTransitionRejected(string(action), errors.As(err).Code)
	return nil, err
}

// transitionTarget loads a complaint for a change. Permission and scope are
// checked by the transition rules.
func (s *Service) transitionTarget(ctx context.Context, id types.ID, expectedVersion int) (*domain.Complaint, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if expectedVersion > 0 && c.Version != expectedVersion {
		return nil, errors.Conflict("complaint was modified since version " + strconv.Itoa(expectedVersion))
	}
	return c, nil
}

func (s *Service) publish(ctx context.Context, c *domain.Complaint, entries []domain.HistoryEntry, actorType string, actorAgency types.ID) {
	if s.bus == nil {
		return
	}
	for _, entry := range entries {
		event := events.NewEvent(domain.EventType(entry.Action()), domain.EventSource, domain.NewComplaintEvent(c, entry)).
			WithActor(entry.ActorID, actorType, actorAgency).
			WithAggregate(c.ID).
			WithCorrelation(middleware.GetReqID(ctx))

		if err := s.bus.Publish(ctx, event); err != nil {
			log.Printf("complaint %s: failed to publish %s: %v", c.ID, event.Type, err)
		}
	}
}
