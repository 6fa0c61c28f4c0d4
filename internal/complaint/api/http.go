package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	authz "github.com/civic-complaints/platform/internal/auth"
	"github.com/civic-complaints/platform/internal/complaint/app"
	"github.com/civic-complaints/platform/internal/complaint/domain"
	"github.com/civic-complaints/platform/internal/shared/auth"
	"github.com/civic-complaints/platform/internal/shared/errors"
	"github.com/civic-complaints/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the complaint module
type Handler struct {
	svc          *app.Service
	authenticate func(http.Handler) http.Handler
	limit        func(http.Handler) http.Handler
}

// NewHandler creates a new complaint handler. authenticate guards staff
// endpoints; limit, if not nil, throttles the anonymous ones.
func NewHandler(svc *app.Service, authenticate, limit func(http.Handler) http.Handler) *Handler {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{svc: svc, authenticate: authenticate, limit: limit}
}

// Routes registers the complaint routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(h.limit).Post("/", h.Submit)

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)
		r.Use(auth.RequirePermissions(authz.PermComplaintRead))

		r.Get("/", h.List)
		r.With(auth.RequirePermissions(authz.PermComplaintStats)).Get("/stats", h.Stats)

		r.Route("/{complaintID}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Get("/history", h.History)
			r.Get("/timeline", h.Timeline)

			// Lifecycle transitions
			r.Post("/assign", h.Assign)
			r.Patch("/status", h.UpdateStatus)
			r.Post("/transfer", h.Transfer)
		})
	})

	return r
}

// RegisterPublic registers the anonymous tracking and routing endpoints on r
func (h *Handler) RegisterPublic(r chi.Router) {
	r.With(h.limit).Get("/track/{code}", h.Track)
	r.With(h.limit).Post("/classify", h.Classify)
}

// --- Request/Response types ---

type SubmitRequest struct {
	Description  string    `json:"description"`
	CitizenName  string    `json:"citizen_name"`
	CitizenEmail string    `json:"citizen_email"`
	Subject      string    `json:"subject,omitempty"`
	CategoryID   *types.ID `json:"category_id,omitempty"`
}

type SubmitResponse struct {
	ID           types.ID           `json:"id"`
	TrackingCode types.TrackingCode `json:"tracking_code"`
	Subject      string             `json:"subject"`
	Status       domain.Status      `json:"status"`
	CategoryID   types.ID           `json:"category_id"`
	AgencyID     types.ID           `json:"agency_id"`
	CreatedAt    time.Time          `json:"created_at"`
}

type ClassifyRequest struct {
	Description string `json:"description"`
}

type AssignRequest struct {
	StaffID         types.ID `json:"staff_id"`
	ExpectedVersion int      `json:"expected_version,omitempty"`
}

type UpdateStatusRequest struct {
	Status          string `json:"status"`
	Metadata        string `json:"metadata,omitempty"`
	ExpectedVersion int    `json:"expected_version,omitempty"`
}

type TransferRequest struct {
	TargetAgencyID  types.ID `json:"target_agency_id"`
	Reason          string   `json:"reason"`
	ExpectedVersion int      `json:"expected_version,omitempty"`
}

// --- Public handlers ---

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	c, err := h.svc.Submit(r.Context(), app.SubmitInput(req))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/track/"+c.TrackingCode.String())
	writeJSON(w, http.StatusCreated, SubmitResponse{
		ID:           c.ID,
		TrackingCode: c.TrackingCode,
		Subject:      c.Subject,
		Status:       c.Status,
		CategoryID:   c.CategoryID,
		AgencyID:     c.AgencyID,
		CreatedAt:    c.CreatedAt,
	})
}

func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Track(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	route, err := h.svc.Classify(r.Context(), req.Description)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, route)
}

// --- Staff handlers ---

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.svc.List(r.Context(), actor(r), q)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	agencyID, err := optionalID(query.Get("agency_id"), "agency_id")
	if err != nil {
		writeError(w, err)
		return
	}
	threshold, err := optionalInt(query.Get("threshold"), "threshold")
	if err != nil {
		writeError(w, err)
		return
	}

	summary, err := h.svc.Stats(r.Context(), actor(r), agencyID, threshold)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "complaintID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid complaint ID"))
		return
	}
	threshold, err := optionalInt(r.URL.Query().Get("threshold"), "threshold")
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := h.svc.View(r.Context(), actor(r), id, threshold)
	if err != nil {
		writeError(w, err)
		return
	}

	setETag(w, view.Complaint)
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "complaintID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid complaint ID"))
		return
	}

	history, err := h.svc.History(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if history == nil {
		history = []domain.HistoryEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  history,
		"total": len(history),
	})
}

func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "complaintID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid complaint ID"))
		return
	}

	timeline, err := h.svc.Timeline(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  timeline,
		"total": len(timeline),
	})
}

func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "complaintID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid complaint ID"))
		return
	}

	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if req.StaffID.IsZero() {
		writeError(w, errors.Validation("validation failed", map[string]string{"staff_id": "required"}))
		return
	}

	version, err := expectedVersion(r, req.ExpectedVersion)
	if err != nil {
		writeError(w, err)
		return
	}

	c, err := h.svc.Assign(r.Context(), actor(r), id, req.StaffID, version)
	if err != nil {
		writeError(w, err)
		return
	}

	setETag(w, c)
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "complaintID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid complaint ID"))
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		writeError(w, err)
		return
	}

	version, err := expectedVersion(r, req.ExpectedVersion)
	if err != nil {
		writeError(w, err)
		return
	}

	c, err := h.svc.UpdateStatus(r.Context(), actor(r), id, status, req.Metadata, version)
	if err != nil {
		writeError(w, err)
		return
	}

	setETag(w, c)
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "complaintID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid complaint ID"))
		return
	}

	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if req.TargetAgencyID.IsZero() {
		writeError(w, errors.Validation("validation failed", map[string]string{"target_agency_id": "required"}))
		return
	}

	version, err := expectedVersion(r, req.ExpectedVersion)
	if err != nil {
		writeError(w, err)
		return
	}

	c, err := h.svc.Transfer(r.Context(), actor(r), id, req.TargetAgencyID, req.Reason, version)
	if err != nil {
		writeError(w, err)
		return
	}

	setETag(w, c)
	writeJSON(w, http.StatusOK, c)
}

// --- Helpers ---

func actor(r *http.Request) authz.Actor {
	if user := auth.GetUser(r.Context()); user != nil {
		return user.Actor()
	}
	return authz.Actor{}
}

func parseListQuery(r *http.Request) (app.ListQuery, error) {
	query := r.URL.Query()
	q := app.ListQuery{Search: strings.TrimSpace(query.Get("search"))}

	var err error
	if q.AgencyID, err = optionalID(query.Get("agency_id"), "agency_id"); err != nil {
		return q, err
	}
	if q.AssignedTo, err = optionalID(query.Get("assigned_to"), "assigned_to"); err != nil {
		return q, err
	}
	if q.CategoryID, err = optionalID(query.Get("category_id"), "category_id"); err != nil {
		return q, err
	}
	if q.Threshold, err = optionalInt(query.Get("threshold"), "threshold"); err != nil {
		return q, err
	}
	if q.Limit, err = optionalInt(query.Get("limit"), "limit"); err != nil {
		return q, err
	}
	if q.Offset, err = optionalInt(query.Get("offset"), "offset"); err != nil {
		return q, err
	}

	if raw := query.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status, err := domain.ParseStatus(s)
			if err != nil {
				return q, err
			}
			q.Statuses = append(q.Statuses, status)
		}
	}

	if raw := query.Get("overdue"); raw != "" {
		overdue, err := strconv.ParseBool(raw)
		if err != nil {
			return q, errors.Validation("invalid query", map[string]string{"overdue": "must be true or false"})
		}
		q.OverdueOnly = overdue
	}

	return q, nil
}

func optionalID(raw, field string) (*types.ID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := types.ParseID(raw)
	if err != nil {
		return nil, errors.Validation("invalid query", map[string]string{field: "must be a UUID"})
	}
	return &id, nil
}

func optionalInt(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Validation("invalid query", map[string]string{field: "must be a number"})
	}
	return n, nil
}

// expectedVersion reads the version a change is based on from If-Match,
// falling back to the request body. Zero means unconditional.
func expectedVersion(r *http.Request, bodyVersion int) (int, error) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" || raw == "*" {
		return bodyVersion, nil
	}
	raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, errors.BadRequest("invalid If-Match header")
	}
	return v, nil
}

func setETag(w http.ResponseWriter, c *domain.Complaint) {
	w.Header().Set("ETag", `"`+strconv.Itoa(c.Version)+`"`)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	appErr := errors.As(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		log.Printf("complaint: %v", err)
	}
	if appErr.HTTPStatus == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="complaints"`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.HTTPStatus)
	json.NewEncoder(w).Encode(map[string]any{
		"error":   appErr.Message,
		"code":    appErr.Code,
		"details": appErr.Details,
	})
}
