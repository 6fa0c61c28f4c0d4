package agency

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	authz "github.com/civic-complaints/platform/internal/auth"
	"github.com/civic-complaints/platform/internal/shared/auth"
	"github.com/civic-complaints/platform/internal/shared/errors"
	"github.com/civic-complaints/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the agency directory
type Handler struct {
	store        Store
	authenticate func(http.Handler) http.Handler
}

// NewHandler creates a new agency handler. authenticate guards the staff
// listing; the agency and category lists are public.
func NewHandler(store Store, authenticate func(http.Handler) http.Handler) *Handler {
	return &Handler{store: store, authenticate: authenticate}
}

// Routes registers the agency routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/categories", h.ListCategories)

	r.Route("/agencies", func(r chi.Router) {
		r.Get("/", h.ListAgencies)

		r.Route("/{agencyID}", func(r chi.Router) {
			r.Get("/", h.GetAgency)

			r.With(h.authenticate, auth.RequirePermissions(authz.PermStaffRead)).
				Get("/staff", h.ListStaff)
		})
	})

	return r
}

// ListAgencies lists active agencies
func (h *Handler) ListAgencies(w http.ResponseWriter, r *http.Request) {
	agencies, err := h.store.ListAgencies(r.Context(), true)
	if err != nil {
		writeError(w, err)
		return
	}
	if agencies == nil {
		agencies = []Agency{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  agencies,
		"total": len(agencies),
	})
}

// GetAgency gets an agency by ID
func (h *Handler) GetAgency(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "agencyID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid agency ID"))
		return
	}

	agency, err := h.store.GetAgency(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, agency)
}

// ListCategories lists the categories a citizen may choose from
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.ListCategories(r.Context(), true)
	if err != nil {
		writeError(w, err)
		return
	}
	if categories == nil {
		categories = []Category{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  categories,
		"total": len(categories),
	})
}

// ListStaff lists the staff of an agency. Only actors whose staff:read
// scope covers the agency may see it.
func (h *Handler) ListStaff(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "agencyID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid agency ID"))
		return
	}

	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}
	if !user.Actor().Reaches(authz.PermStaffRead, id, types.ID("")) {
		writeError(w, errors.Forbidden("cannot list staff of another agency"))
		return
	}

	filter := ListStaffFilter{
		AgencyID: id,
		Search:   r.URL.Query().Get("search"),
	}
	if role := r.URL.Query().Get("role"); role != "" {
		parsed, err := authz.ParseRole(role)
		if err != nil {
			writeError(w, errors.Validation("invalid role", map[string]string{"role": role}))
			return
		}
		filter.Role = &parsed
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && offset > 0 {
		filter.Offset = offset
	}

	staff, total, err := h.store.ListStaff(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if staff == nil {
		staff = []Staff{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  staff,
		"total": total,
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	appErr := errors.As(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		log.Printf("agency: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.HTTPStatus)
	json.NewEncoder(w).Encode(map[string]any{
		"error":   appErr.Message,
		"code":    appErr.Code,
		"details": appErr.Details,
	})
}
