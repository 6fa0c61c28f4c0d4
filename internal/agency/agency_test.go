package agency

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	authz "github.com/civic-complaints/platform/internal/auth"
	"github.com/civic-complaints/platform/internal/shared/auth"
	"github.com/civic-complaints/platform/internal/shared/config"
	"github.com/civic-complaints/platform/internal/shared/errors"
	"github.com/civic-complaints/platform/internal/shared/types"
)

// memoryStore is an in-memory Store for handler tests
type memoryStore struct {
	agencies   []Agency
	categories []Category
	staff      []Staff
}

func (m *memoryStore) ListAgencies(ctx context.Context, activeOnly bool) ([]Agency, error) {
	var out []Agency
	for _, a := range m.agencies {
		if a.Active || !activeOnly {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memoryStore) GetAgency(ctx context.Context, id types.ID) (*Agency, error) {
	for _, a := range m.agencies {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, errors.NotFound("agency", id.String())
}

func (m *memoryStore) AgenciesByIDs(ctx context.Context, ids []types.ID) ([]Agency, error) {
	var out []Agency
	for _, id := range ids {
		if a, err := m.GetAgency(ctx, id); err == nil {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memoryStore) ListCategories(ctx context.Context, activeOnly bool) ([]Category, error) {
	var out []Category
	for _, c := range m.categories {
		if c.Active || !activeOnly {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memoryStore) GetStaff(ctx context.Context, id types.ID) (*Staff, error) {
	for _, s := range m.staff {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, errors.NotFound("staff", id.String())
}

func (m *memoryStore) StaffByIDs(ctx context.Context, ids []types.ID) ([]Staff, error) {
	var out []Staff
	for _, id := range ids {
		if s, err := m.GetStaff(ctx, id); err == nil {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memoryStore) ListStaff(ctx context.Context, filter ListStaffFilter) ([]Staff, int, error) {
	var out []Staff
	for _, s := range m.staff {
		if s.AgencyID == nil || *s.AgencyID != filter.AgencyID {
			continue
		}
		if !s.Active && !filter.IncludeInactive {
			continue
		}
		if filter.Role != nil && s.Role != *filter.Role {
			continue
		}
		out = append(out, s)
	}
	return out, len(out), nil
}

var (
	roadsID = types.NewID()
	parksID = types.NewID()
)

func newTestStore() *memoryStore {
	return &memoryStore{
		agencies: []Agency{
			{ID: roadsID, Name: "Roads Department", Acronym: "RD", Active: true},
			{ID: parksID, Name: "Parks Department", Acronym: "PD", Active: true},
			{ID: types.NewID(), Name: "Former Department", Acronym: "FD", Active: false},
		},
		categories: []Category{
			{ID: types.NewID(), Name: "Roads", AgencyID: roadsID, Active: true},
			{ID: types.NewID(), Name: "Parks", AgencyID: parksID, Active: true},
		},
		staff: []Staff{
			{ID: types.NewID(), Name: "Sara Staff", Role: authz.RoleStaff, AgencyID: &roadsID, Active: true},
			{ID: types.NewID(), Name: "Ada Admin", Role: authz.RoleAgencyAdmin, AgencyID: &roadsID, Active: true},
			{ID: types.NewID(), Name: "Old Staff", Role: authz.RoleStaff, AgencyID: &roadsID, Active: false},
			{ID: types.NewID(), Name: "Pat Parks", Role: authz.RoleStaff, AgencyID: &parksID, Active: true},
		},
	}
}

// asUser authenticates every request as user
func asUser(user *auth.User) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
		})
	}
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON response: %s", rec.Body.String())
	}
	return rec, body
}

func TestStaffBelongsTo(t *testing.T) {
	agency := types.NewID()

	tests := []struct {
		name     string
		staff    Staff
		expected bool
	}{
		{"active member", Staff{AgencyID: &agency, Active: true}, true},
		{"inactive member", Staff{AgencyID: &agency, Active: false}, false},
		{"other agency", Staff{AgencyID: &parksID, Active: true}, false},
		{"no agency", Staff{Active: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.staff.BelongsTo(agency); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestListAgencies_ActiveOnly(t *testing.T) {
	h := NewHandler(newTestStore(), asUser(nil)).Routes()

	rec, body := get(t, h, "/agencies")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body["total"] != float64(2) {
		t.Errorf("Expected 2 active agencies, got %v", body["total"])
	}
}

func TestListCategories(t *testing.T) {
	h := NewHandler(newTestStore(), asUser(nil)).Routes()

	rec, body := get(t, h, "/categories")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if len(body["data"].([]any)) != 2 {
		t.Errorf("Expected 2 categories, got %v", body["data"])
	}
}

func TestGetAgency(t *testing.T) {
	h := NewHandler(newTestStore(), asUser(nil)).Routes()

	rec, body := get(t, h, "/agencies/"+roadsID.String())
	if rec.Code != http.StatusOK || body["acronym"] != "RD" {
		t.Errorf("Unexpected response %d: %v", rec.Code, body)
	}

	rec, body = get(t, h, "/agencies/not-a-uuid")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}

	rec, body = get(t, h, "/agencies/"+types.NewID().String())
	if rec.Code != http.StatusNotFound || body["code"] != "NOT_FOUND" {
		t.Errorf("Unexpected response %d: %v", rec.Code, body)
	}
}

func TestListStaff_Scope(t *testing.T) {
	tests := []struct {
		name     string
		user     *auth.User
		agency   types.ID
		expected int
	}{
		{"own agency admin", &auth.User{ID: types.NewID(), Role: authz.RoleAgencyAdmin, AgencyID: roadsID}, roadsID, http.StatusOK},
		{"other agency admin", &auth.User{ID: types.NewID(), Role: authz.RoleAgencyAdmin, AgencyID: parksID}, roadsID, http.StatusForbidden},
		{"super admin", &auth.User{ID: types.NewID(), Role: authz.RoleSuperAdmin}, roadsID, http.StatusOK},
		{"staff without grant", &auth.User{ID: types.NewID(), Role: authz.RoleStaff, AgencyID: roadsID}, roadsID, http.StatusForbidden},
		{"staff with grant", &auth.User{ID: types.NewID(), Role: authz.RoleStaff, AgencyID: roadsID, Permissions: []authz.Permission{authz.PermStaffRead}}, roadsID, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(newTestStore(), asUser(tt.user)).Routes()

			rec, _ := get(t, h, "/agencies/"+tt.agency.String()+"/staff")
			if rec.Code != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, rec.Code)
			}
		})
	}
}

func TestListStaff_ActiveMembersOnly(t *testing.T) {
	admin := &auth.User{ID: types.NewID(), Role: authz.RoleAgencyAdmin, AgencyID: roadsID}
	h := NewHandler(newTestStore(), asUser(admin)).Routes()

	_, body := get(t, h, "/agencies/"+roadsID.String()+"/staff")
	if body["total"] != float64(2) {
		t.Errorf("Expected 2 active staff, got %v", body["total"])
	}

	_, body = get(t, h, "/agencies/"+roadsID.String()+"/staff?role=staff")
	if body["total"] != float64(1) {
		t.Errorf("Expected 1 STAFF user, got %v", body["total"])
	}

	rec, _ := get(t, h, "/agencies/"+roadsID.String()+"/staff?role=janitor")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestListStaff_RequiresToken(t *testing.T) {
	cfg := config.AuthConfig{JWTSecret: "test-secret"}
	h := NewHandler(newTestStore(), auth.Middleware(cfg)).Routes()

	rec, body := get(t, h, "/agencies/"+roadsID.String()+"/staff")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", rec.Code)
	}
	if body["code"] != "UNAUTHORIZED" || rec.Header().Get("WWW-Authenticate") == "" {
		t.Errorf("Unexpected 401 response: %v", body)
	}

	token, err := auth.NewToken(cfg, &auth.User{ID: types.NewID(), Role: authz.RoleAgencyAdmin, AgencyID: roadsID}, time.Hour)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/agencies/"+roadsID.String()+"/staff", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with token, got %d: %s", rec.Code, rec.Body.String())
	}
}
