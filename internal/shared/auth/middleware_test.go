package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authz "github.com/civic-complaints/platform/internal/auth"
	"github.com/civic-complaints/platform/internal/shared/config"
	"github.com/civic-complaints/platform/internal/shared/types"
)

var testAuthConfig = config.AuthConfig{JWTSecret: "test-secret", Issuer: "complaints-test"}

func protectedHandler() http.Handler {
	return Middleware(testAuthConfig)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetUser(r.Context())
		if user == nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(user.Role))
	}))
}

func TestMiddleware_ValidToken(t *testing.T) {
	user := &User{ID: types.NewID(), Name: "Ana", Role: authz.RoleAgencyAdmin, AgencyID: types.NewID()}
	token, err := NewToken(testAuthConfig, user, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protectedHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AGENCY_ADMIN", rec.Body.String())
}

func TestMiddleware_Rejections(t *testing.T) {
	agencyID := types.NewID()
	expired, err := NewToken(testAuthConfig, &User{ID: types.NewID(), Role: authz.RoleStaff, AgencyID: agencyID}, -time.Minute)
	require.NoError(t, err)
	wrongSecret, err := NewToken(config.AuthConfig{JWTSecret: "other", Issuer: testAuthConfig.Issuer},
		&User{ID: types.NewID(), Role: authz.RoleStaff, AgencyID: agencyID}, time.Hour)
	require.NoError(t, err)
	noAgency, err := NewToken(testAuthConfig, &User{ID: types.NewID(), Role: authz.RoleStaff}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"garbage token", "Bearer not-a-jwt"},
		{"expired", "Bearer " + expired},
		{"wrong secret", "Bearer " + wrongSecret},
		{"staff without agency", "Bearer " + noAgency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			protectedHandler().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
			assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
		})
	}
}

func TestRequirePermissions(t *testing.T) {
	handler := RequirePermissions(authz.PermStaffRead)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	agencyID := types.NewID()
	staff := &User{ID: types.NewID(), Role: authz.RoleStaff, AgencyID: agencyID}
	admin := &User{ID: types.NewID(), Role: authz.RoleAgencyAdmin, AgencyID: agencyID}

	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(WithUser(context.Background(), staff))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil).WithContext(WithUser(context.Background(), admin))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
