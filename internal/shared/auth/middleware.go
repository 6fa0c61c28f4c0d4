package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	authz "github.com/civic-complaints/platform/internal/auth"
	"github.com/civic-complaints/platform/internal/shared/config"
	"github.com/civic-complaints/platform/internal/shared/types"
)

type contextKey string

const (
	UserContextKey contextKey = "user"
)

// User represents the authenticated user from JWT claims
type User struct {
	ID          types.ID           `json:"sub"`
	Name        string             `json:"name"`
	Email       string             `json:"email"`
	Role        authz.Role         `json:"role"`
	AgencyID    types.ID           `json:"agency_id"`
	Permissions []authz.Permission `json:"permissions"`
}

// Claims extends JWT claims with platform-specific data
type Claims struct {
	jwt.RegisteredClaims
	Name        string   `json:"name,omitempty"`
	Email       string   `json:"email,omitempty"`
	Role        string   `json:"role"`
	AgencyID    string   `json:"agency_id,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Middleware creates JWT authentication middleware. Every failure is a 401
// with a WWW-Authenticate challenge so clients tear down their session.
func Middleware(cfg config.AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				writeUnauthorized(w, "invalid authorization header format")
				return
			}

			user, err := ParseToken(cfg, parts[1])
			if err != nil {
				writeUnauthorized(w, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// ParseToken validates a bearer token and builds the user it describes.
func ParseToken(cfg config.AuthConfig, tokenString string) (*User, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil {
		return nil, errInvalidToken("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errInvalidToken("invalid token claims")
	}

	id, err := types.ParseID(claims.Subject)
	if err != nil {
		return nil, errInvalidToken("invalid subject claim")
	}
	role, err := authz.ParseRole(claims.Role)
	if err != nil {
		return nil, errInvalidToken("invalid role claim")
	}

	user := &User{
		ID:    id,
		Name:  claims.Name,
		Email: claims.Email,
		Role:  role,
	}
	if claims.AgencyID != "" {
		agencyID, err := types.ParseID(claims.AgencyID)
		if err != nil {
			return nil, errInvalidToken("invalid agency claim")
		}
		user.AgencyID = agencyID
	}
	for _, p := range claims.Permissions {
		user.Permissions = append(user.Permissions, authz.Permission(p))
	}

	if err := user.Actor().Validate(); err != nil {
		return nil, errInvalidToken("invalid token claims")
	}
	return user, nil
}

// NewToken signs a token for user. Used by tooling and tests; production
// tokens come from the identity provider.
func NewToken(cfg config.AuthConfig, user *User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name:     user.Name,
		Email:    user.Email,
		Role:     string(user.Role),
		AgencyID: user.AgencyID.String(),
	}
	for _, p := range user.Permissions {
		claims.Permissions = append(claims.Permissions, string(p))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
}

// WithUser returns a context carrying user.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// GetUser extracts the user from request context
func GetUser(ctx context.Context) *User {
	user, ok := ctx.Value(UserContextKey).(*User)
	if !ok {
		return nil
	}
	return user
}

// RequirePermissions creates middleware that requires specific permissions
func RequirePermissions(permissions ...authz.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r.Context())
			if user == nil {
				writeUnauthorized(w, "authentication required")
				return
			}

			actor := user.Actor()
			for _, required := range permissions {
				if !actor.Can(required) {
					writeError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Actor converts the user into the actor complaint operations run as.
func (u *User) Actor() authz.Actor {
	return authz.Actor{
		ID:       u.ID,
		Name:     u.Name,
		Role:     u.Role,
		AgencyID: u.AgencyID,
		Grants:   u.Permissions,
	}
}

type tokenError string

func (e tokenError) Error() string { return string(e) }

func errInvalidToken(msg string) error { return tokenError(msg) }

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="complaints"`)
	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}
