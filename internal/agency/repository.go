package agency

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civic-complaints/platform/internal/auth"
	"github.com/civic-complaints/platform/internal/shared/database"
	"github.com/civic-complaints/platform/internal/shared/errors"
	"github.com/civic-complaints/platform/internal/shared/types"
)

// Store is the read side of the agency directory
type Store interface {
	ListAgencies(ctx context.Context, activeOnly bool) ([]Agency, error)
	GetAgency(ctx context.Context, id types.ID) (*Agency, error)
	AgenciesByIDs(ctx context.Context, ids []types.ID) ([]Agency, error)
	ListCategories(ctx context.Context, activeOnly bool) ([]Category, error)
	GetStaff(ctx context.Context, id types.ID) (*Staff, error)
	StaffByIDs(ctx context.Context, ids []types.ID) ([]Staff, error)
	ListStaff(ctx context.Context, filter ListStaffFilter) ([]Staff, int, error)
}

var _ Store = (*Repository)(nil)

// Repository provides database operations for agencies, staff and categories
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new agency repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const agencyColumns = `id, name, acronym, description, logo_url, is_active, created_at, updated_at`

// --- Agency Operations ---

// ListAgencies lists agencies ordered by name
func (r *Repository) ListAgencies(ctx context.Context, activeOnly bool) ([]Agency, error) {
	query := `SELECT ` + agencyColumns + ` FROM agencies`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list agencies")
	}
	return collectAgencies(rows)
}

// GetAgency retrieves an agency by ID
func (r *Repository) GetAgency(ctx context.Context, id types.ID) (*Agency, error) {
	query := `SELECT ` + agencyColumns + ` FROM agencies WHERE id = $1`

	a := &Agency{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.Name, &a.Acronym, &a.Description, &a.LogoURL, &a.Active, &a.CreatedAt, &a.UpdatedAt,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("agency", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get agency")
	}
	return a, nil
}

// AgenciesByIDs retrieves the agencies among ids that exist
func (r *Repository) AgenciesByIDs(ctx context.Context, ids []types.ID) ([]Agency, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+agencyColumns+` FROM agencies WHERE id = ANY($1::uuid[])`, idStrings(ids))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get agencies")
	}
	return collectAgencies(rows)
}

func collectAgencies(rows pgx.Rows) ([]Agency, error) {
	defer rows.Close()

	var agencies []Agency
	for rows.Next() {
		var a Agency
		if err := rows.Scan(
			&a.ID, &a.Name, &a.Acronym, &a.Description, &a.LogoURL, &a.Active, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan agency")
		}
		agencies = append(agencies, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read agencies")
	}
	return agencies, nil
}

// --- Category Operations ---

// ListCategories lists categories ordered by name
func (r *Repository) ListCategories(ctx context.Context, activeOnly bool) ([]Category, error) {
	query := `SELECT id, name, description, agency_id, is_active, created_at FROM categories`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list categories")
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.AgencyID, &c.Active, &c.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan category")
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read categories")
	}
	return categories, nil
}

// --- Staff Operations ---

const staffColumns = `id, name, email, role, agency_id, permissions, is_active, created_at`

// GetStaff retrieves a user by ID
func (r *Repository) GetStaff(ctx context.Context, id types.ID) (*Staff, error) {
	s, err := scanStaff(r.pool.QueryRow(ctx, `SELECT `+staffColumns+` FROM users WHERE id = $1`, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("staff", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get staff")
	}
	return s, nil
}

// StaffByIDs retrieves the users among ids that exist
func (r *Repository) StaffByIDs(ctx context.Context, ids []types.ID) ([]Staff, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+staffColumns+` FROM users WHERE id = ANY($1::uuid[])`, idStrings(ids))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get staff")
	}
	defer rows.Close()

	var staff []Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan staff")
		}
		staff = append(staff, *s)
	}
	return staff, rows.Err()
}

// ListStaff lists the users of an agency
func (r *Repository) ListStaff(ctx context.Context, filter ListStaffFilter) ([]Staff, int, error) {
	conditions := []string{"agency_id = $1"}
	args := []any{filter.AgencyID}
	argNum := 2

	if !filter.IncludeInactive {
		conditions = append(conditions, "is_active")
	}
	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", argNum))
		args = append(args, string(*filter.Role))
		argNum++
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d)", argNum, argNum))
		args = append(args, database.ContainsPattern(filter.Search))
		argNum++
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM users "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count staff")
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	query := fmt.Sprintf(`SELECT %s FROM users %s ORDER BY name LIMIT $%d OFFSET $%d`,
		staffColumns, whereClause, argNum, argNum+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list staff")
	}
	defer rows.Close()

	var staff []Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan staff")
		}
		staff = append(staff, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "failed to list staff")
	}

	return staff, total, nil
}

func scanStaff(row pgx.Row) (*Staff, error) {
	s := &Staff{}
	var role string
	var permissions []string
	if err := row.Scan(&s.ID, &s.Name, &s.Email, &role, &s.AgencyID, &permissions, &s.Active, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Role = auth.Role(role)
	s.Permissions = make([]auth.Permission, len(permissions))
	for i, p := range permissions {
		s.Permissions[i] = auth.Permission(p)
	}
	return s, nil
}

func idStrings(ids []types.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
