package infrastructure

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civic-complaints/platform/internal/complaint/domain"
	"github.com/civic-complaints/platform/internal/shared/database"
	"github.com/civic-complaints/platform/internal/shared/errors"
	"github.com/civic-complaints/platform/internal/shared/metrics"
	"github.com/civic-complaints/platform/internal/shared/types"
)

const complaintColumns = `id, tracking_code, subject, description, citizen_name, citizen_email,
			category_id, agency_id, status, assigned_to, version, history_seq,
			created_at, updated_at`

// PostgresRepository implements domain.Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create saves a new complaint together with its SUBMITTED entry
func (r *PostgresRepository) Create(ctx context.Context, c *domain.Complaint) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("complaints_insert", time.Since(start)) }()

	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			INSERT INTO complaints (` + complaintColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

		_, err := tx.Exec(ctx, query,
			c.ID, c.TrackingCode, c.Subject, c.Description, c.CitizenName, c.CitizenEmail,
			c.CategoryID, c.AgencyID, c.Status, c.AssignedTo, c.Version, c.HistorySeq,
			c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			if strings.Contains(err.Error(), "duplicate key") && strings.Contains(err.Error(), "tracking_code") {
				return domain.ErrTrackingCodeTaken
			}
			if strings.Contains(err.Error(), "duplicate key") {
				return errors.Conflict("complaint already exists")
			}
			return errors.Wrap(err, "failed to save complaint")
		}

		return insertHistory(ctx, tx, c.Uncommitted())
	})
	if err != nil {
		return err
	}

	c.MarkCommitted()
	return nil
}

// Update stores the complaint if nobody changed it since it was loaded, and
// appends its uncommitted history in the same transaction.
func (r *PostgresRepository) Update(ctx context.Context, c *domain.Complaint) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("complaints_update", time.Since(start)) }()

	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			UPDATE complaints SET
				subject = $3, status = $4, agency_id = $5, assigned_to = $6,
				history_seq = $7, updated_at = $8, version = version + 1
			WHERE id = $1 AND version = $2`

		result, err := tx.Exec(ctx, query,
			c.ID, c.Version, c.Subject, c.Status, c.AgencyID, c.AssignedTo,
			c.HistorySeq, c.UpdatedAt,
		)
		if err != nil {
			return errors.Wrap(err, "failed to update complaint")
		}

		if result.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM complaints WHERE id = $1)`, c.ID).Scan(&exists); err != nil {
				return errors.Wrap(err, "failed to check complaint")
			}
			if !exists {
				return errors.NotFound("complaint", c.ID.String())
			}
			return errors.Conflict("complaint was modified concurrently")
		}

		return insertHistory(ctx, tx, c.Uncommitted())
	})
	if err != nil {
		return err
	}

	c.Version++
	c.MarkCommitted()
	return nil
}

// GetByID finds a complaint by ID
func (r *PostgresRepository) GetByID(ctx context.Context, id types.ID) (*domain.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE id = $1`

	c, err := scanComplaint(r.pool.QueryRow(ctx, query, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("complaint", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find complaint")
	}
	return c, nil
}

// GetByTrackingCode finds a complaint by its public tracking code
func (r *PostgresRepository) GetByTrackingCode(ctx context.Context, code types.TrackingCode) (*domain.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE tracking_code = $1`

	c, err := scanComplaint(r.pool.QueryRow(ctx, query, code))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("complaint", code.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find complaint")
	}
	return c, nil
}

// List lists complaints matching filter, newest first
func (r *PostgresRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Complaint, int, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("complaints_select", time.Since(start)) }()

	where, args := buildListConditions(filter)

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM complaints "+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count complaints")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM complaints
		%s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`, complaintColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list complaints")
	}
	defer rows.Close()

	var complaints []*domain.Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan complaint")
		}
		complaints = append(complaints, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "failed to list complaints")
	}

	return complaints, total, nil
}

// History returns the history of a complaint in insertion order
func (r *PostgresRepository) History(ctx context.Context, complaintID types.ID) ([]domain.HistoryEntry, error) {
	query := `
		SELECT id, complaint_id, sequence, action, actor_id,
			from_user_id, to_user_id, from_agency_id, to_agency_id,
			from_status, to_status, metadata, timestamp
		FROM complaint_history
		WHERE complaint_id = $1
		ORDER BY sequence`

	rows, err := r.pool.Query(ctx, query, complaintID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get history")
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var rec domain.HistoryRecord
		var fromStatus, toStatus, metadata *string

		if err := rows.Scan(
			&rec.ID, &rec.ComplaintID, &rec.Sequence, &rec.Action, &rec.ActorID,
			&rec.FromUserID, &rec.ToUserID, &rec.FromAgencyID, &rec.ToAgencyID,
			&fromStatus, &toStatus, &metadata, &rec.Timestamp,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan history entry")
		}
		rec.FromStatus = domain.Status(deref(fromStatus))
		rec.ToStatus = domain.Status(deref(toStatus))
		rec.Metadata = deref(metadata)

		entry, err := rec.Entry()
		if err != nil {
			return nil, errors.Internal(err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to get history")
	}

	return entries, nil
}

// StatSamples returns the columns statistics need for complaints matching filter
func (r *PostgresRepository) StatSamples(ctx context.Context, filter domain.ListFilter) ([]domain.StatSample, error) {
	where, args := buildListConditions(filter)

	rows, err := r.pool.Query(ctx, "SELECT status, assigned_to IS NOT NULL, created_at FROM complaints "+where, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get statistics")
	}
	defer rows.Close()

	var samples []domain.StatSample
	for rows.Next() {
		var s domain.StatSample
		if err := rows.Scan(&s.Status, &s.Assigned, &s.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan statistics")
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// buildListConditions renders filter as a WHERE clause with positional args
func buildListConditions(filter domain.ListFilter) (string, []any) {
	var conditions []string
	var args []any

	add := func(format string, value any) {
		args = append(args, value)
		conditions = append(conditions, strings.ReplaceAll(format, "?", fmt.Sprintf("$%d", len(args))))
	}

	if filter.AgencyID != nil {
		add("agency_id = ?", *filter.AgencyID)
	}
	if filter.AssignedTo != nil {
		add("assigned_to = ?", *filter.AssignedTo)
	}
	if filter.CategoryID != nil {
		add("category_id = ?", *filter.CategoryID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY(?)", statuses)
	}
	if filter.CreatedBefore != nil {
		add("created_at <= ?", *filter.CreatedBefore)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		add("(subject ILIKE ? OR description ILIKE ? OR tracking_code ILIKE ?)", database.ContainsPattern(s))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func insertHistory(ctx context.Context, tx pgx.Tx, entries []domain.HistoryEntry) error {
	query := `
		INSERT INTO complaint_history (
			id, complaint_id, sequence, action, actor_id,
			from_user_id, to_user_id, from_agency_id, to_agency_id,
			from_status, to_status, metadata, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	for _, e := range entries {
		rec := e.Record()
		_, err := tx.Exec(ctx, query,
			rec.ID, rec.ComplaintID, rec.Sequence, rec.Action, rec.ActorID,
			rec.FromUserID, rec.ToUserID, rec.FromAgencyID, rec.ToAgencyID,
			nullable(string(rec.FromStatus)), nullable(string(rec.ToStatus)), nullable(rec.Metadata),
			rec.Timestamp,
		)
		if err != nil {
			return errors.Wrap(err, "failed to save history entry")
		}
	}
	return nil
}

func scanComplaint(row pgx.Row) (*domain.Complaint, error) {
	c := &domain.Complaint{}
	var code string
	err := row.Scan(
		&c.ID, &code, &c.Subject, &c.Description, &c.CitizenName, &c.CitizenEmail,
		&c.CategoryID, &c.AgencyID, &c.Status, &c.AssignedTo, &c.Version, &c.HistorySeq,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.TrackingCode = types.TrackingCode(code)
	return c, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
