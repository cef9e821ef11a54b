package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Filter narrows a query. Absent fields impose no constraint; provided
// fields combine conjunctively.
type Filter struct {
	Action       Action
	ResourceType ResourceType
	ResourceID   string
	Start        time.Time
	End          time.Time
	Limit        int
	Offset       int
}

// Repository defines persistence for audit entries. There is deliberately no
// update or delete operation.
type Repository interface {
	Insert(ctx context.Context, entry Entry) (Entry, error)
	Query(ctx context.Context, filter Filter) ([]Entry, int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Insert appends one entry. The creation timestamp is server-assigned.
func (r *PGRepository) Insert(ctx context.Context, entry Entry) (Entry, error) {
	metaJSON, err := json.Marshal(entry.Meta)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: marshal meta: %w", err)
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO audit_logs (action, actor_id, actor_email, origin, resource_type, resource_id, old_value, new_value, meta, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, NOW())
		RETURNING id, created_at`,
		string(entry.Action), entry.ActorID, entry.ActorEmail, entry.Origin,
		string(entry.ResourceType), entry.ResourceID, entry.OldValue, entry.NewValue, metaJSON)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return Entry{}, fmt.Errorf("audit: insert: %w", err)
	}
	return entry, nil
}

// Query returns entries newest first along with the total count under the
// same filter.
func (r *PGRepository) Query(ctx context.Context, filter Filter) ([]Entry, int64, error) {
	where, args := buildWhere(filter)

	var total int64
	countSQL := "SELECT COUNT(*) FROM audit_logs" + where
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("audit: count: %w", err)
	}

	listSQL := fmt.Sprintf(`
		SELECT id, action, actor_id, COALESCE(actor_email, ''), origin, resource_type, resource_id,
		       COALESCE(old_value, ''), COALESCE(new_value, ''), meta, created_at
		FROM audit_logs%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func scanEntry(rows pgx.Rows) (Entry, error) {
	var (
		entry    Entry
		action   string
		resource string
		metaJSON []byte
	)
	err := rows.Scan(&entry.ID, &action, &entry.ActorID, &entry.ActorEmail, &entry.Origin,
		&resource, &entry.ResourceID, &entry.OldValue, &entry.NewValue, &metaJSON, &entry.CreatedAt)
	if err != nil {
		return Entry{}, err
	}
	entry.Action = Action(action)
	entry.ResourceType = ResourceType(resource)
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &entry.Meta)
	}
	return entry, nil
}

func buildWhere(filter Filter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.Action != "" {
		add("action = $%d", string(filter.Action))
	}
	if filter.ResourceType != "" {
		add("resource_type = $%d", string(filter.ResourceType))
	}
	if filter.ResourceID != "" {
		add("resource_id = $%d", filter.ResourceID)
	}
	if !filter.Start.IsZero() {
		add("created_at >= $%d", filter.Start)
	}
	if !filter.End.IsZero() {
		add("created_at <= $%d", filter.End)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

var _ Repository = (*PGRepository)(nil)
