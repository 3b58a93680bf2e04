package repository

import (
	"context"
	"database/sql"
	"time"

	"trial-access-bot/internal/audit/domain"
	"trial-access-bot/internal/db"
)

// SQLRepository stores audit logs in the audit_logs table.
type SQLRepository struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewSQLRepository returns an audit log repository that uses the given db for persistence.
func NewSQLRepository(conn *sql.DB, dialect db.Dialect) *SQLRepository {
	return &SQLRepository{db: conn, dialect: dialect}
}

// Create persists the audit log. The audit log must have ID set.
func (r *SQLRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	meta := sql.NullString{String: a.Metadata, Valid: a.Metadata != ""}
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(
		`INSERT INTO audit_logs (id, principal_id, action, metadata, created_at) VALUES (?, ?, ?, ?, ?)`),
		a.ID, a.PrincipalID, a.Action, meta, a.CreatedAt.UnixMilli())
	return err
}

// ListByPrincipal returns the most recent audit logs for principalID, newest first.
// Returns (nil, error) only on database errors.
func (r *SQLRepository) ListByPrincipal(ctx context.Context, principalID int64, limit int) ([]*domain.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(`
		SELECT id, principal_id, action, metadata, created_at FROM audit_logs
		WHERE principal_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?`), principalID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a         domain.AuditLog
			meta      sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&a.ID, &a.PrincipalID, &a.Action, &meta, &createdAt); err != nil {
			return nil, err
		}
		a.Metadata = meta.String
		a.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, &a)
	}
	return out, rows.Err()
}
