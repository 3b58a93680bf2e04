package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"trial-access-bot/internal/db"
	"trial-access-bot/internal/principal/domain"
)

const selectColumns = `principal_id, locale, invite_link, issued_at, expires_at, trial_consumed, created_at, updated_at`

// SQLRepository persists principals in Postgres or SQLite.
type SQLRepository struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewSQLRepository returns a principal repository that uses the given db and dialect for persistence.
func NewSQLRepository(conn *sql.DB, dialect db.Dialect) *SQLRepository {
	return &SQLRepository{db: conn, dialect: dialect}
}

// Get returns the record for principalID, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *SQLRepository) Get(ctx context.Context, principalID int64) (*domain.Record, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(
		`SELECT `+selectColumns+` FROM principals WHERE principal_id = ?`), principalID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get principal %d: %w", ErrStorage, principalID, err)
	}
	return rec, nil
}

// UpsertLocale inserts the principal with locale or updates the locale of an existing row.
// Grant fields are never touched.
func (r *SQLRepository) UpsertLocale(ctx context.Context, principalID int64, locale string, now time.Time) error {
	ms := now.UnixMilli()
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(`
		INSERT INTO principals (principal_id, locale, trial_consumed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (principal_id) DO UPDATE SET
			locale = excluded.locale,
			updated_at = excluded.updated_at`),
		principalID, nullString(locale), false, ms, ms)
	if err != nil {
		return fmt.Errorf("%w: upsert locale %d: %w", ErrStorage, principalID, err)
	}
	return nil
}

// SetGrant writes all grant fields in one statement and marks the trial consumed.
func (r *SQLRepository) SetGrant(ctx context.Context, principalID int64, grant domain.Grant, defaultLocale string) error {
	issued := grant.IssuedAt.UnixMilli()
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(`
		INSERT INTO principals (principal_id, locale, invite_link, issued_at, expires_at, trial_consumed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (principal_id) DO UPDATE SET
			invite_link = excluded.invite_link,
			issued_at = excluded.issued_at,
			expires_at = excluded.expires_at,
			trial_consumed = excluded.trial_consumed,
			updated_at = excluded.updated_at`),
		principalID, nullString(defaultLocale), grant.InviteLink, issued, grant.ExpiresAt.UnixMilli(), true, issued, issued)
	if err != nil {
		return fmt.Errorf("%w: set grant %d: %w", ErrStorage, principalID, err)
	}
	return nil
}

// ListExpired returns records holding a grant whose expiry is at or before now, oldest first.
func (r *SQLRepository) ListExpired(ctx context.Context, now time.Time) ([]*domain.Record, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(`
		SELECT `+selectColumns+` FROM principals
		WHERE invite_link IS NOT NULL AND expires_at <= ?
		ORDER BY expires_at`), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("%w: list expired: %w", ErrStorage, err)
	}
	defer rows.Close()

	var out []*domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan expired: %w", ErrStorage, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list expired: %w", ErrStorage, err)
	}
	return out, nil
}

// ClearGrant nulls the grant fields if the stored expiry still equals observedExpiresAt.
// Locale and trial_consumed are kept.
func (r *SQLRepository) ClearGrant(ctx context.Context, principalID int64, observedExpiresAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(`
		UPDATE principals
		SET invite_link = NULL, issued_at = NULL, expires_at = NULL, updated_at = ?
		WHERE principal_id = ? AND expires_at = ?`),
		time.Now().UnixMilli(), principalID, observedExpiresAt.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("%w: clear grant %d: %w", ErrStorage, principalID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: clear grant %d: %w", ErrStorage, principalID, err)
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*domain.Record, error) {
	var (
		rec                 domain.Record
		locale, link        sql.NullString
		issuedAt, expiresAt sql.NullInt64
		createdAt, updated  int64
	)
	if err := s.Scan(&rec.PrincipalID, &locale, &link, &issuedAt, &expiresAt, &rec.TrialConsumed, &createdAt, &updated); err != nil {
		return nil, err
	}
	rec.Locale = locale.String
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	rec.UpdatedAt = time.UnixMilli(updated).UTC()
	if link.Valid && issuedAt.Valid && expiresAt.Valid {
		rec.Grant = &domain.Grant{
			InviteLink: link.String,
			IssuedAt:   time.UnixMilli(issuedAt.Int64).UTC(),
			ExpiresAt:  time.UnixMilli(expiresAt.Int64).UTC(),
		}
	}
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
