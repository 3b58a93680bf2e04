package repository

import (
	"context"
	"errors"
	"time"

	"trial-access-bot/internal/principal/domain"
)

// ErrStorage wraps every failure reported by the underlying store.
var ErrStorage = errors.New("principal storage failure")

// Repository defines persistence for principal records.
// Every mutation is a single atomic statement; callers never read-modify-write.
type Repository interface {
	// Get returns the record for principalID, or nil if not found.
	Get(ctx context.Context, principalID int64) (*domain.Record, error)
	// UpsertLocale inserts or updates only the locale of a principal.
	UpsertLocale(ctx context.Context, principalID int64, locale string, now time.Time) error
	// SetGrant stores grant for the principal and marks the trial consumed. The locale of
	// an existing row is preserved; a new row gets defaultLocale.
	SetGrant(ctx context.Context, principalID int64, grant domain.Grant, defaultLocale string) error
	// ListExpired returns records whose grant expired at or before now.
	ListExpired(ctx context.Context, now time.Time) ([]*domain.Record, error)
	// ClearGrant clears the grant only if its expiry still equals observedExpiresAt.
	// It reports whether a row was cleared.
	ClearGrant(ctx context.Context, principalID int64, observedExpiresAt time.Time) (bool, error)
}
