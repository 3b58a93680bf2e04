// Package principaltest provides an in-memory principal store for tests of
// packages that depend on the record store.
package principaltest

import (
	"context"
	"sort"
	"sync"
	"time"

	"trial-access-bot/internal/principal/domain"
)

// Store is an in-process record store with the same semantics as repository.SQLRepository.
// Timestamps are truncated to milliseconds to match the persisted resolution.
type Store struct {
	mu      sync.Mutex
	records map[int64]*domain.Record
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{records: make(map[int64]*domain.Record)}
}

// Get returns a copy of the record for principalID, or nil if not found.
func (r *Store) Get(_ context.Context, principalID int64) (*domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[principalID]
	if !ok {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

// UpsertLocale inserts the principal or updates its locale.
func (r *Store) UpsertLocale(_ context.Context, principalID int64, locale string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now = truncate(now)
	rec, ok := r.records[principalID]
	if !ok {
		rec = &domain.Record{PrincipalID: principalID, CreatedAt: now}
		r.records[principalID] = rec
	}
	rec.Locale = locale
	rec.UpdatedAt = now
	return nil
}

// SetGrant stores grant and marks the trial consumed, preserving an existing locale.
func (r *Store) SetGrant(_ context.Context, principalID int64, grant domain.Grant, defaultLocale string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	issued := truncate(grant.IssuedAt)
	rec, ok := r.records[principalID]
	if !ok {
		rec = &domain.Record{PrincipalID: principalID, Locale: defaultLocale, CreatedAt: issued}
		r.records[principalID] = rec
	}
	rec.Grant = &domain.Grant{InviteLink: grant.InviteLink, IssuedAt: issued, ExpiresAt: truncate(grant.ExpiresAt)}
	rec.TrialConsumed = true
	rec.UpdatedAt = issued
	return nil
}

// ListExpired returns copies of records whose grant expired at or before now, oldest first.
func (r *Store) ListExpired(_ context.Context, now time.Time) ([]*domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now = truncate(now)
	var out []*domain.Record
	for _, rec := range r.records {
		if rec.Grant != nil && !rec.Grant.ExpiresAt.After(now) {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Grant.ExpiresAt.Before(out[j].Grant.ExpiresAt)
	})
	return out, nil
}

// ClearGrant clears the grant if its expiry still equals observedExpiresAt.
func (r *Store) ClearGrant(_ context.Context, principalID int64, observedExpiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[principalID]
	if !ok || rec.Grant == nil || !rec.Grant.ExpiresAt.Equal(truncate(observedExpiresAt)) {
		return false, nil
	}
	rec.Grant = nil
	rec.UpdatedAt = truncate(time.Now())
	return true, nil
}

func cloneRecord(rec *domain.Record) *domain.Record {
	c := *rec
	if rec.Grant != nil {
		g := *rec.Grant
		c.Grant = &g
	}
	return &c
}

func truncate(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).UTC()
}
