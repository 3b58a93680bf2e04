package domain

import "time"

// Record is the persisted state of one principal (a Telegram user).
type Record struct {
	PrincipalID   int64
	Locale        string // empty when the principal never picked one
	Grant         *Grant // nil when no credential is outstanding
	TrialConsumed bool   // set by the first successful issue and never cleared
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Grant is an issued time-limited invite. Its fields are always set together.
type Grant struct {
	InviteLink string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// State is the credential lifecycle state of a record at a given instant.
type State int

const (
	// StateNoCredential means no grant is stored.
	StateNoCredential State = iota
	// StateActive means a grant is stored and has not expired.
	StateActive
	// StateExpiredPending means a grant is stored, has expired, and has not yet been revoked.
	StateExpiredPending
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateExpiredPending:
		return "expired_pending"
	default:
		return "no_credential"
	}
}

// Active reports whether the grant is still valid at now.
func (g *Grant) Active(now time.Time) bool {
	return g != nil && now.Before(g.ExpiresAt)
}

// Remaining is the time left before expiry, or zero once expired.
func (g *Grant) Remaining(now time.Time) time.Duration {
	if g == nil || !now.Before(g.ExpiresAt) {
		return 0
	}
	return g.ExpiresAt.Sub(now)
}

// State classifies the record at now. A nil record has no credential.
func (r *Record) State(now time.Time) State {
	if r == nil || r.Grant == nil {
		return StateNoCredential
	}
	if r.Grant.Active(now) {
		return StateActive
	}
	return StateExpiredPending
}

// LocaleOr returns the stored locale, or def when none was set.
func (r *Record) LocaleOr(def string) string {
	if r == nil || r.Locale == "" {
		return def
	}
	return r.Locale
}
