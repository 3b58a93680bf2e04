package domain

import (
	"testing"
	"time"
)

func TestRecord_State(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	grant := func(expires time.Time) *Grant {
		return &Grant{InviteLink: "https://t.me/+abc", IssuedAt: expires.Add(-35 * time.Minute), ExpiresAt: expires}
	}

	testCases := []struct {
		name   string
		record *Record
		want   State
	}{
		{"nil record", nil, StateNoCredential},
		{"no grant", &Record{PrincipalID: 1, Locale: "pt"}, StateNoCredential},
		{"active", &Record{PrincipalID: 1, Grant: grant(now.Add(time.Minute))}, StateActive},
		{"expires exactly now", &Record{PrincipalID: 1, Grant: grant(now)}, StateExpiredPending},
		{"expired", &Record{PrincipalID: 1, Grant: grant(now.Add(-time.Hour))}, StateExpiredPending},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.record.State(now); got != tc.want {
				t.Errorf("State = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestGrant_Remaining(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	g := &Grant{IssuedAt: now.Add(-time.Minute), ExpiresAt: now.Add(90 * time.Second)}
	if got := g.Remaining(now); got != 90*time.Second {
		t.Errorf("Remaining = %v, want 90s", got)
	}
	if got := g.Remaining(now.Add(2 * time.Minute)); got != 0 {
		t.Errorf("Remaining after expiry = %v, want 0", got)
	}
	var nilGrant *Grant
	if nilGrant.Active(now) || nilGrant.Remaining(now) != 0 {
		t.Error("nil grant should be inactive with no time remaining")
	}
}

func TestRecord_LocaleOr(t *testing.T) {
	if got := (&Record{}).LocaleOr("pt"); got != "pt" {
		t.Errorf("LocaleOr on unset = %q, want pt", got)
	}
	if got := (&Record{Locale: "en"}).LocaleOr("pt"); got != "en" {
		t.Errorf("LocaleOr = %q, want en", got)
	}
	var r *Record
	if got := r.LocaleOr("es"); got != "es" {
		t.Errorf("nil LocaleOr = %q, want es", got)
	}
}

func TestState_String(t *testing.T) {
	if StateActive.String() != "active" || StateExpiredPending.String() != "expired_pending" || StateNoCredential.String() != "no_credential" {
		t.Error("unexpected state names")
	}
}
