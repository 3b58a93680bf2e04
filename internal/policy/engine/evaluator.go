package engine

import (
	"context"
	"time"
)

// Denial reasons reported by the access policy.
const (
	ReasonTrialConsumed = "trial_consumed"
	ReasonTrialExpired  = "trial_expired"
)

// AccessInput describes a principal asking for a new credential.
type AccessInput struct {
	PrincipalID   int64
	TrialConsumed bool
	HasGrant      bool
	ExpiresAt     time.Time // zero when HasGrant is false
	Now           time.Time
}

// Decision is the outcome of an access policy evaluation. Reason is empty when allowed.
type Decision struct {
	Allow  bool
	Reason string
}

// Evaluator decides whether a principal may be issued a new trial credential.
type Evaluator interface {
	EvaluateAccess(ctx context.Context, in AccessInput) (Decision, error)
}

// DefaultDecision is the built-in one-trial-only rule used when policy evaluation fails.
func DefaultDecision(in AccessInput) Decision {
	if in.HasGrant && !in.Now.Before(in.ExpiresAt) {
		return Decision{Reason: ReasonTrialExpired}
	}
	if in.TrialConsumed {
		return Decision{Reason: ReasonTrialConsumed}
	}
	return Decision{Allow: true}
}
