package service

import (
	"context"
	"time"

	"trial-access-bot/internal/principal/domain"
)

// StatusKind is the user-facing lifecycle state.
type StatusKind int

const (
	StatusNoCredential StatusKind = iota
	StatusActive
	// StatusExpired covers a grant past its expiry that the sweeper has not cleared yet.
	StatusExpired
)

func (k StatusKind) String() string {
	switch k {
	case StatusActive:
		return "active"
	case StatusExpired:
		return "expired"
	default:
		return "no_credential"
	}
}

// Status is a read-only projection of a principal's record.
type Status struct {
	Kind       StatusKind
	InviteLink string
	ExpiresAt  time.Time
	// MinutesRemaining is the whole minutes left while active.
	MinutesRemaining int
}

// Status reports the principal's state at the current time. A missing record is NoCredential.
func (s *Service) Status(ctx context.Context, principalID int64) (Status, error) {
	rec, err := s.repo.Get(ctx, principalID)
	if err != nil {
		return Status{}, err
	}
	now := s.now()
	switch rec.State(now) {
	case domain.StateActive:
		return Status{
			Kind:             StatusActive,
			InviteLink:       rec.Grant.InviteLink,
			ExpiresAt:        rec.Grant.ExpiresAt,
			MinutesRemaining: int(rec.Grant.Remaining(now) / time.Minute),
		}, nil
	case domain.StateExpiredPending:
		return Status{Kind: StatusExpired, InviteLink: rec.Grant.InviteLink, ExpiresAt: rec.Grant.ExpiresAt}, nil
	default:
		return Status{Kind: StatusNoCredential}, nil
	}
}
