package service

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"trial-access-bot/internal/audit"
	"trial-access-bot/internal/policy/engine"
	"trial-access-bot/internal/principal/domain"
	"trial-access-bot/internal/telemetry"
)

// Issued is the credential handed to a principal.
type Issued struct {
	InviteLink string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	// Reused is set when an active grant already existed and no new invite was created.
	Reused bool
}

// Issue returns a trial invite for principalID. Concurrent calls for one principal share a
// single outcome. An active grant is returned as is. A consumed or expired trial yields
// ErrTrialAlreadyUsed; a transport failure yields ErrIssuanceFailed and writes nothing.
func (s *Service) Issue(ctx context.Context, principalID int64) (*Issued, error) {
	v, err, _ := s.issuing.Do(strconv.FormatInt(principalID, 10), func() (any, error) {
		return s.issue(ctx, principalID)
	})
	if err != nil {
		return nil, err
	}
	issued := *v.(*Issued)
	return &issued, nil
}

func (s *Service) issue(ctx context.Context, principalID int64) (*Issued, error) {
	now := s.now()
	rec, err := s.repo.Get(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if rec != nil && rec.Grant.Active(now) {
		s.logEvent(ctx, principalID, audit.ActionCredentialReused, rec.Grant.ExpiresAt.Format(time.RFC3339))
		return &Issued{
			InviteLink: rec.Grant.InviteLink,
			IssuedAt:   rec.Grant.IssuedAt,
			ExpiresAt:  rec.Grant.ExpiresAt,
			Reused:     true,
		}, nil
	}

	in := engine.AccessInput{PrincipalID: principalID, Now: now}
	if rec != nil {
		in.TrialConsumed = rec.TrialConsumed
		if rec.Grant != nil {
			in.HasGrant = true
			in.ExpiresAt = rec.Grant.ExpiresAt
		}
	}
	if decision := s.evaluate(ctx, in); !decision.Allow {
		s.logEvent(ctx, principalID, audit.ActionIssuanceRejected, decision.Reason)
		s.emit(ctx, telemetry.EventIssuanceRejected, principalID, map[string]string{"reason": decision.Reason})
		s.metrics.IssuanceRejected(ctx, decision.Reason)
		return nil, fmt.Errorf("%w: %s", ErrTrialAlreadyUsed, decision.Reason)
	}

	expiresAt := now.Add(s.cfg.CredentialTTL)
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.TransportTimeout)
	link, err := s.transport.CreateTimedInvite(callCtx, s.cfg.Destination, expiresAt)
	cancel()
	if err != nil {
		log.Printf("access: create invite for principal %d: %v", principalID, err)
		s.logEvent(ctx, principalID, audit.ActionIssuanceFailed, err.Error())
		s.emit(ctx, telemetry.EventIssuanceFailed, principalID, nil)
		s.metrics.IssuanceFailed(ctx)
		return nil, fmt.Errorf("%w: %w", ErrIssuanceFailed, err)
	}

	grant := domain.Grant{InviteLink: link, IssuedAt: now, ExpiresAt: expiresAt}
	if err := s.repo.SetGrant(ctx, principalID, grant, s.cfg.DefaultLocale); err != nil {
		log.Printf("access: store grant for principal %d: %v", principalID, err)
		return nil, err
	}
	s.logEvent(ctx, principalID, audit.ActionCredentialIssued, expiresAt.Format(time.RFC3339))
	s.emit(ctx, telemetry.EventCredentialIssued, principalID, map[string]string{
		"expiresAt": expiresAt.Format(time.RFC3339),
	})
	s.metrics.CredentialIssued(ctx)
	return &Issued{InviteLink: link, IssuedAt: now, ExpiresAt: expiresAt}, nil
}
