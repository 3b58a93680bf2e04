// Package service implements the trial credential lifecycle: issuance, the expiry sweep,
// and status reporting over the principal record store.
package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"trial-access-bot/internal/audit"
	"trial-access-bot/internal/policy/engine"
	"trial-access-bot/internal/principal/repository"
	"trial-access-bot/internal/telemetry"
)

// Sentinel errors for the access service; the bot handler maps them to localized replies.
var (
	// ErrTrialAlreadyUsed is the one-trial-only rejection. It is an outcome, not a failure.
	ErrTrialAlreadyUsed = errors.New("trial already used")
	// ErrIssuanceFailed wraps a transport failure while creating an invite. No state was written.
	ErrIssuanceFailed = errors.New("credential issuance failed")
)

// Transport is the messaging collaborator the lifecycle drives.
type Transport interface {
	CreateTimedInvite(ctx context.Context, destination string, expiresAt time.Time) (string, error)
	RevokeMember(ctx context.Context, destination string, principalID int64) error
	Notify(ctx context.Context, principalID int64, text string) error
}

// Texts renders localized messages.
type Texts interface {
	Text(locale, key string, args ...any) string
}

// Config holds the lifecycle settings read once at startup.
type Config struct {
	// Destination is the protected chat invites are created for.
	Destination string
	// CredentialTTL is how long an issued invite grants access.
	CredentialTTL time.Duration
	// TransportTimeout bounds every transport call.
	TransportTimeout time.Duration
	// DefaultLocale is used for principals that never chose one.
	DefaultLocale string
	// SweepConcurrency bounds parallel work within one sweep.
	SweepConcurrency int
}

// Service issues, sweeps, and reports trial credentials.
type Service struct {
	repo      repository.Repository
	transport Transport
	policy    engine.Evaluator
	texts     Texts
	audit     audit.AuditLogger
	emitter   telemetry.EventEmitter
	metrics   *telemetry.Metrics
	cfg       Config
	now       func() time.Time
	newRunID  func() string
	issuing   singleflight.Group
}

// NewService returns a Service. policy, auditLogger, emitter and metrics may be nil;
// a nil policy applies engine.DefaultDecision.
func NewService(
	repo repository.Repository,
	transport Transport,
	policy engine.Evaluator,
	texts Texts,
	auditLogger audit.AuditLogger,
	emitter telemetry.EventEmitter,
	metrics *telemetry.Metrics,
	cfg Config,
) *Service {
	if cfg.TransportTimeout <= 0 {
		cfg.TransportTimeout = 10 * time.Second
	}
	if cfg.SweepConcurrency <= 0 {
		cfg.SweepConcurrency = 1
	}
	return &Service{
		repo:      repo,
		transport: transport,
		policy:    policy,
		texts:     texts,
		audit:     auditLogger,
		emitter:   emitter,
		metrics:   metrics,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		newRunID:  uuid.NewString,
	}
}

func (s *Service) logEvent(ctx context.Context, principalID int64, action, metadata string) {
	if s.audit == nil {
		return
	}
	s.audit.LogEvent(ctx, principalID, action, metadata)
}

func (s *Service) emit(ctx context.Context, eventType string, principalID int64, metadata map[string]string) {
	telemetry.EmitAsync(s.emitter, ctx, telemetry.NewLifecycleEvent(eventType, principalID, metadata))
}

func (s *Service) evaluate(ctx context.Context, in engine.AccessInput) engine.Decision {
	if s.policy == nil {
		return engine.DefaultDecision(in)
	}
	decision, err := s.policy.EvaluateAccess(ctx, in)
	if err != nil {
		log.Printf("access: policy evaluation for principal %d failed, using default rule: %v", in.PrincipalID, err)
		return engine.DefaultDecision(in)
	}
	return decision
}
