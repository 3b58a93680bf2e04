package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"trial-access-bot/internal/audit/domain"
	auditrepo "trial-access-bot/internal/audit/repository"
)

// Audit actions recorded by the access lifecycle.
const (
	ActionPreferenceSet     = "preference_set"
	ActionCredentialIssued  = "credential_issued"
	ActionCredentialReused  = "credential_reused"
	ActionIssuanceRejected  = "issuance_rejected"
	ActionIssuanceFailed    = "issuance_failed"
	ActionAccessRevoked     = "access_revoked"
	ActionRevocationFailed  = "revocation_failed"
	ActionGrantClearSkipped = "grant_clear_skipped"
)

// AuditLogger writes a single audit event for a principal.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, principalID int64, action, metadata string)
}

// Logger implements AuditLogger using the audit repository.
type Logger struct {
	repo auditrepo.Repository
	now  func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo. A nil repo makes LogEvent a no-op.
func NewLogger(repo auditrepo.Repository) *Logger {
	return &Logger{repo: repo, now: time.Now}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, principalID int64, action, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	entry := &domain.AuditLog{
		ID:          uuid.New().String(),
		PrincipalID: principalID,
		Action:      action,
		Metadata:    metadata,
		CreatedAt:   l.now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s for principal %d: %v", action, principalID, err)
	}
}
