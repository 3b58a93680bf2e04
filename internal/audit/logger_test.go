package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"trial-access-bot/internal/audit/domain"
)

// mockAuditRepo implements the audit repository interface for tests.
type mockAuditRepo struct {
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) ListByPrincipal(ctx context.Context, principalID int64, limit int) ([]*domain.AuditLog, error) {
	return nil, nil
}

func TestLogger_LogEvent_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo)

	logger.LogEvent(context.Background(), 42, ActionCredentialIssued, "link=https://t.me/+x")

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.PrincipalID != 42 {
		t.Errorf("principal_id = %d, want 42", entry.PrincipalID)
	}
	if entry.Action != ActionCredentialIssued {
		t.Errorf("action = %q, want %q", entry.Action, ActionCredentialIssued)
	}
	if entry.Metadata != "link=https://t.me/+x" {
		t.Errorf("metadata = %q", entry.Metadata)
	}
	if _, err := uuid.Parse(entry.ID); err != nil {
		t.Errorf("id = %q is not a uuid: %v", entry.ID, err)
	}
	if entry.CreatedAt.IsZero() || entry.CreatedAt.Location().String() != "UTC" {
		t.Errorf("created_at = %v, want UTC timestamp", entry.CreatedAt)
	}
}

func TestLogger_LogEvent_RepoError(t *testing.T) {
	repo := &mockAuditRepo{createErr: errors.New("db down")}
	logger := NewLogger(repo)

	// Must not panic or surface the error.
	logger.LogEvent(context.Background(), 1, ActionAccessRevoked, "")
	if len(repo.entries) != 0 {
		t.Errorf("expected no entries, got %d", len(repo.entries))
	}
}

func TestLogger_LogEvent_NilRepo(t *testing.T) {
	NewLogger(nil).LogEvent(context.Background(), 1, ActionAccessRevoked, "")
	var l *Logger
	l.LogEvent(context.Background(), 1, ActionAccessRevoked, "")
}
