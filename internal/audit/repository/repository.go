package repository

import (
	"context"

	"trial-access-bot/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	ListByPrincipal(ctx context.Context, principalID int64, limit int) ([]*domain.AuditLog, error)
}
