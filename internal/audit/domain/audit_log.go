package domain

import "time"

// AuditLog represents an audit event for one principal.
type AuditLog struct {
	ID          string
	PrincipalID int64
	Action      string
	Metadata    string
	CreatedAt   time.Time
}
