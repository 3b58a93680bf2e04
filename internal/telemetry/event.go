package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// Source is the value of LifecycleEvent.Source for events produced by this service.
const Source = "trial-access-bot"

// Lifecycle event types.
const (
	EventPreferenceSet      = "preference_set"
	EventCredentialIssued   = "credential_issued"
	EventIssuanceRejected   = "issuance_rejected"
	EventIssuanceFailed     = "issuance_failed"
	EventAccessRevoked      = "access_revoked"
	EventRevocationFailed   = "revocation_failed"
	EventNotificationFailed = "notification_failed"
	EventSweepCompleted     = "sweep_completed"
)

// LifecycleEvent is one credential lifecycle transition. It is serialized as JSON
// for Kafka and Loki and mapped to attributes for OTel log records.
type LifecycleEvent struct {
	ID          string            `json:"id"`
	EventType   string            `json:"eventType"`
	PrincipalID int64             `json:"principalId,omitempty"`
	Source      string            `json:"source"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// NewLifecycleEvent returns an event of eventType for principalID stamped with a new id and the current time.
func NewLifecycleEvent(eventType string, principalID int64, metadata map[string]string) *LifecycleEvent {
	return &LifecycleEvent{
		ID:          uuid.New().String(),
		EventType:   eventType,
		PrincipalID: principalID,
		Source:      Source,
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
	}
}
