// Package producer writes lifecycle events to an external stream (Kafka).
package producer

import (
	"trial-access-bot/internal/telemetry"
)

// Producer is an EventEmitter that owns a connection and must be closed.
type Producer interface {
	telemetry.EventEmitter
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
