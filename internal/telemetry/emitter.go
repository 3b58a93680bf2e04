package telemetry

import (
	"context"
	"errors"
)

// EventEmitter emits lifecycle events (e.g. to OTel Logs or Kafka). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *LifecycleEvent) error
}

type multiEmitter []EventEmitter

// Multi returns an emitter that sends every event to each non-nil emitter and joins their errors.
func Multi(emitters ...EventEmitter) EventEmitter {
	var out multiEmitter
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

func (m multiEmitter) Emit(ctx context.Context, event *LifecycleEvent) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
