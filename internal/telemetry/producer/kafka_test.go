package producer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"trial-access-bot/internal/telemetry"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewKafkaProducer_Disabled(t *testing.T) {
	if p := NewKafkaProducer(nil, "topic"); p != nil {
		t.Error("no brokers should disable the producer")
	}
	if p := NewKafkaProducer([]string{"localhost:9092"}, ""); p != nil {
		t.Error("empty topic should disable the producer")
	}
	var p *KafkaProducer
	if err := p.Emit(context.Background(), telemetry.NewLifecycleEvent(telemetry.EventCredentialIssued, 1, nil)); err != nil {
		t.Errorf("nil producer Emit: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("nil producer Close: %v", err)
	}
}

func TestKafkaProducer_Emit(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaProducer{writer: w, topic: "trial-lifecycle"}
	event := telemetry.NewLifecycleEvent(telemetry.EventAccessRevoked, 77, map[string]string{"locale": "en"})

	if err := p.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages, want 1", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "77" {
		t.Errorf("key = %q, want principal id", w.msgs[0].Key)
	}
	var got telemetry.LifecycleEvent
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.EventType != telemetry.EventAccessRevoked || got.PrincipalID != 77 || got.Metadata["locale"] != "en" {
		t.Errorf("payload = %+v", got)
	}

	if err := p.Emit(context.Background(), nil); err != nil {
		t.Errorf("Emit(nil): %v", err)
	}
	if len(w.msgs) != 1 {
		t.Error("nil event should not be written")
	}
	if err := p.Close(); err != nil || !w.closed {
		t.Errorf("Close: err=%v closed=%v", err, w.closed)
	}
}

func TestKafkaProducer_EmitError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := &KafkaProducer{writer: w, topic: "trial-lifecycle"}
	if err := p.Emit(context.Background(), telemetry.NewLifecycleEvent(telemetry.EventSweepCompleted, 0, nil)); err == nil {
		t.Fatal("Emit should return the write error")
	}
}
