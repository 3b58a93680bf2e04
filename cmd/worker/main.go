// Worker forwards credential lifecycle events from Kafka to Loki.
// Set KAFKA_BROKERS, LIFECYCLE_KAFKA_TOPIC, KAFKA_GROUP_ID and LOKI_URL; APP_ENV becomes the env label.
// BOT_TOKEN is required by config but unused.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"trial-access-bot/internal/config"
	"trial-access-bot/internal/telemetry/loki"
)

const (
	pushTimeout  = 10 * time.Second
	pushAttempts = 3
	pushBackoff  = 2 * time.Second
)

// eventSource is the subset of *kafka.Reader the forwarder uses.
type eventSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type eventSink interface {
	PushEvent(ctx context.Context, raw []byte) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("worker: KAFKA_BROKERS is required")
	}
	if cfg.LokiURL == "" {
		log.Fatal("worker: LOKI_URL is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.LifecycleKafkaTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink := loki.NewClient(cfg.LokiURL, map[string]string{"env": cfg.Env})
	log.Printf("worker: forwarding lifecycle events from %s (group %s) to %s", cfg.LifecycleKafkaTopic, cfg.KafkaGroupID, cfg.LokiURL)
	forward(ctx, reader, sink, pushBackoff)
	log.Println("worker: stopped")
}

// forward pushes each message to sink and commits it once pushed. A message
// that still fails after pushAttempts is logged and committed anyway.
func forward(ctx context.Context, src eventSource, sink eventSink, backoff time.Duration) {
	for {
		msg, err := src.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("worker: kafka fetch error: %v", err)
			continue
		}
		if err := pushWithRetry(ctx, sink, msg.Value, backoff); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("worker: dropping event at %s/%d offset %d: %v", msg.Topic, msg.Partition, msg.Offset, err)
		}
		if err := src.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Printf("worker: kafka commit error: %v", err)
		}
	}
}

func pushWithRetry(ctx context.Context, sink eventSink, raw []byte, backoff time.Duration) error {
	var err error
	for attempt := 1; attempt <= pushAttempts; attempt++ {
		pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
		err = sink.PushEvent(pushCtx, raw)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == pushAttempts {
			break
		}
		log.Printf("worker: loki push failed (attempt %d): %v", attempt, err)
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(backoff):
		}
	}
	return err
}
