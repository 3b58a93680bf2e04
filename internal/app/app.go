// Package app wires the bot's components from config. cmd/bot and cmd/sweep share it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"trial-access-bot/internal/access/service"
	"trial-access-bot/internal/audit"
	auditrepo "trial-access-bot/internal/audit/repository"
	"trial-access-bot/internal/config"
	"trial-access-bot/internal/db"
	"trial-access-bot/internal/db/migrate"
	"trial-access-bot/internal/i18n"
	"trial-access-bot/internal/policy/engine"
	"trial-access-bot/internal/principal/repository"
	"trial-access-bot/internal/telegram"
	"trial-access-bot/internal/telemetry"
	telemetryotel "trial-access-bot/internal/telemetry/otel"
	"trial-access-bot/internal/telemetry/producer"
)

// App holds the wired components of one process.
type App struct {
	Config    *config.Config
	DB        *sql.DB
	Bundle    *i18n.Bundle
	Client    *telegram.Client
	Records   repository.Repository
	Policy    *engine.OPAEvaluator
	Audit     *audit.Logger
	Emitter   telemetry.EventEmitter
	Metrics   *telemetry.Metrics
	Providers *telemetryotel.Providers
	Access    *service.Service

	stream producer.Producer
}

// New opens the database (running migrations when AUTO_MIGRATE is set), loads the catalogs
// and policy, sets up telemetry, and builds the access service. Call Close when done.
func New(ctx context.Context, cfg *config.Config, serviceName string) (*App, error) {
	a := &App{Config: cfg}

	dialect, dsn := cfg.Database()
	if cfg.AutoMigrate {
		if err := migrate.Run(dialect, dsn, "up"); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	conn, err := db.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	a.DB = conn

	a.Bundle, err = i18n.Load(cfg.DefaultLocale)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("i18n: %w", err)
	}

	policySrc, err := engine.LoadPolicyFile(cfg.AccessPolicyFile)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Policy, err = engine.NewOPAEvaluator(ctx, policySrc)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("policy: %w", err)
	}

	a.Providers, err = telemetryotel.NewProviders(ctx, telemetryotel.Settings{
		Endpoint:      cfg.OTLPEndpoint,
		Insecure:      cfg.OTLPInsecure,
		ServiceName:   serviceName,
		Environment:   cfg.Env,
		Destination:   cfg.ChatID,
		CredentialTTL: cfg.CredentialTTL(),
	})
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.Providers.SetGlobal()
	a.Metrics, err = telemetry.NewMetrics(a.Providers.Meter())
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("metrics: %w", err)
	}
	emitters := []telemetry.EventEmitter{telemetryotel.NewEventEmitter(a.Providers.LoggerProvider)}
	if p := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.LifecycleKafkaTopic); p != nil {
		a.stream = p
		emitters = append(emitters, p)
		log.Printf("telemetry: lifecycle events also written to kafka topic %s", cfg.LifecycleKafkaTopic)
	}
	a.Emitter = telemetry.Multi(emitters...)

	a.Records = repository.NewSQLRepository(conn, dialect)
	a.Audit = audit.NewLogger(auditrepo.NewSQLRepository(conn, dialect))
	a.Client, err = telegram.NewClient(cfg.BotToken, telegram.Options{
		BaseURL:       cfg.TelegramAPIURL,
		Timeout:       cfg.TransportTimeout(),
		PollTimeout:   cfg.PollTimeout(),
		RatePerSecond: cfg.TelegramRatePerSecond,
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Access = service.NewService(
		a.Records,
		telegram.NewGateway(a.Client),
		a.Policy,
		a.Bundle,
		a.Audit,
		a.Emitter,
		a.Metrics,
		service.Config{
			Destination:      cfg.ChatID,
			CredentialTTL:    cfg.CredentialTTL(),
			TransportTimeout: cfg.TransportTimeout(),
			DefaultLocale:    cfg.DefaultLocale,
			SweepConcurrency: cfg.SweepConcurrency,
		},
	)
	return a, nil
}

// Close releases the Kafka writer, telemetry providers, and database. Safe on a partially built App.
func (a *App) Close(ctx context.Context) {
	if a.stream != nil {
		if err := a.stream.Close(); err != nil {
			log.Printf("telemetry: kafka close: %v", err)
		}
	}
	if a.Providers != nil {
		_ = a.Providers.Shutdown(ctx)
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			log.Printf("db: close: %v", err)
		}
	}
}
