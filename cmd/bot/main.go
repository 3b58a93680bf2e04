// bot runs the trial access bot: Telegram long polling, the expiry sweep, promotional
// broadcasts, and the gRPC health endpoint.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpchealth "google.golang.org/grpc/health"

	"trial-access-bot/internal/app"
	"trial-access-bot/internal/bot/handler"
	"trial-access-bot/internal/broadcast"
	"trial-access-bot/internal/config"
	"trial-access-bot/internal/health"
	"trial-access-bot/internal/preference"
	"trial-access-bot/internal/scheduler"
	"trial-access-bot/internal/server"
	"trial-access-bot/internal/telegram"
	"trial-access-bot/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.ChatID == "" {
		log.Fatal("bot: CHAT_ID is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, "trial-access-bot")
	if err != nil {
		log.Fatalf("bot: %v", err)
	}

	gate := preference.NewGate(a.Records, a.Bundle, 0)
	updates := handler.New(a.Client, a.Access, gate, a.Records, a.Bundle, a.Audit, a.Emitter)

	sched := scheduler.New(ctx)
	err = sched.Every("expiry sweep", cfg.SweepInterval(), func(ctx context.Context) {
		if _, err := a.Access.Sweep(ctx); err != nil {
			log.Printf("bot: sweep: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("bot: %v", err)
	}
	if dests := cfg.RemarkingChatIDList(); len(dests) > 0 && cfg.TestBotUsername != "" {
		b := broadcast.New(a.Client, a.Bundle, dests, cfg.TestBotUsername, cfg.TransportTimeout())
		err = sched.Every("broadcast", cfg.RemarkingInterval(), func(ctx context.Context) {
			sent := b.Run(ctx)
			log.Printf("bot: broadcast sent to %d/%d chats", sent, len(dests))
		})
		if err != nil {
			log.Fatalf("bot: %v", err)
		}
	}

	healthServer := grpchealth.NewServer()
	go health.NewChecker(healthServer, a.DB, a.Policy, 0).Run(ctx)
	grpcServer := server.NewGRPCServer()
	server.RegisterServices(grpcServer, server.Deps{Health: healthServer})
	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		if err := server.Serve(ctx, grpcServer, cfg.HealthAddr); err != nil {
			log.Printf("bot: health server: %v", err)
		}
	}()

	sched.Start()
	log.Printf("bot: polling updates (credential ttl %v, sweep every %v)", cfg.CredentialTTL(), cfg.SweepInterval())
	telegram.NewPoller(a.Client, updates).Run(ctx)

	log.Println("bot: shutting down...")
	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sched.Stop(shutdownCtx)
	<-serveDone
	time.Sleep(telemetry.ShutdownDrainDuration)
	a.Close(shutdownCtx)
	log.Println("bot: stopped")
}
