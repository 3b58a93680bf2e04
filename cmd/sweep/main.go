// sweep runs one expiry sweep against the configured database and prints the report.
// Use it to catch up after downtime or from an external scheduler.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"trial-access-bot/internal/app"
	"trial-access-bot/internal/config"
	"trial-access-bot/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.ChatID == "" {
		fmt.Fprintln(os.Stderr, "CHAT_ID is not set")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	a, err := app.New(ctx, cfg, "trial-access-sweep")
	if err != nil {
		fmt.Fprintln(os.Stderr, "sweep:", err)
		os.Exit(1)
	}
	report, err := a.Access.Sweep(ctx)
	time.Sleep(telemetry.ShutdownDrainDuration)
	a.Close(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sweep:", err)
		os.Exit(1)
	}
	fmt.Printf("scanned=%d revoked=%d notified=%d cleared=%d skipped=%d failed=%d\n",
		report.Scanned, report.Revoked, report.Notified, report.Cleared, report.Skipped, report.Failed)
	if report.Failed > 0 {
		os.Exit(2)
	}
}
