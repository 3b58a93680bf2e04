// seed inserts sample principals for local testing: one active grant, one expired grant
// awaiting the sweep, one consumed trial, and one with only a language set.
// Idempotent: skips inserts if the first sample principal already exists.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"trial-access-bot/internal/config"
	"trial-access-bot/internal/db"
	"trial-access-bot/internal/db/migrate"
	"trial-access-bot/internal/principal/domain"
	"trial-access-bot/internal/principal/repository"
)

const (
	activePrincipalID   int64 = 900001
	expiredPrincipalID  int64 = 900002
	consumedPrincipalID int64 = 900003
	localePrincipalID   int64 = 900004
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Env == "production" {
		log.Fatal("seed: refusing to run with APP_ENV=production")
	}

	dialect, dsn := cfg.Database()
	if err := migrate.Run(dialect, dsn, "up"); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	conn, err := db.Open(dialect, dsn)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	repo := repository.NewSQLRepository(conn, dialect)
	ctx := context.Background()

	existing, err := repo.Get(ctx, activePrincipalID)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Printf("Seed already applied (principal %d exists). Skipping.", activePrincipalID)
		os.Exit(0)
	}

	now := time.Now().UTC()
	ttl := cfg.CredentialTTL()

	if err := repo.UpsertLocale(ctx, activePrincipalID, "pt", now); err != nil {
		log.Fatalf("active principal locale: %v", err)
	}
	if err := repo.SetGrant(ctx, activePrincipalID, sampleGrant(now.Add(-5*time.Minute), ttl, "active"), cfg.DefaultLocale); err != nil {
		log.Fatalf("active principal grant: %v", err)
	}

	if err := repo.UpsertLocale(ctx, expiredPrincipalID, "en", now); err != nil {
		log.Fatalf("expired principal locale: %v", err)
	}
	if err := repo.SetGrant(ctx, expiredPrincipalID, sampleGrant(now.Add(-ttl-5*time.Minute), ttl, "expired"), cfg.DefaultLocale); err != nil {
		log.Fatalf("expired principal grant: %v", err)
	}

	consumed := sampleGrant(now.Add(-24*time.Hour), ttl, "consumed")
	if err := repo.SetGrant(ctx, consumedPrincipalID, consumed, "en"); err != nil {
		log.Fatalf("consumed principal grant: %v", err)
	}
	if _, err := repo.ClearGrant(ctx, consumedPrincipalID, consumed.ExpiresAt); err != nil {
		log.Fatalf("consumed principal clear: %v", err)
	}

	if err := repo.UpsertLocale(ctx, localePrincipalID, "es", now); err != nil {
		log.Fatalf("locale principal: %v", err)
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("active=%d expired_pending=%d consumed=%d locale_only=%d\n",
		activePrincipalID, expiredPrincipalID, consumedPrincipalID, localePrincipalID)
}

func sampleGrant(issuedAt time.Time, ttl time.Duration, name string) domain.Grant {
	return domain.Grant{
		InviteLink: "https://t.me/+seed-" + name,
		IssuedAt:   issuedAt,
		ExpiresAt:  issuedAt.Add(ttl),
	}
}
