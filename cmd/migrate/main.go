// migrate runs DB migrations from embedded SQL against Postgres (DATABASE_URL) or SQLite (DATABASE_PATH).
package main

import (
	"flag"
	"fmt"
	"os"

	"trial-access-bot/internal/config"
	"trial-access-bot/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	dialect, dsn := cfg.Database()
	if err := migrate.Run(dialect, dsn, *direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	fmt.Printf("migrate: %s %s done\n", dialect, *direction)
}
