// Command sweep removes expired refresh tokens from PostgreSQL. Intended to
// run from cron; the Redis store expires its keys on its own and does not
// need sweeping.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"modelgate.org/internal/auth"
)

func main() {
	log.SetFlags(0)
	dsn := flag.String("dsn", os.Getenv("MODELGATE_PG_DSN"), "PostgreSQL DSN")
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or MODELGATE_PG_DSN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store := auth.NewPGRefreshTokenStore(db)
	removed, err := store.SweepExpired(ctx)
	if err != nil {
		log.Fatalf("sweep: %v", err)
	}
	log.Printf("removed %d expired refresh tokens", removed)
}
