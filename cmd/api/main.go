package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"modelgate.org/internal/auth"
	"modelgate.org/internal/config"
	"modelgate.org/internal/crypto"
	"modelgate.org/internal/httpapi"
	"modelgate.org/internal/obs"
	"modelgate.org/internal/stream"
	"modelgate.org/internal/target"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	km, err := crypto.LoadKeyMaterial(cfg.MasterKeyB64, cfg.SigningKeyB64)
	if err != nil {
		log.Fatalf("key material: %v", err)
	}
	access, err := auth.NewAccessTokens(km, cfg.AccessTTL)
	if err != nil {
		log.Fatalf("access tokens: %v", err)
	}

	var db *sql.DB
	if cfg.PGDSN != "" {
		db, err = sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	var (
		users   auth.UserStore
		refresh auth.RefreshTokenStore
		targets target.Store
	)
	switch {
	case db != nil:
		users = auth.NewPGUserStore(db)
		refresh = auth.NewPGRefreshTokenStore(db,
			auth.WithRefreshTTL(cfg.RefreshTTL),
			auth.WithRefreshTokenBytes(cfg.RefreshTokenBytes),
		)
		targets = target.NewPGStore(db)
	default:
		log.Println("MODELGATE_PG_DSN not set; using in-memory stores (dev only)")
		users = auth.NewMemoryUserStore()
		refresh = auth.NewMemoryRefreshTokenStore(
			auth.WithMemoryRefreshTTL(cfg.RefreshTTL),
		)
		targets = target.NewMemoryStore()
	}

	// Redis replaces the refresh store when configured; users and targets
	// stay wherever the DSN put them.
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		redisStore, err := auth.NewRedisRefreshTokenStore(client,
			auth.WithRedisRefreshTTL(cfg.RefreshTTL),
			auth.WithRedisRefreshTokenBytes(cfg.RefreshTokenBytes),
		)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		refresh = redisStore
	}

	events := stream.New()
	sessions := auth.NewService(users, refresh, access,
		auth.WithEventStream(events),
		auth.WithRefreshLifetime(cfg.RefreshTTL),
	)
	registry := target.NewRegistry(cfg.OpenAIBaseURL, cfg.LocalModelBaseURL)
	targetSvc := target.NewService(targets, crypto.NewFieldCipher(km), registry,
		target.WithEventStream(events),
	)

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, sessions, targetSvc,
		httpapi.WithFrontendOrigin(cfg.FrontendOrigin),
		httpapi.WithSecureCookies(cfg.SecureCookies),
		httpapi.WithEventStream(events),
	)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// SSE connections outlive the write timeout; WriteTimeout stays off
		// and slow clients are bounded by the event drop policy instead.
		IdleTimeout: 60 * time.Second,
	}

	log.Printf("Starting modelgate-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
