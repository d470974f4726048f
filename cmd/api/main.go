package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"notesflow/api/internal/app"
	"notesflow/api/internal/cache"
	"notesflow/api/internal/config"
	"notesflow/api/internal/events"
	"notesflow/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	cacheClient, err := cache.New(cfg.RedisURL, cfg.PageCacheTTL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer cacheClient.Close()

	var publisher events.Publisher = events.NoopPublisher{}
	if strings.TrimSpace(cfg.NATSURL) != "" {
		natsPublisher, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			// Events are best-effort; the API stays up without the broker.
			log.Printf("WARNING: nats connection failed, events disabled: %v", err)
		} else {
			defer natsPublisher.Close()
			publisher = natsPublisher
		}
	} else {
		log.Printf("NATS_URL not set, events disabled")
	}
	notifier := events.NewNotifier(publisher)

	service := app.New(dataStore, cacheClient, notifier)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Notesflow API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
