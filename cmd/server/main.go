package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/seamark/payrecon/internal/api"
	"github.com/seamark/payrecon/internal/cache"
	"github.com/seamark/payrecon/internal/checkout"
	"github.com/seamark/payrecon/internal/config"
	"github.com/seamark/payrecon/internal/gateway"
	"github.com/seamark/payrecon/internal/ledger"
	"github.com/seamark/payrecon/internal/mailer"
	"github.com/seamark/payrecon/internal/order"
	"github.com/seamark/payrecon/internal/reconcile"
	"github.com/seamark/payrecon/internal/store"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	cfgPath := flag.String("config", "configs/server.yaml", "Path to server YAML config")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}

	// ── Database ─────────────────────────────────────────────────────────────
	db, err := sql.Open("postgres", cfg.Store.DSN)
	if err != nil {
		slog.Error("failed to open database", "err", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.Store.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Store.MaxIdleConns)
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		slog.Error("database unreachable", "err", err)
		os.Exit(1)
	}
	pingCancel()

	// ── Mail queue ────────────────────────────────────────────────────────────
	// Checkout and reconciliation survive a dead broker: emails degrade to log
	// lines instead of blocking payment processing.
	var mail mailer.Mailer
	if conn, err := amqp.Dial(cfg.Queue.URL); err != nil {
		slog.Warn("mail queue unreachable, falling back to log mailer", "err", err)
		mail = &mailer.LogMailer{Log: logger}
	} else {
		defer conn.Close()
		m, err := mailer.NewAMQP(conn)
		if err != nil {
			slog.Error("failed to declare mail queue", "err", err)
			os.Exit(1)
		}
		mail = m
	}

	// ── Wiring ────────────────────────────────────────────────────────────────
	numbers, err := order.NewNumberGenerator(cfg.Store.SnowflakeNodeID)
	if err != nil {
		slog.Error("failed to init order number generator", "err", err)
		os.Exit(1)
	}

	st := store.New(db)
	led := ledger.New(db, logger)
	dedup := cache.New()
	gw := gateway.NewHMAC(cfg.Gateway.Endpoint, cfg.Gateway.APIKey, cfg.Gateway.WebhookSecret)

	rec := reconcile.New(led, dedup, st, mail, logger)
	co := checkout.New(st, gw, loader, numbers, logger)

	stopJanitor := make(chan struct{})
	go dedup.Janitor(10*time.Minute, stopJanitor)

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.Config) {
		if err := config.Validate(newCfg); err != nil {
			slog.Warn("hot-reload skipped: config invalid", "err", err)
			return
		}
		gw.SetWebhookSecret(newCfg.Gateway.WebhookSecret)
		slog.Info("config hot-reloaded", "tenants", len(newCfg.Tenants))
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.New(rec, co, st, gw, led, loader)
	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	close(stopJanitor)
	_ = db.Close()
	slog.Info("goodbye")
}
