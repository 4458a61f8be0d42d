package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	countersignal "github.com/YannKr/countersignal"
	"github.com/YannKr/countersignal/internal/cleanup"
	"github.com/YannKr/countersignal/internal/config"
	"github.com/YannKr/countersignal/internal/db"
	"github.com/YannKr/countersignal/internal/diskstat"
	"github.com/YannKr/countersignal/internal/email"
	"github.com/YannKr/countersignal/internal/engine"
	"github.com/YannKr/countersignal/internal/generator"
	"github.com/YannKr/countersignal/internal/handler"
	"github.com/YannKr/countersignal/internal/listener"
	"github.com/YannKr/countersignal/internal/model"
	"github.com/YannKr/countersignal/internal/scoring"
	"github.com/YannKr/countersignal/internal/sse"
	"github.com/YannKr/countersignal/internal/webhook"
	"github.com/YannKr/countersignal/internal/worker"
)

func Run(ctx context.Context, cfg *config.Config) error {
	for _, dir := range []string{cfg.DataDir, filepath.Join(cfg.DataDir, "artifacts")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database, countersignal.MigrationFS); err != nil {
		return err
	}
	slog.Info("database ready")
	store := db.NewStore(database)

	registry, err := generator.NewRegistry()
	if err != nil {
		return err
	}
	slog.Info("technique registry loaded", "pairs", registry.Len(), "formats", len(registry.Formats()))

	pool := worker.NewPool(cfg.WorkerCount, cfg.ItemTimeout)
	pool.Start(ctx)
	defer pool.Stop()

	eng := engine.New(registry, store, pool, engine.Options{
		DataDir: cfg.DataDir,
		Verify:  cfg.VerifyArtifacts,
	})

	policy, err := scoring.NewPolicy(cfg.Scoring)
	if err != nil {
		return err
	}

	spool, closeSpool, err := openSpool(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSpool()

	webhooks := webhook.NewNotifier(cfg.WebhookURL, cfg.WebhookSecret, model.Confidence(cfg.WebhookMinConfidence))
	defer webhooks.Close()
	if webhooks.Enabled() {
		slog.Info("webhook enabled", "url", cfg.WebhookURL, "min_confidence", webhooks.MinConfidence)
	}

	mailer := &email.Mailer{
		Host:          cfg.SMTPHost,
		Port:          cfg.SMTPPort,
		User:          cfg.SMTPUser,
		Pass:          cfg.SMTPPass,
		From:          cfg.SMTPFrom,
		To:            cfg.AlertEmailTo,
		MinConfidence: model.Confidence(cfg.AlertEmailMinConfidence),
	}
	defer mailer.Close()
	if mailer.Enabled() {
		slog.Info("email alerts enabled", "host", cfg.SMTPHost, "to", cfg.AlertEmailTo)
	}

	sseHub := sse.New()

	callbacks := listener.New(store, scoring.New(policy), spool, listener.Options{
		Timeout:         cfg.CallbackTimeout,
		Hub:             sseHub,
		Notifier:        listener.Notifiers{webhooks, mailer},
		RequiredHeaders: cfg.Scoring.RequiredHeaders,
	})

	retrier := &listener.Retrier{
		Listener:   callbacks,
		Spool:      spool,
		DeadLetter: &listener.DeadLetter{Path: cfg.DeadLetterPath},
		Interval:   cfg.RetryInterval,
	}
	retrier.Start(ctx)
	defer retrier.Stop()

	cleaner := &cleanup.Cleaner{
		DB:        database,
		DataDir:   cfg.DataDir,
		Interval:  time.Duration(cfg.CleanupIntervalMins) * time.Minute,
		Retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
	}
	cleaner.Start(ctx)
	defer cleaner.Stop()

	diskCache := diskstat.New(cfg.DataDir, 60*time.Second)
	diskCache.Start()
	defer diskCache.Stop()

	// operator API: 5 req/sec sustained, burst 60
	apiRL := handler.NewRateLimiter(rate.Limit(5), 60)
	defer apiRL.Stop()

	h := handler.New(database, cfg, eng, registry, sseHub, retrier)
	h.Disk = diskCache
	router := h.Routes(callbacks, apiRL)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}
	slog.Info("server starting", "addr", ln.Addr().String(), "base_url", cfg.BaseURL)
	return serve(ctx, srv, ln)
}

// serve runs srv on ln until ctx is done. It returns only after Shutdown
// has drained in-flight requests, so callbacks still being spooled finish
// before the caller's deferred stops run.
func serve(ctx context.Context, srv *http.Server, ln net.Listener) error {
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown incomplete", "error", err)
		}
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-shutdownDone
	return nil
}

// openSpool picks the Redis list when REDIS_URL is set so spooled callbacks
// survive a restart; otherwise callbacks wait in memory. The returned func
// releases the spool's connection.
func openSpool(ctx context.Context, cfg *config.Config) (listener.Spool, func(), error) {
	if cfg.RedisURL == "" {
		slog.Info("callback spool in memory")
		return listener.NewMemorySpool(), func() {}, nil
	}
	client, err := listener.DialRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("callback spool on redis", "key", cfg.SpoolKey)
	closeClient := func() {
		if err := client.Close(); err != nil {
			slog.Warn("closing redis client", "error", err)
		}
	}
	return listener.NewRedisSpool(client, cfg.SpoolKey), closeClient, nil
}
