package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"replybot/internal/config"
	"replybot/internal/domain"
	"replybot/internal/intent"
	"replybot/internal/journal"
	"replybot/internal/metrics"
	"replybot/internal/provider"
	"replybot/internal/reply"
)

const journalPruneInterval = time.Hour

// app holds everything a reply turn needs, built once from config.
type app struct {
	cfg      *config.Config
	services *provider.Services
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	journal  *journal.SQLiteStore
	orch     *reply.Orchestrator
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	a.services = provider.NewServices(cfg, provider.SharedHTTPClient(0), logger)

	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.metrics = metrics.New(a.registry)
	}

	var turnJournal domain.TurnJournal
	if cfg.Journal.Enabled {
		store, err := journal.NewSQLiteStore(cfg.Journal.DBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("turn journal: %w", err)
		}
		a.journal = store
		turnJournal = store
	}

	detector := intent.NewDetector(map[intent.Intent][]string{
		intent.Image:     cfg.Triggers.Image,
		intent.WebSearch: cfg.Triggers.WebSearch,
	}, logger)

	a.orch = reply.New(reply.Config{
		Completer:        a.services.Completion,
		Images:           a.services.ImageGenerator(),
		Speech:           a.services.SpeechSynthesizer(),
		Detector:         detector,
		Metrics:          a.metrics,
		Journal:          turnJournal,
		Logger:           logger,
		TypingIndicator:  cfg.Reply.TypingIndicator,
		ImageFailureNote: cfg.Reply.ImageFailureNote,
	})

	for service, ok := range a.services.Credentials() {
		if !ok {
			logger.Warn("service credential missing", "service", service)
		}
	}
	return a, nil
}

func (a *app) dispatcher(bus domain.MessageBus) *reply.Dispatcher {
	var limiter *reply.RateLimiter
	if a.cfg.General.RatePerMinute > 0 {
		limiter = reply.NewRateLimiter(a.cfg.General.RateBurst, a.cfg.General.RatePerMinute)
	}
	return reply.NewDispatcher(reply.DispatcherConfig{
		Orchestrator: a.orch,
		Bus:          bus,
		Logger:       logger,
		Concurrency:  a.cfg.General.MaxConcurrentMessages,
		Limiter:      limiter,
	})
}

// startBackground runs the metrics endpoint and journal pruning until ctx
// is done.
func (a *app) startBackground(ctx context.Context) {
	if a.registry != nil {
		go a.serveMetrics(ctx)
	}
	if a.journal != nil {
		go a.pruneJournal(ctx)
	}
}

func (a *app) serveMetrics(ctx context.Context) {
	path := a.cfg.Metrics.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, metrics.Handler(a.registry))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              a.cfg.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", "addr", srv.Addr, "path", path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server error", "err", err)
	}
}

func (a *app) pruneJournal(ctx context.Context) {
	retention := time.Duration(a.cfg.Journal.RetentionDays) * 24 * time.Hour
	prune := func() {
		if _, err := a.journal.PruneBefore(ctx, time.Now().Add(-retention)); err != nil && ctx.Err() == nil {
			logger.Warn("journal prune failed", "err", err)
		}
	}

	prune()
	ticker := time.NewTicker(journalPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

func (a *app) Close() error {
	if a.journal != nil {
		return a.journal.Close()
	}
	return nil
}
