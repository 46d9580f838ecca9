package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nik-kale/guidekit/internal/api"
	"github.com/nik-kale/guidekit/internal/audit"
	"github.com/nik-kale/guidekit/internal/condition"
	"github.com/nik-kale/guidekit/internal/config"
	"github.com/nik-kale/guidekit/internal/experiment"
	"github.com/nik-kale/guidekit/internal/flow"
	"github.com/nik-kale/guidekit/internal/segment"
	"github.com/nik-kale/guidekit/internal/snapshot"
	"github.com/nik-kale/guidekit/internal/store"
	"github.com/nik-kale/guidekit/internal/telemetry"
	"github.com/nik-kale/guidekit/internal/webhook"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config validation failed")
	}

	ctx := context.Background()
	st, err := store.NewStore(ctx, cfg.StoreType, cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	defer func() { _ = st.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.New(reg)

	eval := condition.NewEvaluator(log)
	segments := segment.NewEngine(log)
	experiments := experiment.NewEngine(log, cfg.BucketSalt,
		experiment.WithSegments(segments),
		experiment.WithStore(st),
	)
	flows := flow.NewEngine(log, flow.WithStore(st))

	trail := audit.NewTrail(log, audit.NewLogSink(log), audit.NewStoreSink(st))
	opts := []api.ServerOption{
		api.WithSnapshot(snapshot.NewHolder()),
		api.WithAudit(trail),
	}
	if cfg.WebhookURL != "" {
		hooks := webhook.NewDispatcher(log, []webhook.Endpoint{{
			URL:        cfg.WebhookURL,
			Secret:     cfg.WebhookSecret,
			MaxRetries: 3,
		}})
		hooks.Start()
		defer func() { _ = hooks.Close() }()
		opts = append(opts, api.WithWebhooks(hooks))
	}

	srvAPI := api.NewServer(log, cfg.AdminAPIKey, cfg.RateLimitPerIP, eval, segments, experiments, flows, metrics, opts...)

	// No WriteTimeout: /v1/definitions long-polls for up to 60s.
	srv := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     srvAPI.Router(),
		ReadTimeout: 3 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	metricsSrv := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
		if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctxShut, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShut)
	_ = metricsSrv.Shutdown(ctxShut)
	log.Info().Msg("stopped")
}
