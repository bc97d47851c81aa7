package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rawblock/txrisk-engine/internal/api"
	"github.com/rawblock/txrisk-engine/internal/config"
	"github.com/rawblock/txrisk-engine/internal/engine"
	"github.com/rawblock/txrisk-engine/internal/forest"
	"github.com/rawblock/txrisk-engine/internal/graph"
	"github.com/rawblock/txrisk-engine/internal/metrics"
	"github.com/rawblock/txrisk-engine/internal/notify"
	"github.com/rawblock/txrisk-engine/internal/profile"
	"github.com/rawblock/txrisk-engine/internal/review"
	"github.com/rawblock/txrisk-engine/internal/rules"
	"github.com/rawblock/txrisk-engine/internal/silence"
	"github.com/rawblock/txrisk-engine/internal/store"
	"github.com/rawblock/txrisk-engine/internal/tuning"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if os.Getenv("LOG_PRETTY") == "true" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load(getEnvOrDefault("CONFIG_FILE", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("configuration rejected")
	}
	log.Info().Str("port", cfg.Server.Port).Msg("starting transaction risk engine")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ─── Store ──────────────────────────────────────────────────────
	// DATABASE_URL selects Postgres; without it the engine runs on the
	// in-memory store (development and tests only: nothing survives a
	// restart).
	var st store.Store
	if cfg.Store.PostgresURL != "" {
		pg, err := store.Connect(ctx, cfg.Store.PostgresURL)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres connect failed")
		}
		if err := pg.InitSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("schema init failed")
		}
		st = pg
		log.Info().Msg("using postgres store")
	} else {
		st = store.NewMemory()
		log.Warn().Msg("DATABASE_URL not set, using in-memory store")
	}
	defer st.Close()

	// ─── Services ───────────────────────────────────────────────────
	profiles := profile.NewService(st, cfg.Profile.EwmaAlpha)

	registry := rules.NewRegistry(st, time.Duration(cfg.Rules.CacheRefreshSeconds)*time.Second)
	if cfg.Rules.SeedDefaults {
		if err := registry.Seed(ctx); err != nil {
			log.Fatal().Err(err).Msg("rule seed failed")
		}
	} else if err := registry.Reload(ctx); err != nil {
		log.Fatal().Err(err).Msg("rule load failed")
	}

	beneGraph := graph.New(st, time.Duration(cfg.Graph.RefreshSeconds)*time.Second)
	forests := forest.NewManager(st, cfg.Forest.ModelCacheSize, cfg.Forest.SampleWindow, cfg.Forest.MinTrainSamples)
	queue := review.NewQueue(st)

	wsHub := api.NewHub()
	go wsHub.Run()

	dispatcher := notify.NewDispatcher(cfg.Notify.BufferSize, notify.LogSink{}, wsHub)
	if cfg.Notify.WebhookURL != "" {
		dispatcher.AddSink(notify.NewWebhookSink(cfg.Notify.WebhookURL))
		log.Info().Msg("webhook notifications enabled")
	}
	go dispatcher.Run(ctx)

	sink := metrics.NewPrometheus()

	eng := engine.New(st, profiles, registry, beneGraph, forests, queue, dispatcher, sink, engine.Options{
		AlertThreshold:      cfg.Engine.AlertThreshold,
		BlockThreshold:      cfg.Engine.BlockThreshold,
		MinProfileTxns:      cfg.Engine.MinProfileTxns,
		EvaluationTimeout:   time.Duration(cfg.Engine.EvaluationTimeoutMs) * time.Millisecond,
		AutoAcceptTimeoutMs: cfg.Review.AutoAcceptTimeoutMs,
		AcceptedTxnTypes:    cfg.Engine.AcceptedTxnTypes,
		Workers:             cfg.Engine.Workers,
	})

	// ─── Background loops ───────────────────────────────────────────
	go registry.Run(ctx)
	go beneGraph.Run(ctx)

	sweeper := review.NewSweeper(queue, time.Duration(cfg.Review.AutoAcceptCheckIntervalSeconds)*time.Second)
	go sweeper.Run(ctx)

	if cfg.Tuning.Enabled {
		tuner := tuning.NewTuner(queue, registry, st, tuning.Config{
			MinSamples:       cfg.Tuning.MinSamples,
			MaxAdjustmentPct: cfg.Tuning.MaxAdjustmentPct,
			WeightFloor:      cfg.Tuning.WeightFloor,
			WeightCeiling:    cfg.Tuning.WeightCeiling,
			InitialDelay:     time.Duration(cfg.Tuning.InitialDelayMinutes) * time.Minute,
			Interval:         time.Duration(cfg.Tuning.IntervalHours) * time.Hour,
		})
		go tuner.Run(ctx)
	}

	if cfg.Silence.Enabled {
		monitor := silence.NewMonitor(st, dispatcher, silence.Config{
			CheckInterval:     time.Duration(cfg.Silence.CheckIntervalMinutes) * time.Minute,
			SilenceMultiplier: cfg.Silence.SilenceMultiplier,
			MinExpectedTps:    cfg.Silence.MinExpectedTps,
			MinCompletedHours: cfg.Silence.MinCompletedHours,
		})
		go monitor.Run(ctx)
	}

	trainer := forest.NewTrainer(forests, time.Duration(cfg.Forest.TrainIntervalMinutes)*time.Minute)
	go trainer.Run(ctx)

	go reportQueueDepth(ctx, queue, sink)

	// ─── HTTP surface ───────────────────────────────────────────────
	router := api.SetupRouter(eng, queue, registry, forests, wsHub, cfg.Server)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
}

// reportQueueDepth keeps the review-queue gauge current.
func reportQueueDepth(ctx context.Context, queue *review.Queue, sink metrics.Sink) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counts, err := queue.CountByStatus(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("queue depth poll failed")
				continue
			}
			sink.ReviewQueueDepth(int(counts.Pending))
		}
	}
}

// getEnvOrDefault returns the env var value or a default for non-secret
// settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
