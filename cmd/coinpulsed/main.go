package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"coinpulse/internal/application/port"
	"coinpulse/internal/application/service"
	"coinpulse/internal/domain"
	"coinpulse/internal/infrastructure/cache"
	"coinpulse/internal/infrastructure/config"
	"coinpulse/internal/infrastructure/feed/polygon"
	"coinpulse/internal/infrastructure/logger"
	"coinpulse/internal/infrastructure/storage"
	"coinpulse/internal/infrastructure/storage/composite"
	redisstore "coinpulse/internal/infrastructure/storage/redis"
	"coinpulse/internal/interfaces/httpapi"
)

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Setup("info")
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// durable store
	repo, err := storage.Open(cfg.Storage.Driver, cfg.Storage.SQLitePath, cfg.Storage.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("open storage failed")
	}
	defer repo.Close()

	// optional redis mirror and signal publisher
	sink := port.PriceSink(repo)
	var publisher port.SignalPublisher
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis ping failed")
		}
		mirror := redisstore.New(rdb, cfg.Redis.Prefix, time.Duration(cfg.Redis.TTLSec)*time.Second)
		defer mirror.Close()
		sink = composite.New(repo, mirror)
		publisher = mirror
	}

	quotes := cache.New(time.Duration(cfg.App.StalenessWindowMS) * time.Millisecond)

	queue := service.NewPersistQueue(sink, cfg.Storage.QueueDepth, cfg.Storage.Workers)
	queue.Start(ctx)
	defer queue.Stop()

	tracker := service.NewSignalTracker(repo, publisher)
	if err := tracker.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("signal tracker start failed")
	}

	ingest := service.NewIngestService(quotes, queue, tracker)
	queries := service.NewQueryService(quotes, repo)
	signals := service.NewSignalService(repo, quotes, tracker, publisher)

	// feed
	feed := polygon.New(polygon.Config{
		URL:               cfg.Feed.WsURL,
		APIKey:            cfg.Feed.APIKey,
		Symbols:           cfg.Feed.Symbols,
		DialTimeout:       time.Duration(cfg.Feed.DialTimeoutSec) * time.Second,
		HeartbeatInterval: time.Duration(cfg.Feed.HeartbeatSec) * time.Second,
		BackoffBase:       time.Duration(cfg.Feed.BackoffBaseSec) * time.Second,
		BackoffMax:        time.Duration(cfg.Feed.BackoffMaxSec) * time.Second,
		MaxAttempts:       cfg.Feed.MaxReconnects,
	}, domain.NewSymbolMapper())

	events, err := feed.Subscribe(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("feed subscribe failed")
	}
	defer feed.Close()

	go func() {
		if err := ingest.Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("ingestion exited")
		}
		if err := feed.Err(); errors.Is(err, polygon.ErrFeedUnavailable) {
			log.Error().Err(err).Msg("feed unavailable, shutting down")
			stop()
		}
	}()

	// retention pruning
	go prune(ctx, repo, cfg.App.RetentionDays)

	// http api + websocket broadcast
	hub := httpapi.NewHub(queries, time.Duration(cfg.App.BroadcastEverySec)*time.Second)
	go hub.Run(ctx)

	router := httpapi.NewRouter(&httpapi.Config{
		PriceHandler:  httpapi.NewPriceHandler(queries),
		SignalHandler: httpapi.NewSignalHandler(signals),
		SystemHandler: httpapi.NewSystemHandler(feed, quotes),
		Hub:           hub,
	})
	server := &http.Server{Addr: cfg.App.HTTPAddr, Handler: router}

	go func() {
		log.Info().
			Str("addr", cfg.App.HTTPAddr).
			Int("symbols", len(cfg.Feed.Symbols)).
			Str("driver", cfg.Storage.Driver).
			Msg("coinpulse started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server exited")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	log.Info().Msg("coinpulse stopped")
}

func prune(ctx context.Context, repo port.Repository, retentionDays int) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -retentionDays)
			n, err := repo.DeleteOldPrices(ctx, cutoff)
			if err != nil {
				log.Error().Err(err).Msg("price pruning failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("rows", n).Int("retention_days", retentionDays).Msg("old prices pruned")
			}
		}
	}
}
