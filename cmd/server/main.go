// Sentigraph - Social Data Aggregation and Sentiment Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentigraph

// Package main is the entry point for the Sentigraph pipeline server.
//
// Sentigraph aggregates third-party account data (calendar entries, social
// pages, tweets, reviews) per user, caches it in a local document store,
// enriches it with sentiment metadata, and refreshes it on a schedule.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered loading (env > config file > defaults)
//  2. Logging: zerolog via internal/logging
//  3. Store: BadgerDB document store (or in-memory for development)
//  4. Registry: provider descriptors, registered at startup
//  5. Sentiment: HTTP scorer client (disabled when unconfigured)
//  6. DAL: cache/access layer shared by pipelines and callers
//  7. Pipelines: load (hourly) and snapshot (daily) behind the dispatcher
//  8. Transport: Watermill consumer (gochannel or NATS JetStream)
//  9. Supervision: suture tree running transport, scheduler, and HTTP
//
// # Configuration
//
// Environment variables override the config file, which overrides defaults:
//
//	SENTIGRAPH_STORE_TYPE=badger
//	SENTIGRAPH_STORE_PATH=/var/lib/sentigraph
//	SENTIGRAPH_TRANSPORT_TYPE=nats
//	SENTIGRAPH_TRANSPORT_NATS_URL=nats://localhost:4222
//	SENTIGRAPH_SENTIMENT_URL=http://scorer:9200/v1/analyze
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the supervisor stops all
// services, detached store writes are flushed, and the store is closed.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/sentigraph/internal/api"
	"github.com/tomtom215/sentigraph/internal/config"
	"github.com/tomtom215/sentigraph/internal/dal"
	"github.com/tomtom215/sentigraph/internal/logging"
	"github.com/tomtom215/sentigraph/internal/models"
	"github.com/tomtom215/sentigraph/internal/pipeline"
	"github.com/tomtom215/sentigraph/internal/registry"
	"github.com/tomtom215/sentigraph/internal/sentiment"
	"github.com/tomtom215/sentigraph/internal/store"
	"github.com/tomtom215/sentigraph/internal/supervisor"
	"github.com/tomtom215/sentigraph/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("configuration failed")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	st, err := store.New(cfg.Store.Type, cfg.Store.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("store initialization failed")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("store close failed")
		}
	}()

	// Provider modules register their descriptors here at startup. The
	// core only consumes descriptors; provider auth and request signing
	// live with the provider implementations.
	reg := registry.New()

	var scorer sentiment.Scorer = sentiment.Disabled{}
	if cfg.Sentiment.URL != "" {
		scorer, err = sentiment.NewHTTPScorer(sentiment.ClientConfig{
			URL:               cfg.Sentiment.URL,
			APIKey:            cfg.Sentiment.APIKey,
			Timeout:           cfg.Sentiment.Timeout,
			RequestsPerSecond: cfg.Sentiment.RequestsPerSecond,
		})
		if err != nil {
			logging.Fatal().Err(err).Msg("sentiment scorer initialization failed")
		}
	} else {
		logging.Warn().Msg("no sentiment scorer configured, free-text scoring disabled")
	}

	d := dal.New(st, scorer)

	dispatcher := pipeline.NewDispatcher(st, map[string]*pipeline.Section{
		models.ActionInvokeLoad: {
			Name:     models.SectionLoad,
			Interval: cfg.Pipeline.LoadInterval,
			Buffer:   cfg.Pipeline.Buffer,
			Runner:   pipeline.NewLoadPipeline(st, reg, d, cfg.Pipeline.Workers),
		},
		models.ActionInvokeSnapshot: {
			Name:     models.SectionSnapshot,
			Interval: cfg.Pipeline.SnapshotInterval,
			Buffer:   cfg.Pipeline.Buffer,
			Runner:   pipeline.NewSnapshotPipeline(st, d),
		},
	})

	subscriber, publisher, err := buildTransport(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("transport initialization failed")
	}

	slogger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	tree := supervisor.NewTree(slogger, supervisor.DefaultTreeConfig())
	tree.AddMessagingService(transport.NewConsumer(subscriber, cfg.Transport.Topic, dispatcher.Handlers()))
	if cfg.Pipeline.SchedulerEnabled {
		tree.AddMessagingService(pipeline.NewTickerScheduler(publisher, cfg.Transport.Topic, []pipeline.ScheduleEntry{
			{Action: models.ActionInvokeLoad, Interval: cfg.Pipeline.LoadInterval},
			{Action: models.ActionInvokeSnapshot, Interval: cfg.Pipeline.SnapshotInterval},
		}))
	}
	tree.AddAPIService(api.NewServer(cfg.Server.ListenAddr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("store", cfg.Store.Type).
		Str("transport", cfg.Transport.Type).
		Bool("scheduler", cfg.Pipeline.SchedulerEnabled).
		Msg("sentigraph starting")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor exited with error")
	}

	// Flush fire-and-forget persistence before the store closes.
	d.Flush()
	logging.Info().Msg("sentigraph stopped")
}

// buildTransport creates the configured subscriber/publisher pair.
func buildTransport(cfg *config.Config) (message.Subscriber, message.Publisher, error) {
	switch cfg.Transport.Type {
	case "nats":
		natsCfg := transport.NATSConfig{
			URL:         cfg.Transport.NATS.URL,
			QueueGroup:  cfg.Transport.NATS.QueueGroup,
			DurableName: cfg.Transport.NATS.DurableName,
		}
		sub, err := transport.NewNATSSubscriber(natsCfg, nil)
		if err != nil {
			return nil, nil, err
		}
		pub, err := transport.NewNATSPublisher(natsCfg, nil)
		if err != nil {
			return nil, nil, err
		}
		return sub, pub, nil
	default:
		pubsub := transport.NewGoChannel()
		return pubsub, pubsub, nil
	}
}
