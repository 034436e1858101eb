// Sentigraph - Social Data Aggregation and Sentiment Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentigraph

package transport

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
)

// NATSConfig holds connection settings for the NATS JetStream backend.
type NATSConfig struct {
	// URL is the NATS server URL, e.g. nats://localhost:4222.
	URL string

	// QueueGroup load-balances consumption across multiple instances so a
	// scheduled action triggers exactly one pipeline run per delivery.
	QueueGroup string

	// DurableName is the JetStream durable consumer prefix.
	DurableName string

	// MaxReconnects bounds reconnection attempts. Default: 60.
	MaxReconnects int

	// ReconnectWait is the delay between reconnection attempts. Default: 2s.
	ReconnectWait time.Duration

	// AckWaitTimeout is how long JetStream waits for an ack before
	// redelivering. Default: 30s.
	AckWaitTimeout time.Duration
}

// DefaultNATSConfig returns production defaults for the NATS backend.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		QueueGroup:     "sentigraph-pipeline",
		DurableName:    "sentigraph",
		MaxReconnects:  60,
		ReconnectWait:  2 * time.Second,
		AckWaitTimeout: 30 * time.Second,
	}
}

func (cfg *NATSConfig) applyDefaults() {
	def := DefaultNATSConfig()
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = def.MaxReconnects
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = def.ReconnectWait
	}
	if cfg.AckWaitTimeout == 0 {
		cfg.AckWaitTimeout = def.AckWaitTimeout
	}
	if cfg.QueueGroup == "" {
		cfg.QueueGroup = def.QueueGroup
	}
	if cfg.DurableName == "" {
		cfg.DurableName = def.DurableName
	}
}

func natsOptions(cfg NATSConfig, logger watermill.LoggerAdapter) []natsgo.Option {
	return []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}
}

// NewNATSSubscriber creates a durable JetStream subscriber for pipeline
// action messages.
func NewNATSSubscriber(cfg NATSConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("transport: NATS URL is required")
	}
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}
	cfg.applyDefaults()

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroup,
		AckWaitTimeout:   cfg.AckWaitTimeout,
		NatsOptions:      natsOptions(cfg, logger),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: true,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.AckWait(cfg.AckWaitTimeout),
				natsgo.DeliverNew(),
			},
			DurablePrefix: cfg.DurableName,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create NATS subscriber: %w", err)
	}
	return sub, nil
}

// NewNATSPublisher creates a JetStream publisher for pipeline action
// messages.
func NewNATSPublisher(cfg NATSConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("transport: NATS URL is required")
	}
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}
	cfg.applyDefaults()

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOptions(cfg, logger),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: true,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create NATS publisher: %w", err)
	}
	return pub, nil
}
