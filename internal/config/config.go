// Sentigraph - Social Data Aggregation and Sentiment Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentigraph

// Package config loads Sentigraph configuration via Koanf v2 with layered
// sources (highest priority wins): environment variables, config file,
// built-in defaults.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration.
type Config struct {
	Logging   LoggingConfig   `koanf:"logging"`
	Store     StoreConfig     `koanf:"store"`
	Transport TransportConfig `koanf:"transport"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Sentiment SentimentConfig `koanf:"sentiment"`
	Server    ServerConfig    `koanf:"server"`
}

// LoggingConfig configures the zerolog wrapper.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// StoreConfig selects and configures the document store.
type StoreConfig struct {
	Type string `koanf:"type" validate:"oneof=memory badger"`

	// Path is the BadgerDB data directory. Required for the badger type.
	Path string `koanf:"path" validate:"required_if=Type badger"`
}

// TransportConfig selects and configures the action message transport.
type TransportConfig struct {
	Type string `koanf:"type" validate:"oneof=gochannel nats"`

	// Topic carries the pipeline action messages.
	Topic string `koanf:"topic" validate:"required"`

	NATS NATSConfig `koanf:"nats"`
}

// NATSConfig configures the NATS JetStream transport backend.
type NATSConfig struct {
	URL         string `koanf:"url"`
	QueueGroup  string `koanf:"queue_group"`
	DurableName string `koanf:"durable_name"`
}

// PipelineConfig configures the refresh pipelines.
type PipelineConfig struct {
	// LoadInterval is the load pipeline cadence. Default: 1h.
	LoadInterval time.Duration `koanf:"load_interval" validate:"min=1m"`

	// SnapshotInterval is the snapshot pipeline cadence. Default: 24h.
	SnapshotInterval time.Duration `koanf:"snapshot_interval" validate:"min=1m"`

	// Buffer is the scheduler-skew safety margin. Default: 1m.
	Buffer time.Duration `koanf:"buffer"`

	// Workers bounds concurrent entity refreshes in the load pipeline.
	Workers int `koanf:"workers" validate:"min=1,max=256"`

	// SchedulerEnabled turns on the in-process ticker scheduler. Leave off
	// when an external cron service publishes the action messages.
	SchedulerEnabled bool `koanf:"scheduler_enabled"`
}

// SentimentConfig configures the sentiment scorer client.
type SentimentConfig struct {
	URL               string        `koanf:"url"`
	APIKey            string        `koanf:"api_key"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
}

// ServerConfig configures the health/metrics HTTP surface.
type ServerConfig struct {
	ListenAddr string `koanf:"listen_addr" validate:"required"`
}

// defaultConfig returns a Config with all default values. These are applied
// first, then overridden by config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Type: "badger",
			Path: "./data",
		},
		Transport: TransportConfig{
			Type:  "gochannel",
			Topic: "sentigraph.pipeline",
			NATS: NATSConfig{
				QueueGroup:  "sentigraph-pipeline",
				DurableName: "sentigraph",
			},
		},
		Pipeline: PipelineConfig{
			LoadInterval:     time.Hour,
			SnapshotInterval: 24 * time.Hour,
			Buffer:           time.Minute,
			Workers:          8,
			SchedulerEnabled: true,
		},
		Sentiment: SentimentConfig{
			Timeout:           10 * time.Second,
			RequestsPerSecond: 10,
		},
		Server: ServerConfig{
			ListenAddr: ":8085",
		},
	}
}

// Validate checks the configuration for structural and cross-field errors.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Transport.Type == "nats" && c.Transport.NATS.URL == "" {
		return fmt.Errorf("invalid configuration: transport.nats.url is required for the nats transport")
	}
	return nil
}
