// Sentigraph - Social Data Aggregation and Sentiment Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentigraph

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Store.Type != "badger" || cfg.Store.Path != "./data" {
		t.Errorf("store defaults wrong: %+v", cfg.Store)
	}
	if cfg.Transport.Type != "gochannel" || cfg.Transport.Topic != "sentigraph.pipeline" {
		t.Errorf("transport defaults wrong: %+v", cfg.Transport)
	}
	if cfg.Pipeline.LoadInterval != time.Hour || cfg.Pipeline.SnapshotInterval != 24*time.Hour {
		t.Errorf("pipeline cadence defaults wrong: %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.Workers != 8 || !cfg.Pipeline.SchedulerEnabled {
		t.Errorf("pipeline defaults wrong: %+v", cfg.Pipeline)
	}
	if cfg.Server.ListenAddr != ":8085" {
		t.Errorf("server defaults wrong: %+v", cfg.Server)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
store:
  type: memory
pipeline:
  load_interval: 30m
  workers: 4
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Type != "memory" {
		t.Errorf("file value not applied: %+v", cfg.Store)
	}
	if cfg.Pipeline.LoadInterval != 30*time.Minute || cfg.Pipeline.Workers != 4 {
		t.Errorf("file values not applied: %+v", cfg.Pipeline)
	}
	// Untouched sections keep their defaults.
	if cfg.Transport.Topic != "sentigraph.pipeline" {
		t.Errorf("defaults lost: %+v", cfg.Transport)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("store:\n  type: badger\n  path: /from/file\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("SENTIGRAPH_STORE_PATH", "/from/env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Path != "/from/env" {
		t.Errorf("environment must win over file: %+v", cfg.Store)
	}
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SENTIGRAPH_STORE_TYPE", "store.type"},
		{"SENTIGRAPH_STORE_PATH", "store.path"},
		{"SENTIGRAPH_PIPELINE_LOAD_INTERVAL", "pipeline.load_interval"},
		{"SENTIGRAPH_PIPELINE_SCHEDULER_ENABLED", "pipeline.scheduler_enabled"},
		{"SENTIGRAPH_TRANSPORT_TYPE", "transport.type"},
		{"SENTIGRAPH_TRANSPORT_NATS_URL", "transport.nats.url"},
		{"SENTIGRAPH_TRANSPORT_NATS_QUEUE_GROUP", "transport.nats.queue_group"},
		{"SENTIGRAPH_SENTIMENT_API_KEY", "sentiment.api_key"},
		{"SENTIGRAPH_SERVER_LISTEN_ADDR", "server.listen_addr"},
	}
	for _, tt := range tests {
		if got := envTransform(tt.in); got != tt.want {
			t.Errorf("envTransform(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateRejectsUnknownStoreType(t *testing.T) {
	cfg := defaultConfig()
	cfg.Store.Type = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation failure for unknown store type")
	}
}

func TestValidateRequiresBadgerPath(t *testing.T) {
	cfg := defaultConfig()
	cfg.Store.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation failure for badger store without path")
	}
}

func TestValidateRequiresNATSURL(t *testing.T) {
	cfg := defaultConfig()
	cfg.Transport.Type = "nats"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation failure for nats transport without URL")
	}

	cfg.Transport.NATS.URL = "nats://localhost:4222"
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid nats config rejected: %v", err)
	}
}

func TestValidateRejectsTinyInterval(t *testing.T) {
	cfg := defaultConfig()
	cfg.Pipeline.LoadInterval = 10 * time.Second
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation failure for sub-minute load interval")
	}
}
