// Sentigraph - Social Data Aggregation and Sentiment Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentigraph

// Package metrics provides Prometheus instrumentation for the cache layer,
// the provider clients, and the refresh pipelines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache Metrics
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentigraph_cache_requests_total",
			Help: "Total getData requests by outcome",
		},
		[]string{"outcome"}, // "hit", "refresh", "error"
	)

	// Provider Metrics
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentigraph_provider_calls_total",
			Help: "Total upstream provider invocations",
		},
		[]string{"provider", "result"}, // result: "success", "error", "empty"
	)

	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentigraph_provider_call_duration_seconds",
			Help:    "Duration of upstream provider invocations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// Sentiment Metrics
	SentimentRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentigraph_sentiment_requests_total",
			Help: "Total sentiment scorer calls",
		},
		[]string{"result"}, // "success", "error"
	)

	// Pipeline Metrics
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentigraph_pipeline_runs_total",
			Help: "Total pipeline executions by section and result",
		},
		[]string{"section", "result"}, // result: "completed", "skipped", "stale", "error"
	)

	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentigraph_pipeline_duration_seconds",
			Help:    "Duration of pipeline executions in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"section"},
	)

	PipelineUnitFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentigraph_pipeline_unit_failures_total",
			Help: "Per-user and per-entity failures isolated during pipeline runs",
		},
		[]string{"section"},
	)

	// Store Metrics
	DetachedWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentigraph_detached_write_failures_total",
			Help: "Fire-and-forget store writes that failed after the response was returned",
		},
	)
)
