// Sentigraph - Social Data Aggregation and Sentiment Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentigraph

// Package models defines the shared data model: reserved document names,
// metadata field names, and the typed records exchanged between the store,
// the data access layer, and the pipelines.
package models

// Reserved document and collection names. These names never collide with
// provider-sourced item keys because providers are forbidden from producing
// double-underscore-prefixed identifiers.
const (
	// InvokeInfoName is the reserved per-entity document recording how and
	// when the entity was last fetched. Excluded from item iteration.
	InvokeInfoName = "__invoke_info"

	// SystemInfoUser is the synthetic pseudo-user that owns pipeline run
	// state. Excluded from user enumeration in the load pipeline.
	SystemInfoUser = "__system_info"

	// HistoryCollection holds immutable per-user snapshot documents keyed
	// by epoch-millisecond timestamp.
	HistoryCollection = "__history"

	// MetadataSubcollection is the per-entity subcollection (nested under
	// the invoke-info document) holding derived per-item metadata.
	MetadataSubcollection = "metadata"
)

// Metadata field names. The double-underscore prefix marks fields owned by
// Sentigraph rather than by the upstream provider.
const (
	FieldID             = "id"
	FieldUserID         = "userId"
	FieldProvider       = "provider"
	FieldText           = "text"
	FieldSentiment      = "__sentiment"
	FieldSentimentScore = "__sentimentScore"
)

// Pipeline section names.
const (
	SectionLoad     = "load"
	SectionSnapshot = "snapshot"
)

// Pipeline action names carried by transport messages.
const (
	ActionInvokeLoad     = "invoke-load"
	ActionInvokeSnapshot = "invoke-snapshot"
)

// Document is a provider-shaped record. Providers return arbitrary JSON
// objects; the store persists them as-is, keyed by the descriptor's ItemKey.
type Document = map[string]any

// InvokeInfo records the last successful fetch of an entity. Exactly one
// exists per entity; a missing record means the entity was never fetched and
// is treated as infinitely stale.
type InvokeInfo struct {
	Provider string   `json:"provider"`
	Name     string   `json:"name"`
	Params   []string `json:"params"`
	// LastRetrieved is epoch milliseconds of the last successful fetch.
	// Only ever advances; a failed fetch does not update it.
	LastRetrieved int64 `json:"lastRetrieved"`
}

// SystemInfo is the persisted run-once guard for a pipeline section.
type SystemInfo struct {
	// LastUpdatedTimestamp is epoch milliseconds of the last completed run.
	LastUpdatedTimestamp int64 `json:"lastUpdatedTimestamp"`
	InProgress           bool  `json:"inProgress"`
}

// SentimentCounts aggregates sentiment ratings for one provider (or for all
// providers combined) at snapshot time.
type SentimentCounts struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`

	// AverageScore is the arithmetic mean over metadata records carrying a
	// sentiment score. Nil when no record had a score (never NaN).
	AverageScore *float64 `json:"averageScore,omitempty"`
}

// Snapshot is an immutable point-in-time aggregate of a user's metadata.
type Snapshot struct {
	UserID    string                     `json:"userId"`
	Timestamp int64                      `json:"timestamp"`
	Providers map[string]SentimentCounts `json:"providers"`
	All       SentimentCounts            `json:"all"`
}
