// Sentigraph - Social Data Aggregation and Sentiment Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentigraph

/*
snapshot.go - Snapshot Pipeline

The snapshot pipeline aggregates each user's current metadata set into an
immutable history document: per-provider and overall counts of each
sentiment rating plus the average sentiment score. Snapshots are keyed by
the epoch-millisecond timestamp at aggregation time and are never rewritten.

A user with no metadata is a no-op, not an error. Per-user failures are
isolated the same way the load pipeline isolates them.
*/
package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/tomtom215/sentigraph/internal/dal"
	"github.com/tomtom215/sentigraph/internal/logging"
	"github.com/tomtom215/sentigraph/internal/metrics"
	"github.com/tomtom215/sentigraph/internal/models"
	"github.com/tomtom215/sentigraph/internal/sentiment"
	"github.com/tomtom215/sentigraph/internal/store"
)

// SnapshotPipeline aggregates metadata into per-user history snapshots.
type SnapshotPipeline struct {
	store store.Store
	dal   *dal.DAL
}

// NewSnapshotPipeline creates a snapshot pipeline.
func NewSnapshotPipeline(st store.Store, d *dal.DAL) *SnapshotPipeline {
	return &SnapshotPipeline{store: st, dal: d}
}

// Run snapshots every user. The only error it returns is a pre-fan-out
// failure (user enumeration).
func (p *SnapshotPipeline) Run(ctx context.Context) error {
	users, err := p.store.GetAllUsers(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: enumerate users: %w", err)
	}

	for _, userID := range users {
		if userID == models.SystemInfoUser {
			continue
		}
		if err := p.RefreshHistory(ctx, userID); err != nil {
			metrics.PipelineUnitFailures.WithLabelValues(models.SectionSnapshot).Inc()
			logging.Ctx(ctx).Warn().
				Err(err).
				Str("user", userID).
				Msg("snapshot: user failed, siblings continue")
		}
	}
	return nil
}

// RefreshHistory snapshots a single user's metadata. Exposed so a manual
// trigger can rebuild one user's history without sweeping everyone.
func (p *SnapshotPipeline) RefreshHistory(ctx context.Context, userID string) error {
	records := p.dal.GetMetadata(ctx, userID)
	if records == nil {
		return fmt.Errorf("snapshot: metadata read failed for %s", userID)
	}
	if len(records) == 0 {
		return nil
	}

	snap := Aggregate(userID, records, time.Now().UnixMilli())
	name := strconv.FormatInt(snap.Timestamp, 10)
	if err := p.store.StoreDocument(ctx, userID, models.HistoryCollection, name, snapshotDocument(snap)); err != nil {
		return fmt.Errorf("snapshot: store history for %s: %w", userID, err)
	}

	logging.Ctx(ctx).Info().
		Str("user", userID).
		Int("records", len(records)).
		Int("providers", len(snap.Providers)).
		Msg("snapshot stored")
	return nil
}

// Aggregate computes the sentiment statistics of a metadata set, grouped by
// provider and combined across all providers.
func Aggregate(userID string, records []models.Document, timestamp int64) models.Snapshot {
	type accumulator struct {
		counts models.SentimentCounts
		sum    float64
		scored int
	}

	perProvider := make(map[string]*accumulator)
	all := &accumulator{}

	tally := func(acc *accumulator, record models.Document) {
		switch sentiment.Rating(ratingOf(record)) {
		case sentiment.RatingPositive:
			acc.counts.Positive++
		case sentiment.RatingNegative:
			acc.counts.Negative++
		default:
			acc.counts.Neutral++
		}
		// Presence check, not truthiness: a stored score of 0 is a valid
		// score and must contribute to the average.
		if score, ok := scoreOf(record); ok {
			acc.sum += score
			acc.scored++
		}
	}

	for _, record := range records {
		provider := providerOf(record)
		acc, ok := perProvider[provider]
		if !ok {
			acc = &accumulator{}
			perProvider[provider] = acc
		}
		tally(acc, record)
		tally(all, record)
	}

	finish := func(acc *accumulator) models.SentimentCounts {
		counts := acc.counts
		if acc.scored > 0 {
			avg := acc.sum / float64(acc.scored)
			counts.AverageScore = &avg
		}
		return counts
	}

	providers := make(map[string]models.SentimentCounts, len(perProvider))
	for provider, acc := range perProvider {
		providers[provider] = finish(acc)
	}

	return models.Snapshot{
		UserID:    userID,
		Timestamp: timestamp,
		Providers: providers,
		All:       finish(all),
	}
}

func ratingOf(record models.Document) string {
	s, _ := record[models.FieldSentiment].(string)
	return s
}

func providerOf(record models.Document) string {
	s, _ := record[models.FieldProvider].(string)
	return s
}

// scoreOf returns the record's sentiment score and whether one is present,
// tolerating JSON numeric widening.
func scoreOf(record models.Document) (float64, bool) {
	switch v := record[models.FieldSentimentScore].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// snapshotDocument converts a snapshot to its stored document form.
func snapshotDocument(snap models.Snapshot) models.Document {
	countsDoc := func(c models.SentimentCounts) map[string]any {
		doc := map[string]any{
			"positive": c.Positive,
			"neutral":  c.Neutral,
			"negative": c.Negative,
		}
		if c.AverageScore != nil {
			doc["averageScore"] = *c.AverageScore
		}
		return doc
	}

	providers := make(map[string]any, len(snap.Providers))
	for provider, counts := range snap.Providers {
		providers[provider] = countsDoc(counts)
	}

	return models.Document{
		"userId":    snap.UserID,
		"timestamp": snap.Timestamp,
		"providers": providers,
		"all":       countsDoc(snap.All),
	}
}
