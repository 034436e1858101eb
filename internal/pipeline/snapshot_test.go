// Sentigraph - Social Data Aggregation and Sentiment Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentigraph

package pipeline

import (
	"context"
	"testing"

	"github.com/tomtom215/sentigraph/internal/dal"
	"github.com/tomtom215/sentigraph/internal/models"
	"github.com/tomtom215/sentigraph/internal/sentiment"
	"github.com/tomtom215/sentigraph/internal/store"
)

func TestAggregateCountsAndAverage(t *testing.T) {
	records := []models.Document{
		{
			models.FieldID:             "t1",
			models.FieldProvider:       "twitter",
			models.FieldSentiment:      string(sentiment.RatingPositive),
			models.FieldSentimentScore: 0.4,
		},
		{
			models.FieldID:             "g1",
			models.FieldProvider:       "google",
			models.FieldSentiment:      string(sentiment.RatingNegative),
			models.FieldSentimentScore: -0.4,
		},
	}

	snap := Aggregate("u1", records, 1700000000000)
	if snap.UserID != "u1" || snap.Timestamp != 1700000000000 {
		t.Errorf("identity wrong: %+v", snap)
	}
	if snap.All.Positive != 1 || snap.All.Negative != 1 || snap.All.Neutral != 0 {
		t.Errorf("overall counts wrong: %+v", snap.All)
	}
	if snap.All.AverageScore == nil || *snap.All.AverageScore != 0.0 {
		t.Errorf("expected overall average 0.0, got %v", snap.All.AverageScore)
	}

	if len(snap.Providers) != 2 {
		t.Fatalf("expected 2 provider groups, got %v", snap.Providers)
	}
	twitter := snap.Providers["twitter"]
	if twitter.Positive != 1 || twitter.AverageScore == nil || *twitter.AverageScore != 0.4 {
		t.Errorf("twitter group wrong: %+v", twitter)
	}
	google := snap.Providers["google"]
	if google.Negative != 1 || google.AverageScore == nil || *google.AverageScore != -0.4 {
		t.Errorf("google group wrong: %+v", google)
	}
}

func TestAggregateUnscoredRecordsHaveNoAverage(t *testing.T) {
	records := []models.Document{
		{models.FieldID: "1", models.FieldProvider: "twitter"},
	}
	snap := Aggregate("u1", records, 1)
	if snap.All.Neutral != 1 {
		t.Errorf("unrated record must count as neutral: %+v", snap.All)
	}
	if snap.All.AverageScore != nil {
		t.Errorf("no scored records, average must be absent: %v", *snap.All.AverageScore)
	}
}

func TestAggregateZeroScoreContributesToAverage(t *testing.T) {
	records := []models.Document{
		{
			models.FieldID:             "1",
			models.FieldProvider:       "twitter",
			models.FieldSentiment:      string(sentiment.RatingNeutral),
			models.FieldSentimentScore: 0.0,
		},
	}
	snap := Aggregate("u1", records, 1)
	if snap.All.AverageScore == nil {
		t.Fatal("a present score of 0 must produce an average")
	}
	if *snap.All.AverageScore != 0.0 {
		t.Errorf("expected average 0.0, got %v", *snap.All.AverageScore)
	}
}

func TestAggregateToleratesWidenedScores(t *testing.T) {
	records := []models.Document{
		{models.FieldID: "1", models.FieldProvider: "t", models.FieldSentimentScore: int64(1)},
		{models.FieldID: "2", models.FieldProvider: "t", models.FieldSentimentScore: 0.0},
	}
	snap := Aggregate("u1", records, 1)
	if snap.All.AverageScore == nil || *snap.All.AverageScore != 0.5 {
		t.Errorf("expected average 0.5 across widened scores, got %v", snap.All.AverageScore)
	}
}

func TestRefreshHistoryStoresSnapshot(t *testing.T) {
	st := store.NewMemoryStore()
	t.Cleanup(func() { _ = st.Close() })
	d := dal.New(st, noopScorer{})
	ctx := context.Background()

	seeded := []models.Document{{
		models.FieldID:             "t1",
		models.FieldProvider:       "twitter",
		models.FieldSentiment:      string(sentiment.RatingPositive),
		models.FieldSentimentScore: 0.3,
	}}
	if err := st.StoreBatch(ctx, "u1", store.MetadataCollection("twitter:mentions"), seeded, models.FieldID); err != nil {
		t.Fatalf("seed metadata: %v", err)
	}

	p := NewSnapshotPipeline(st, d)
	if err := p.RefreshHistory(ctx, "u1"); err != nil {
		t.Fatalf("refresh history: %v", err)
	}

	snaps, err := st.Query(ctx, "u1", models.HistoryCollection, nil)
	if err != nil {
		t.Fatalf("query history: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps))
	}
	snap := snaps[0]
	if snap["userId"] != "u1" {
		t.Errorf("snapshot user wrong: %v", snap)
	}
	all, ok := snap["all"].(map[string]any)
	if !ok {
		t.Fatalf("snapshot missing overall counts: %v", snap)
	}
	if all["positive"] != 1 || all["averageScore"] != 0.3 {
		t.Errorf("overall counts wrong: %v", all)
	}
}

func TestRefreshHistoryWithoutMetadataIsNoOp(t *testing.T) {
	st := store.NewMemoryStore()
	t.Cleanup(func() { _ = st.Close() })
	d := dal.New(st, noopScorer{})
	ctx := context.Background()

	p := NewSnapshotPipeline(st, d)
	if err := p.RefreshHistory(ctx, "u1"); err != nil {
		t.Fatalf("empty user must be a no-op: %v", err)
	}

	snaps, err := st.Query(ctx, "u1", models.HistoryCollection, nil)
	if err != nil {
		t.Fatalf("query history: %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("no snapshot expected, got %v", snaps)
	}
}

func TestSnapshotRunSweepsUsers(t *testing.T) {
	st := store.NewMemoryStore()
	t.Cleanup(func() { _ = st.Close() })
	d := dal.New(st, noopScorer{})
	ctx := context.Background()

	for _, userID := range []string{"u1", "u2"} {
		seeded := []models.Document{{
			models.FieldID:             "x",
			models.FieldProvider:       "twitter",
			models.FieldSentiment:      string(sentiment.RatingNeutral),
			models.FieldSentimentScore: 0.0,
		}}
		if err := st.StoreBatch(ctx, userID, store.MetadataCollection("twitter:mentions"), seeded, models.FieldID); err != nil {
			t.Fatalf("seed metadata: %v", err)
		}
	}

	p := NewSnapshotPipeline(st, d)
	if err := p.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, userID := range []string{"u1", "u2"} {
		snaps, err := st.Query(ctx, userID, models.HistoryCollection, nil)
		if err != nil {
			t.Fatalf("query history: %v", err)
		}
		if len(snaps) != 1 {
			t.Errorf("user %s: expected 1 snapshot, got %d", userID, len(snaps))
		}
	}
}
