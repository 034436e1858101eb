// Sentigraph - Social Data Aggregation and Sentiment Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentigraph

package dal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/sentigraph/internal/models"
	"github.com/tomtom215/sentigraph/internal/registry"
	"github.com/tomtom215/sentigraph/internal/sentiment"
	"github.com/tomtom215/sentigraph/internal/store"
)

// fakeScorer counts invocations and returns a fixed score.
type fakeScorer struct {
	mu    sync.Mutex
	calls int
	score float64
	err   error
}

func (f *fakeScorer) Analyze(_ context.Context, _ string) (sentiment.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return sentiment.Result{}, f.err
	}
	return sentiment.Result{Score: f.score, Rating: sentiment.RatingFromScore(f.score)}, nil
}

func (f *fakeScorer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeProvider counts invocations, records the params it was called with, and
// returns a fixed response.
type fakeProvider struct {
	mu       sync.Mutex
	calls    int
	params   []string
	response any
	err      error
}

func (f *fakeProvider) fn(_ context.Context, params []string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestDAL(t *testing.T) (*DAL, store.Store, *fakeScorer) {
	t.Helper()
	st := store.NewMemoryStore()
	t.Cleanup(func() { _ = st.Close() })
	scorer := &fakeScorer{score: 0.3}
	d := New(st, scorer)
	t.Cleanup(d.Flush)
	return d, st, scorer
}

func mentionsDescriptor(fn registry.ProviderFunc) *registry.Descriptor {
	return &registry.Descriptor{
		Provider:           "twitter",
		Name:               "get-mentions",
		Func:               fn,
		Entity:             "twitter:mentions",
		ItemKey:            "id",
		SentimentTextField: "text",
	}
}

// writeInvokeInfo stores an invocation-info record with the given retrieval
// timestamp so tests can control freshness directly.
func writeInvokeInfo(t *testing.T, st store.Store, userID, entity string, lastRetrieved int64) {
	t.Helper()
	info := models.InvokeInfo{
		Provider:      "twitter",
		Name:          "get-mentions",
		LastRetrieved: lastRetrieved,
	}
	if err := st.StoreDocument(context.Background(), userID, entity, models.InvokeInfoName, encodeInvokeInfo(info)); err != nil {
		t.Fatalf("store invoke info: %v", err)
	}
}

func TestGetDataServesFromCacheWhenFresh(t *testing.T) {
	d, st, _ := newTestDAL(t)
	ctx := context.Background()

	provider := &fakeProvider{response: []any{map[string]any{"id": "x"}}}
	desc := mentionsDescriptor(provider.fn)

	cached := []models.Document{{"id": "1", "text": "cached tweet"}}
	if err := st.StoreBatch(ctx, "u1", desc.Entity, cached, desc.ItemKey); err != nil {
		t.Fatalf("seed items: %v", err)
	}
	// Retrieved well within the freshness window.
	writeInvokeInfo(t, st, "u1", desc.Entity, time.Now().UnixMilli()-5000)

	items := d.GetData(ctx, "u1", desc, "", nil, false)
	if len(items) != 1 || items[0]["text"] != "cached tweet" {
		t.Fatalf("expected cached item, got %v", items)
	}
	if provider.callCount() != 0 {
		t.Errorf("provider should not be called on a cache hit, got %d calls", provider.callCount())
	}
}

func TestGetDataRefreshesWhenStale(t *testing.T) {
	d, st, _ := newTestDAL(t)
	ctx := context.Background()

	provider := &fakeProvider{response: []any{map[string]any{"id": "1", "text": "fresh tweet"}}}
	desc := mentionsDescriptor(provider.fn)

	stale := []models.Document{{"id": "1", "text": "stale tweet"}}
	if err := st.StoreBatch(ctx, "u1", desc.Entity, stale, desc.ItemKey); err != nil {
		t.Fatalf("seed items: %v", err)
	}
	// Retrieved past the freshness window.
	writeInvokeInfo(t, st, "u1", desc.Entity, time.Now().UnixMilli()-FreshnessWindow.Milliseconds()-5000)

	items := d.GetData(ctx, "u1", desc, "", nil, false)
	if len(items) != 1 || items[0]["text"] != "fresh tweet" {
		t.Fatalf("expected refreshed item, got %v", items)
	}
	if provider.callCount() != 1 {
		t.Errorf("expected 1 provider call, got %d", provider.callCount())
	}
}

func TestGetDataMissingInvokeInfoForcesFetch(t *testing.T) {
	d, _, _ := newTestDAL(t)
	ctx := context.Background()

	provider := &fakeProvider{response: []any{map[string]any{"id": "1", "text": "first"}}}
	desc := mentionsDescriptor(provider.fn)

	items := d.GetData(ctx, "u1", desc, "", nil, false)
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %v", items)
	}
	if provider.callCount() != 1 {
		t.Errorf("never-fetched entity must hit the provider, got %d calls", provider.callCount())
	}
}

func TestGetDataForceRefreshBypassesFreshCache(t *testing.T) {
	d, st, _ := newTestDAL(t)
	ctx := context.Background()

	provider := &fakeProvider{response: []any{map[string]any{"id": "1", "text": "forced"}}}
	desc := mentionsDescriptor(provider.fn)

	if err := st.StoreBatch(ctx, "u1", desc.Entity, []models.Document{{"id": "1", "text": "cached"}}, desc.ItemKey); err != nil {
		t.Fatalf("seed items: %v", err)
	}
	writeInvokeInfo(t, st, "u1", desc.Entity, time.Now().UnixMilli()-5000)

	items := d.GetData(ctx, "u1", desc, "", []string{"acct-1"}, true)
	if len(items) != 1 || items[0]["text"] != "forced" {
		t.Fatalf("expected provider item on forced refresh, got %v", items)
	}
	if provider.callCount() != 1 {
		t.Errorf("expected 1 provider call, got %d", provider.callCount())
	}
}

func TestGetDataFirstFetchPersistsItemsAndInvokeInfo(t *testing.T) {
	d, st, _ := newTestDAL(t)
	ctx := context.Background()

	provider := &fakeProvider{response: []any{
		map[string]any{"id": "1", "text": "great product"},
		map[string]any{"id": "2", "text": "not great"},
	}}
	desc := mentionsDescriptor(provider.fn)

	before := time.Now().UnixMilli()
	items := d.GetData(ctx, "u1", desc, "", []string{"acct-1"}, false)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %v", items)
	}
	d.Flush()

	doc, err := st.GetDocument(ctx, "u1", desc.Entity, models.InvokeInfoName)
	if err != nil {
		t.Fatalf("invoke info not persisted: %v", err)
	}
	info := decodeInvokeInfo(doc)
	if info.Provider != "twitter" || info.Name != "get-mentions" {
		t.Errorf("unexpected invoke info identity: %+v", info)
	}
	if len(info.Params) != 1 || info.Params[0] != "acct-1" {
		t.Errorf("params not recorded: %+v", info.Params)
	}
	if info.LastRetrieved < before {
		t.Errorf("lastRetrieved not stamped: %d < %d", info.LastRetrieved, before)
	}

	stored, err := st.Query(ctx, "u1", desc.Entity, nil)
	if err != nil {
		t.Fatalf("query items: %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("expected 2 persisted items, got %d", len(stored))
	}

	records, err := st.Query(ctx, "u1", store.MetadataCollection(desc.Entity), nil)
	if err != nil {
		t.Fatalf("query metadata: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 metadata records, got %d", len(records))
	}
	for _, record := range records {
		if record[models.FieldSentiment] == nil {
			t.Errorf("metadata record missing sentiment: %v", record)
		}
		if record[models.FieldUserID] != "u1" || record[models.FieldProvider] != "twitter" {
			t.Errorf("metadata record not stamped: %v", record)
		}
	}
}

func TestSentimentComputedAtMostOncePerItem(t *testing.T) {
	d, st, scorer := newTestDAL(t)
	ctx := context.Background()

	provider := &fakeProvider{response: []any{
		map[string]any{"id": "a", "text": "already scored"},
		map[string]any{"id": "b", "text": "new item"},
	}}
	desc := mentionsDescriptor(provider.fn)

	// Item "a" already carries a score of exactly 0. Zero is a present score,
	// not an absent one; it must not be recomputed.
	seeded := []models.Document{{
		models.FieldID:             "a",
		models.FieldSentiment:      string(sentiment.RatingNeutral),
		models.FieldSentimentScore: 0.0,
	}}
	if err := st.StoreBatch(ctx, "u1", store.MetadataCollection(desc.Entity), seeded, models.FieldID); err != nil {
		t.Fatalf("seed metadata: %v", err)
	}

	if items := d.GetData(ctx, "u1", desc, "", nil, true); items == nil {
		t.Fatal("expected items")
	}
	if scorer.callCount() != 1 {
		t.Fatalf("expected exactly 1 scorer call (item b only), got %d", scorer.callCount())
	}

	// A second forced refresh scores nothing: both items now carry scores.
	if items := d.GetData(ctx, "u1", desc, "", nil, true); items == nil {
		t.Fatal("expected items on second refresh")
	}
	if scorer.callCount() != 1 {
		t.Errorf("expected no additional scorer calls, got %d total", scorer.callCount())
	}
}

func TestScorerFailureSkipsItemForRetry(t *testing.T) {
	d, st, scorer := newTestDAL(t)
	scorer.err = errors.New("scoring backend down")
	ctx := context.Background()

	provider := &fakeProvider{response: []any{map[string]any{"id": "1", "text": "hello"}}}
	desc := mentionsDescriptor(provider.fn)

	if items := d.GetData(ctx, "u1", desc, "", nil, true); len(items) != 1 {
		t.Fatalf("fetch must succeed despite scorer failure, got %v", items)
	}
	d.Flush()

	// No metadata written for the failed item, so the score is retried later.
	records, err := st.Query(ctx, "u1", store.MetadataCollection(desc.Entity), nil)
	if err != nil {
		t.Fatalf("query metadata: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no metadata after scorer failure, got %v", records)
	}

	scorer.err = nil
	if items := d.GetData(ctx, "u1", desc, "", nil, true); items == nil {
		t.Fatal("expected items")
	}
	if scorer.callCount() != 2 {
		t.Errorf("expected retry on next fetch, got %d calls", scorer.callCount())
	}
}

func TestResponseMergePrefersItemFields(t *testing.T) {
	d, st, _ := newTestDAL(t)
	ctx := context.Background()

	provider := &fakeProvider{response: []any{map[string]any{"id": "1", "text": "current text"}}}
	desc := mentionsDescriptor(provider.fn)

	// Metadata carries an annotation plus a stale copy of a field the item
	// also has. The annotation survives; the item's value wins the collision.
	seeded := []models.Document{{
		models.FieldID:             "1",
		models.FieldSentimentScore: 0.2,
		models.FieldSentiment:      string(sentiment.RatingPositive),
		"text":                     "stale text",
		"pinned":                   true,
	}}
	if err := st.StoreBatch(ctx, "u1", store.MetadataCollection(desc.Entity), seeded, models.FieldID); err != nil {
		t.Fatalf("seed metadata: %v", err)
	}

	items := d.GetData(ctx, "u1", desc, "", nil, true)
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %v", items)
	}
	got := items[0]
	if got["text"] != "current text" {
		t.Errorf("item field must win over metadata, got %v", got["text"])
	}
	if got["pinned"] != true {
		t.Errorf("metadata annotation lost: %v", got)
	}
	if got[models.FieldSentiment] != string(sentiment.RatingPositive) {
		t.Errorf("sentiment not merged into response: %v", got)
	}
}

func TestGetDataNilOnProviderFailure(t *testing.T) {
	d, _, _ := newTestDAL(t)

	provider := &fakeProvider{err: errors.New("rate limited")}
	desc := mentionsDescriptor(provider.fn)

	if items := d.GetData(context.Background(), "u1", desc, "", nil, true); items != nil {
		t.Errorf("expected nil on provider failure, got %v", items)
	}
}

func TestGetDataNilOnEmptyProviderResponse(t *testing.T) {
	d, st, _ := newTestDAL(t)
	ctx := context.Background()

	provider := &fakeProvider{response: []any{}}
	desc := mentionsDescriptor(provider.fn)

	if items := d.GetData(ctx, "u1", desc, "", nil, true); items != nil {
		t.Errorf("expected nil on empty response, got %v", items)
	}
	d.Flush()

	// Empty fetches must not touch persisted state.
	if _, err := st.GetDocument(ctx, "u1", desc.Entity, models.InvokeInfoName); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("invoke info must not be written on an empty fetch, got err=%v", err)
	}
}

func TestGetDataNilWithoutDescriptor(t *testing.T) {
	d, _, _ := newTestDAL(t)
	if items := d.GetData(context.Background(), "u1", nil, "tweets", nil, true); items != nil {
		t.Errorf("expected nil without descriptor, got %v", items)
	}
}

func TestGetDataArrayKeyResponse(t *testing.T) {
	d, _, _ := newTestDAL(t)

	provider := &fakeProvider{response: map[string]any{
		"reviews": []any{map[string]any{"id": "r1", "comment": "fine", "rating": "positive"}},
	}}
	desc := &registry.Descriptor{
		Provider:       "google",
		Name:           "get-reviews",
		Func:           provider.fn,
		Entity:         "google:reviews",
		ArrayKey:       "reviews",
		ItemKey:        "id",
		SentimentField: "rating",
		TextField:      "comment",
	}

	items := d.GetData(context.Background(), "u1", desc, "", nil, true)
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %v", items)
	}
	if items[0][models.FieldSentimentScore] != sentiment.LabelScorePositive {
		t.Errorf("pre-classified label not mapped to fixed score: %v", items[0])
	}
}

func TestGetDataEntityArgumentOverridesDefault(t *testing.T) {
	d, st, _ := newTestDAL(t)
	ctx := context.Background()

	provider := &fakeProvider{response: []any{map[string]any{"id": "1", "text": "page post"}}}
	desc := mentionsDescriptor(provider.fn)

	if items := d.GetData(ctx, "u1", desc, "facebook:page-7", nil, true); len(items) != 1 {
		t.Fatalf("expected 1 item, got %v", items)
	}
	d.Flush()

	if _, err := st.GetDocument(ctx, "u1", "facebook:page-7", models.InvokeInfoName); err != nil {
		t.Errorf("data should live under the explicit entity name: %v", err)
	}
}

func TestInvokeInfoRoundTripSurvivesJSONWidening(t *testing.T) {
	info := models.InvokeInfo{
		Provider:      "facebook",
		Name:          "get-pages",
		Params:        []string{"page-1", "page-2"},
		LastRetrieved: 1700000000000,
	}
	doc := encodeInvokeInfo(info)
	// A JSON round trip widens integers to float64.
	doc["lastRetrieved"] = float64(info.LastRetrieved)

	got := decodeInvokeInfo(doc)
	if got.Provider != info.Provider || got.Name != info.Name {
		t.Errorf("identity lost: %+v", got)
	}
	if got.LastRetrieved != info.LastRetrieved {
		t.Errorf("timestamp lost: %d", got.LastRetrieved)
	}
	if len(got.Params) != 2 || got.Params[1] != "page-2" {
		t.Errorf("params lost: %+v", got.Params)
	}
}
