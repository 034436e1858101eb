// Sentigraph - Social Data Aggregation and Sentiment Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentigraph

/*
dal.go - Cache/Access Layer

The data access layer decides, for any (user, provider, entity) triple,
whether to serve from the local store or re-fetch from the upstream provider,
enriches fetched items with sentiment metadata, and persists results.

Contract:
  - GetData serves from cache when the entity's invocation-info is fresher
    than the freshness window and no refresh is forced; otherwise it invokes
    the provider, persists items and invocation-info (fire-and-forget), and
    computes sentiment for items not yet scored.
  - No error crosses the public API: every public operation logs the cause
    and returns nil (or a best-effort partial result). Internal helpers
    propagate typed errors so causes are not lost before logging.
  - Item persistence is accumulative: items absent from a fetch batch are
    never deleted, and metadata for items no longer returned is retained.
*/
package dal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/sentigraph/internal/logging"
	"github.com/tomtom215/sentigraph/internal/metrics"
	"github.com/tomtom215/sentigraph/internal/models"
	"github.com/tomtom215/sentigraph/internal/registry"
	"github.com/tomtom215/sentigraph/internal/sentiment"
	"github.com/tomtom215/sentigraph/internal/store"
)

// FreshnessWindow is the age beyond which cached entity data is considered
// stale and re-fetched. Maintained independently from the pipeline's
// stale-message window; see the dispatcher for the distinction.
const FreshnessWindow = time.Hour

// Typed internal errors. These never cross the public API; GetData and
// friends log them and return nil.
var (
	// errUnresolved indicates the provider or entity name could not be
	// resolved from the arguments.
	errUnresolved = errors.New("dal: unresolved provider or entity")

	// errNoData indicates the provider returned a nil or empty response.
	errNoData = errors.New("dal: no data returned from provider")
)

// DAL is the cache/access layer. Construct with New and share across
// the HTTP layer and the pipelines; all methods are concurrent-safe.
type DAL struct {
	store  store.Store
	scorer sentiment.Scorer

	// breakers holds one circuit breaker per provider name, created lazily.
	breakerMu sync.Mutex
	breakers  map[string]*providerBreaker

	// detached tracks fire-and-forget persistence goroutines so tests and
	// shutdown can flush deterministically.
	detached sync.WaitGroup
}

// New creates a DAL over the given store and sentiment scorer.
func New(st store.Store, scorer sentiment.Scorer) *DAL {
	return &DAL{
		store:    st,
		scorer:   scorer,
		breakers: make(map[string]*providerBreaker),
	}
}

// Flush blocks until all detached persistence work has completed. Called on
// shutdown and by tests that assert on persisted state.
func (d *DAL) Flush() {
	d.detached.Wait()
}

// GetData retrieves an entity's enriched item array, from cache or from the
// upstream provider. Returns nil when the data cannot be resolved, fetched,
// or read; the cause is logged, never propagated.
func (d *DAL) GetData(ctx context.Context, userID string, desc *registry.Descriptor, entity string, params []string, forceRefresh bool) []models.Document {
	items, err := d.getData(ctx, userID, desc, entity, params, forceRefresh)
	if err != nil {
		metrics.CacheRequests.WithLabelValues("error").Inc()
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("user", userID).
			Str("entity", entity).
			Msg("getData failed")
		return nil
	}
	return items
}

func (d *DAL) getData(ctx context.Context, userID string, desc *registry.Descriptor, entity string, params []string, forceRefresh bool) ([]models.Document, error) {
	entityName, err := resolveEntity(desc, entity)
	if err != nil {
		return nil, err
	}

	// Load whatever metadata already exists for this entity. A store error
	// here degrades to "no metadata" rather than failing the request.
	metadata, err := d.loadMetadata(ctx, userID, entityName)
	if err != nil {
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("user", userID).
			Str("entity", entityName).
			Msg("metadata read failed, continuing without")
		metadata = map[string]models.Document{}
	}

	// Freshness decision. A missing invocation-info record means the entity
	// was never fetched and is infinitely stale.
	info := d.readInvokeInfo(ctx, userID, entityName)
	now := time.Now().UnixMilli()
	stale := info.LastRetrieved == 0 || now-info.LastRetrieved > FreshnessWindow.Milliseconds()

	if !forceRefresh && !stale {
		items, err := d.store.Query(ctx, userID, entityName, nil)
		if err == nil {
			metrics.CacheRequests.WithLabelValues("hit").Inc()
			logging.Ctx(ctx).Debug().
				Str("user", userID).
				Str("entity", entityName).
				Msg("serving from cache")
			// Sentiment was merged into stored metadata on the last fetch;
			// no recomputation on the cache path.
			return mergeMetadataWithItems(desc, items, metadata), nil
		}
		// A store read failure is treated as a cache miss.
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("user", userID).
			Str("entity", entityName).
			Msg("cache read failed, falling through to provider")
	}

	items, err := d.callProvider(ctx, desc, params)
	if err != nil {
		return nil, err
	}

	metrics.CacheRequests.WithLabelValues("refresh").Inc()
	logging.Ctx(ctx).Info().
		Str("user", userID).
		Str("entity", entityName).
		Int("items", len(items)).
		Msg("retrieved from provider")

	// Persist items and invocation-info without blocking the response path.
	d.storeDataDetached(ctx, userID, desc, entityName, params, items)

	// Compute sentiment for items not yet scored, merging the new records
	// into the metadata set. This is the only path that calls the scorer.
	metadata = d.enrichSentiment(ctx, userID, desc, entityName, items, metadata)

	return mergeMetadataWithItems(desc, items, metadata), nil
}

// resolveEntity derives the entity name from the explicit argument or the
// descriptor default.
func resolveEntity(desc *registry.Descriptor, entity string) (string, error) {
	if desc == nil || desc.Provider == "" {
		return "", fmt.Errorf("%w: missing provider descriptor", errUnresolved)
	}
	name := entity
	if name == "" {
		name = desc.Entity
	}
	if name == "" {
		return "", fmt.Errorf("%w: no entity name for provider %s", errUnresolved, desc.Provider)
	}
	return name, nil
}

// readInvokeInfo loads the entity's invocation-info record. Absence or a
// store error both yield the zero value (infinitely stale).
func (d *DAL) readInvokeInfo(ctx context.Context, userID, entityName string) models.InvokeInfo {
	doc, err := d.store.GetDocument(ctx, userID, entityName, models.InvokeInfoName)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logging.Ctx(ctx).Warn().
				Err(err).
				Str("user", userID).
				Str("entity", entityName).
				Msg("invoke info read failed, treating as stale")
		}
		return models.InvokeInfo{}
	}
	return decodeInvokeInfo(doc)
}

// storeDataDetached persists the fetch results without blocking the caller.
// The write uses a context detached from the request so a fast response does
// not cancel persistence. Failures surface in logs and metrics only; the
// next read sees slightly stale persisted state at worst.
func (d *DAL) storeDataDetached(ctx context.Context, userID string, desc *registry.Descriptor, entityName string, params []string, items []models.Document) {
	bgCtx := context.WithoutCancel(ctx)
	d.detached.Add(1)
	go func() {
		defer d.detached.Done()

		info := models.InvokeInfo{
			Provider:      desc.Provider,
			Name:          desc.Name,
			Params:        params,
			LastRetrieved: time.Now().UnixMilli(),
		}
		if err := d.store.StoreDocument(bgCtx, userID, entityName, models.InvokeInfoName, encodeInvokeInfo(info)); err != nil {
			metrics.DetachedWriteFailures.Inc()
			logging.Ctx(bgCtx).Error().
				Err(err).
				Str("user", userID).
				Str("entity", entityName).
				Msg("detached invoke info write failed")
			// Without a fresh lastRetrieved the next read re-fetches, which
			// is the correct degraded behavior.
			return
		}
		if err := d.store.StoreBatch(bgCtx, userID, entityName, items, desc.ItemKey); err != nil {
			metrics.DetachedWriteFailures.Inc()
			logging.Ctx(bgCtx).Error().
				Err(err).
				Str("user", userID).
				Str("entity", entityName).
				Msg("detached item batch write failed")
		}
	}()
}

// encodeInvokeInfo converts the typed record to its stored document form.
func encodeInvokeInfo(info models.InvokeInfo) models.Document {
	params := make([]any, len(info.Params))
	for i, p := range info.Params {
		params[i] = p
	}
	return models.Document{
		"provider":      info.Provider,
		"name":          info.Name,
		"params":        params,
		"lastRetrieved": info.LastRetrieved,
	}
}

// decodeInvokeInfo converts a stored document back to the typed record,
// tolerating the numeric widening a JSON round trip introduces.
func decodeInvokeInfo(doc models.Document) models.InvokeInfo {
	info := models.InvokeInfo{
		Provider: stringField(doc, "provider"),
		Name:     stringField(doc, "name"),
	}
	switch v := doc["lastRetrieved"].(type) {
	case int64:
		info.LastRetrieved = v
	case float64:
		info.LastRetrieved = int64(v)
	}
	if raw, ok := doc["params"].([]any); ok {
		for _, p := range raw {
			if s, ok := p.(string); ok {
				info.Params = append(info.Params, s)
			}
		}
	}
	return info
}

// stringField extracts a string field from a document, returning "" when the
// field is missing or not a string.
func stringField(doc models.Document, field string) string {
	if doc == nil {
		return ""
	}
	s, _ := doc[field].(string)
	return s
}
