// Sentigraph - Social Data Aggregation and Sentiment Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentigraph

/*
load.go - Load Pipeline

The load pipeline re-fetches every stale cached entity for every user. For
each user it enumerates their entity collections, reads each entity's
invocation-info, resolves the recorded provider function against the
registry, and forces a refresh through the DAL.

Failure isolation is per (user, entity): an error in one unit is caught,
logged, and counted, while sibling units proceed. Fan-out across entity
refreshes is bounded by a fixed-size semaphore so a large user base cannot
produce unbounded concurrent calls against upstream provider APIs.
*/
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tomtom215/sentigraph/internal/dal"
	"github.com/tomtom215/sentigraph/internal/logging"
	"github.com/tomtom215/sentigraph/internal/metrics"
	"github.com/tomtom215/sentigraph/internal/models"
	"github.com/tomtom215/sentigraph/internal/registry"
	"github.com/tomtom215/sentigraph/internal/store"
)

// DefaultLoadWorkers bounds concurrent entity refreshes.
const DefaultLoadWorkers = 8

// LoadPipeline refreshes all cached entities for all users.
type LoadPipeline struct {
	store    store.Store
	registry *registry.Registry
	dal      *dal.DAL

	// workers is the entity-refresh semaphore size.
	workers int
}

// NewLoadPipeline creates a load pipeline. workers <= 0 selects the default
// pool size.
func NewLoadPipeline(st store.Store, reg *registry.Registry, d *dal.DAL, workers int) *LoadPipeline {
	if workers <= 0 {
		workers = DefaultLoadWorkers
	}
	return &LoadPipeline{store: st, registry: reg, dal: d, workers: workers}
}

// Run executes one full refresh sweep. The only error it returns is a
// pre-fan-out failure (user enumeration); everything after that is isolated
// per unit.
func (p *LoadPipeline) Run(ctx context.Context) error {
	users, err := p.store.GetAllUsers(ctx)
	if err != nil {
		return fmt.Errorf("load: enumerate users: %w", err)
	}

	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup

	for _, userID := range users {
		if userID == models.SystemInfoUser {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.refreshUser(ctx, userID, sem, &wg)
		}()
	}
	wg.Wait()
	return nil
}

// refreshUser fans out entity refreshes for one user. Errors are logged and
// counted; siblings are unaffected.
func (p *LoadPipeline) refreshUser(ctx context.Context, userID string, sem chan struct{}, wg *sync.WaitGroup) {
	defer func() {
		if r := recover(); r != nil {
			metrics.PipelineUnitFailures.WithLabelValues(models.SectionLoad).Inc()
			logging.Ctx(ctx).Error().
				Any("panic", r).
				Str("user", userID).
				Msg("load: panic refreshing user, siblings continue")
		}
	}()

	collections, err := p.store.GetUserCollections(ctx, userID)
	if err != nil {
		metrics.PipelineUnitFailures.WithLabelValues(models.SectionLoad).Inc()
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("user", userID).
			Msg("load: enumerate collections failed, skipping user")
		return
	}

	for _, entity := range collections {
		// Reserved collections (__history etc.) are not provider entities.
		if strings.HasPrefix(entity, "__") {
			continue
		}
		wg.Add(1)
		sem <- struct{}{} // Acquire semaphore
		go func() {
			defer wg.Done()
			defer func() { <-sem }() // Release semaphore
			p.refreshEntity(ctx, userID, entity)
		}()
	}
}

// refreshEntity forces one entity's refresh through the DAL, replaying the
// parameters recorded at its last fetch.
func (p *LoadPipeline) refreshEntity(ctx context.Context, userID, entity string) {
	defer func() {
		if r := recover(); r != nil {
			metrics.PipelineUnitFailures.WithLabelValues(models.SectionLoad).Inc()
			logging.Ctx(ctx).Error().
				Any("panic", r).
				Str("user", userID).
				Str("entity", entity).
				Msg("load: panic refreshing entity, siblings continue")
		}
	}()

	doc, err := p.store.GetDocument(ctx, userID, entity, models.InvokeInfoName)
	if err != nil {
		// A collection without invocation-info was never provider-fetched;
		// nothing to refresh.
		logging.Ctx(ctx).Debug().
			Str("user", userID).
			Str("entity", entity).
			Msg("load: no invoke info, skipping entity")
		return
	}

	info := decodeStoredInvokeInfo(doc)
	if info.Provider == "" || info.Name == "" {
		logging.Ctx(ctx).Debug().
			Str("user", userID).
			Str("entity", entity).
			Msg("load: invoke info names no provider, skipping entity")
		return
	}

	desc := p.registry.Lookup(info.Provider, info.Name)
	if desc == nil {
		metrics.PipelineUnitFailures.WithLabelValues(models.SectionLoad).Inc()
		logging.Ctx(ctx).Warn().
			Str("user", userID).
			Str("entity", entity).
			Str("provider", info.Provider).
			Str("function", info.Name).
			Msg("load: recorded provider not in registry, skipping entity")
		return
	}

	if items := p.dal.GetData(ctx, userID, desc, entity, info.Params, true); items == nil {
		// Cause already logged by the DAL; count the isolated failure.
		metrics.PipelineUnitFailures.WithLabelValues(models.SectionLoad).Inc()
	}
}

// decodeStoredInvokeInfo extracts the typed invocation record from its
// stored document form.
func decodeStoredInvokeInfo(doc models.Document) models.InvokeInfo {
	info := models.InvokeInfo{}
	if s, ok := doc["provider"].(string); ok {
		info.Provider = s
	}
	if s, ok := doc["name"].(string); ok {
		info.Name = s
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
