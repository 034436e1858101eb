// Sentigraph - Social Data Aggregation and Sentiment Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentigraph

package dal

import (
	"context"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/sentigraph/internal/logging"
	"github.com/tomtom215/sentigraph/internal/metrics"
	"github.com/tomtom215/sentigraph/internal/models"
	"github.com/tomtom215/sentigraph/internal/registry"
)

// providerBreaker wraps one provider's invocations with a circuit breaker so
// a failing upstream API cannot stall every refresh that touches it.
type providerBreaker struct {
	cb *gobreaker.CircuitBreaker[any]
}

// breakerFor returns the circuit breaker for a provider, creating it on
// first use.
//
// Configuration:
//   - Max 3 concurrent requests in half-open state
//   - 1 minute measurement window
//   - 2 minute timeout before attempting recovery
//   - Opens after 60% failure rate with minimum 10 requests
func (d *DAL) breakerFor(provider string) *providerBreaker {
	d.breakerMu.Lock()
	defer d.breakerMu.Unlock()

	if pb, ok := d.breakers[provider]; ok {
		return pb
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        provider,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("provider circuit breaker state transition")
		},
	})

	pb := &providerBreaker{cb: cb}
	d.breakers[provider] = pb
	return pb
}

// callProvider invokes the descriptor's function with the given params and
// normalizes the raw response into an item array. A nil or empty response is
// an error so callers do not mutate state on an empty fetch.
func (d *DAL) callProvider(ctx context.Context, desc *registry.Descriptor, params []string) ([]models.Document, error) {
	if desc.Func == nil {
		return nil, fmt.Errorf("%w: provider %s:%s has no function", errUnresolved, desc.Provider, desc.Name)
	}

	start := time.Now()
	raw, err := d.breakerFor(desc.Provider).cb.Execute(func() (any, error) {
		return desc.Func(ctx, params)
	})
	metrics.ProviderCallDuration.WithLabelValues(desc.Provider).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ProviderCalls.WithLabelValues(desc.Provider, "error").Inc()
		return nil, fmt.Errorf("provider %s:%s: %w", desc.Provider, desc.Name, err)
	}

	items, err := itemsFromResponse(desc, raw)
	if err != nil {
		metrics.ProviderCalls.WithLabelValues(desc.Provider, "error").Inc()
		return nil, err
	}
	if len(items) == 0 {
		metrics.ProviderCalls.WithLabelValues(desc.Provider, "empty").Inc()
		return nil, fmt.Errorf("%w (%s:%s)", errNoData, desc.Provider, desc.Name)
	}

	metrics.ProviderCalls.WithLabelValues(desc.Provider, "success").Inc()
	return items, nil
}

// itemsFromResponse maps the raw provider response to an item array, either
// directly or through the descriptor's ArrayKey.
func itemsFromResponse(desc *registry.Descriptor, raw any) ([]models.Document, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w (%s:%s)", errNoData, desc.Provider, desc.Name)
	}

	if desc.ArrayKey != "" {
		wrapper, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("provider %s:%s: response is not an object (array key %q)", desc.Provider, desc.Name, desc.ArrayKey)
		}
		raw = wrapper[desc.ArrayKey]
		if raw == nil {
			return nil, fmt.Errorf("%w (%s:%s missing %q)", errNoData, desc.Provider, desc.Name, desc.ArrayKey)
		}
	}

	switch arr := raw.(type) {
	case []models.Document:
		return arr, nil
	case []any:
		items := make([]models.Document, 0, len(arr))
		for _, el := range arr {
			if doc, ok := el.(map[string]any); ok {
				items = append(items, doc)
			}
		}
		return items, nil
	default:
		return nil, fmt.Errorf("provider %s:%s: response is not an array", desc.Provider, desc.Name)
	}
}
