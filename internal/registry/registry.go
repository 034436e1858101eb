// Sentigraph - Social Data Aggregation and Sentiment Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentigraph

// Package registry maps provider and function names to callable descriptors.
//
// The registry is an explicit object constructed at startup and injected into
// the data access layer and the pipelines. It carries no hidden global state,
// which keeps provider fakes substitutable in tests.
package registry

import (
	"context"
	"fmt"
	"sync"
)

// ProviderFunc invokes an upstream provider API with the recorded parameter
// list and returns the raw decoded response.
type ProviderFunc func(ctx context.Context, params []string) (any, error)

// Descriptor describes one callable provider function.
type Descriptor struct {
	// Provider is the provider name, e.g. "facebook" or "twitter".
	Provider string

	// Name is the function name within the provider, e.g. "get-pages".
	Name string

	// Func performs the upstream call.
	Func ProviderFunc

	// Entity is the default entity name when the caller supplies none,
	// e.g. "twitter:mentions".
	Entity string

	// ArrayKey, when set, names the field of the raw response holding the
	// item array. When empty the response itself is the array.
	ArrayKey string

	// ItemKey names the item field whose value uniquely keys the item
	// within its entity, e.g. "id" or "id_str".
	ItemKey string

	// SentimentTextField names the item field whose text is scored.
	SentimentTextField string

	// SentimentField names an item field carrying a pre-classified
	// positive/neutral/negative label, used instead of calling the scorer.
	SentimentField string

	// TextField names the item field stored as the metadata text when the
	// sentiment source is a pre-classified label.
	TextField string
}

// Registry is a lookup table of provider descriptors. Registration happens
// at startup; lookups afterward are concurrent-safe.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*Descriptor
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{descriptors: make(map[string]*Descriptor)}
}

func key(provider, name string) string {
	return provider + ":" + name
}

// Register adds a descriptor. Registering a (provider, name) pair twice or a
// descriptor missing required fields is a programming error and fails.
func (r *Registry) Register(d *Descriptor) error {
	if d == nil || d.Provider == "" || d.Name == "" {
		return fmt.Errorf("registry: descriptor requires provider and name")
	}
	if d.Func == nil {
		return fmt.Errorf("registry: descriptor %s:%s requires a provider function", d.Provider, d.Name)
	}
	if d.ItemKey == "" {
		return fmt.Errorf("registry: descriptor %s:%s requires an item key", d.Provider, d.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(d.Provider, d.Name)
	if _, exists := r.descriptors[k]; exists {
		return fmt.Errorf("registry: descriptor %s already registered", k)
	}
	r.descriptors[k] = d
	return nil
}

// MustRegister registers a descriptor and panics on error. Intended for
// static registration tables in main.
func (r *Registry) MustRegister(d *Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Lookup resolves a (provider, function) pair. Returns nil when unknown.
func (r *Registry) Lookup(provider, name string) *Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.descriptors[key(provider, name)]
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.descriptors)
}
