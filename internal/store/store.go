// Sentigraph - Social Data Aggregation and Sentiment Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentigraph

// Package store provides the per-user hierarchical document store consumed by
// the data access layer and the pipelines.
//
// Logical layout (store-agnostic):
//
//	users/{userId}/{entityName}/{itemId}                          item documents
//	users/{userId}/{entityName}/__invoke_info                     invocation-info singleton
//	users/{userId}/{entityName}/__invoke_info/metadata/{itemId}   per-item metadata
//	users/__system_info/{sectionName}                             pipeline run state
//	users/{userId}/__history/{timestamp}                          snapshot documents
//
// Two implementations exist: BadgerStore (durable, production) and
// MemoryStore (tests and development). Both are selected via config.
package store

import (
	"context"
	"errors"

	"github.com/tomtom215/sentigraph/internal/models"
)

// Sentinel errors returned by store implementations.
var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("store: document not found")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store: closed")
)

// Filter narrows a Query to documents whose field equals the given value.
type Filter struct {
	Field string
	Value any
}

// Store is the document store interface consumed by the core.
//
// Query excludes the reserved invocation-info document and any nested
// subcollection documents. StoreBatch upserts by key and never deletes items
// absent from the batch (accumulation semantics).
type Store interface {
	// GetDocument retrieves a single document. Returns ErrNotFound if absent.
	GetDocument(ctx context.Context, userID, collection, name string) (models.Document, error)

	// StoreDocument creates or overwrites a single document.
	StoreDocument(ctx context.Context, userID, collection, name string, doc models.Document) error

	// StoreBatch upserts items keyed by keyField. Items missing the key
	// field are skipped. Items already present but absent from this batch
	// are left untouched.
	StoreBatch(ctx context.Context, userID, collection string, items []models.Document, keyField string) error

	// Query returns the item documents of a collection, excluding the
	// reserved invocation-info record and nested subcollection documents.
	// A nil filter returns all items.
	Query(ctx context.Context, userID, collection string, filter *Filter) ([]models.Document, error)

	// QueryGroup returns all documents of the named subcollection across
	// every entity of the user (collection-group query).
	QueryGroup(ctx context.Context, userID, subcollection string) ([]models.Document, error)

	// GetAllUsers returns every user ID present in the store, including
	// the synthetic system-info pseudo-user. Callers filter reserved names.
	GetAllUsers(ctx context.Context) ([]string, error)

	// GetUserCollections returns the entity collection names of a user,
	// including reserved collections such as __history. Callers filter.
	GetUserCollections(ctx context.Context, userID string) ([]string, error)

	// GetSystemInfo reads the run state of a pipeline section. A section
	// never written returns the zero SystemInfo, not ErrNotFound.
	GetSystemInfo(ctx context.Context, section string) (models.SystemInfo, error)

	// UpdateSystemInfo applies mutate to the current section state inside
	// a transaction. If mutate returns false the state is left unchanged
	// and applied is false. This is the compare-and-swap primitive backing
	// the pipeline in-progress guard.
	UpdateSystemInfo(ctx context.Context, section string, mutate func(models.SystemInfo) (models.SystemInfo, bool)) (info models.SystemInfo, applied bool, err error)

	// Close releases underlying resources.
	Close() error
}

// MetadataCollection returns the collection path of the metadata
// subcollection nested under an entity's invocation-info document.
func MetadataCollection(entity string) string {
	return entity + "/" + models.InvokeInfoName + "/" + models.MetadataSubcollection
}
