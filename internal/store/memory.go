// Sentigraph - Social Data Aggregation and Sentiment Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentigraph

package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/tomtom215/sentigraph/internal/models"
)

// MemoryStore is an in-memory Store for tests and development. All operations
// are guarded by a single mutex, which makes UpdateSystemInfo trivially
// atomic.
type MemoryStore struct {
	mu sync.RWMutex
	// docs maps userID -> collection path -> document name -> document.
	docs   map[string]map[string]map[string]models.Document
	system map[string]models.SystemInfo
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string]map[string]map[string]models.Document),
		system: make(map[string]models.SystemInfo),
	}
}

func (s *MemoryStore) collection(userID, collection string, create bool) map[string]models.Document {
	user, ok := s.docs[userID]
	if !ok {
		if !create {
			return nil
		}
		user = make(map[string]map[string]models.Document)
		s.docs[userID] = user
	}
	col, ok := user[collection]
	if !ok {
		if !create {
			return nil
		}
		col = make(map[string]models.Document)
		user[collection] = col
	}
	return col
}

// GetDocument retrieves a single document.
func (s *MemoryStore) GetDocument(ctx context.Context, userID, collection, name string) (models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	col := s.collection(userID, collection, false)
	if col == nil {
		return nil, ErrNotFound
	}
	doc, ok := col[name]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDocument(doc), nil
}

// StoreDocument creates or overwrites a single document.
func (s *MemoryStore) StoreDocument(ctx context.Context, userID, collection, name string, doc models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.collection(userID, collection, true)[name] = cloneDocument(doc)
	return nil
}

// StoreBatch upserts items keyed by keyField. Items without the key field or
// with a non-string key are skipped.
func (s *MemoryStore) StoreBatch(ctx context.Context, userID, collection string, items []models.Document, keyField string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	col := s.collection(userID, collection, true)
	for _, item := range items {
		key := documentKey(item, keyField)
		if key == "" {
			continue
		}
		col[key] = cloneDocument(item)
	}
	return nil
}

// Query returns the item documents of a collection, excluding the reserved
// invocation-info record.
func (s *MemoryStore) Query(ctx context.Context, userID, collection string, filter *Filter) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	col := s.collection(userID, collection, false)
	if col == nil {
		return []models.Document{}, nil
	}
	names := make([]string, 0, len(col))
	for name := range col {
		if name == models.InvokeInfoName {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]models.Document, 0, len(names))
	for _, name := range names {
		doc := col[name]
		if filter != nil && doc[filter.Field] != filter.Value {
			continue
		}
		results = append(results, cloneDocument(doc))
	}
	return results, nil
}

// QueryGroup returns all documents of the named subcollection across every
// entity of the user.
func (s *MemoryStore) QueryGroup(ctx context.Context, userID, subcollection string) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	user := s.docs[userID]
	if user == nil {
		return []models.Document{}, nil
	}
	suffix := "/" + models.InvokeInfoName + "/" + subcollection

	paths := make([]string, 0)
	for path := range user {
		if strings.HasSuffix(path, suffix) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)

	results := make([]models.Document, 0)
	for _, path := range paths {
		names := make([]string, 0, len(user[path]))
		for name := range user[path] {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			results = append(results, cloneDocument(user[path][name]))
		}
	}
	return results, nil
}

// GetAllUsers returns every user ID present in the store.
func (s *MemoryStore) GetAllUsers(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	users := make([]string, 0, len(s.docs))
	for userID := range s.docs {
		users = append(users, userID)
	}
	if len(s.system) > 0 {
		found := false
		for _, u := range users {
			if u == models.SystemInfoUser {
				found = true
				break
			}
		}
		if !found {
			users = append(users, models.SystemInfoUser)
		}
	}
	sort.Strings(users)
	return users, nil
}

// GetUserCollections returns the top-level entity collection names of a user.
// Nested subcollection paths (entity/__invoke_info/metadata) collapse to
// their entity segment.
func (s *MemoryStore) GetUserCollections(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	user := s.docs[userID]
	if user == nil {
		return []string{}, nil
	}
	seen := make(map[string]bool)
	for path := range user {
		entity := path
		if i := strings.Index(path, "/"); i >= 0 {
			entity = path[:i]
		}
		seen[entity] = true
	}
	collections := make([]string, 0, len(seen))
	for entity := range seen {
		collections = append(collections, entity)
	}
	sort.Strings(collections)
	return collections, nil
}

// GetSystemInfo reads the run state of a pipeline section.
func (s *MemoryStore) GetSystemInfo(ctx context.Context, section string) (models.SystemInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return models.SystemInfo{}, ErrClosed
	}
	return s.system[section], nil
}

// UpdateSystemInfo applies mutate to the current section state atomically.
func (s *MemoryStore) UpdateSystemInfo(ctx context.Context, section string, mutate func(models.SystemInfo) (models.SystemInfo, bool)) (models.SystemInfo, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.SystemInfo{}, false, ErrClosed
	}
	current := s.system[section]
	next, apply := mutate(current)
	if !apply {
		return current, false, nil
	}
	s.system[section] = next
	return next, true, nil
}

// Close marks the store closed. Subsequent operations return ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// documentKey extracts the string key of an item. JSON numbers arrive as
// float64, so numeric keys are not supported; providers use string IDs.
func documentKey(item models.Document, keyField string) string {
	v, ok := item[keyField]
	if !ok {
		return ""
	}
	key, ok := v.(string)
	if !ok {
		return ""
	}
	return key
}

// cloneDocument shallow-copies a document so callers cannot mutate stored
// state through the returned map.
func cloneDocument(doc models.Document) models.Document {
	if doc == nil {
		return nil
	}
	out := make(models.Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
