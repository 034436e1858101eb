// Sentigraph - Social Data Aggregation and Sentiment Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentigraph

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/sentigraph/internal/models"
)

// Key layout inside BadgerDB. The logical hierarchy is flattened into
// slash-separated keys under a single prefix:
//
//	users/{userId}/{collection}/{name}
//
// where collection may itself contain slashes for nested subcollections
// (entity/__invoke_info/metadata).
const (
	userKeyPrefix = "users/"
)

// casAttempts bounds retries when concurrent UpdateSystemInfo transactions
// conflict. Each retry re-reads the current state, so the guard predicate is
// re-evaluated rather than blindly re-applied.
const casAttempts = 3

// BadgerStore implements Store on BadgerDB for durable single-node storage.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens a BadgerDB-backed store at the given path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // BadgerDB's own logger is noisy; errors surface through ops
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStoreInMemory opens an ephemeral in-memory BadgerDB store.
// Used by tests that exercise the real transaction semantics.
func NewBadgerStoreInMemory() (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func documentPath(userID, collection, name string) []byte {
	return []byte(userKeyPrefix + userID + "/" + collection + "/" + name)
}

func systemInfoPath(section string) []byte {
	return []byte(userKeyPrefix + models.SystemInfoUser + "/" + section)
}

// GetDocument retrieves a single document.
func (s *BadgerStore) GetDocument(ctx context.Context, userID, collection, name string) (models.Document, error) {
	var doc models.Document
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(documentPath(userID, collection, name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get document: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// StoreDocument creates or overwrites a single document.
func (s *BadgerStore) StoreDocument(ctx context.Context, userID, collection, name string, doc models.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(documentPath(userID, collection, name), data)
	})
}

// StoreBatch upserts items keyed by keyField using a WriteBatch so large
// provider responses do not exceed a single transaction's size limit.
func (s *BadgerStore) StoreBatch(ctx context.Context, userID, collection string, items []models.Document, keyField string) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, item := range items {
		key := documentKey(item, keyField)
		if key == "" {
			continue
		}
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal item %s: %w", key, err)
		}
		if err := wb.Set(documentPath(userID, collection, key), data); err != nil {
			return fmt.Errorf("batch set %s: %w", key, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush batch: %w", err)
	}
	return nil
}

// Query returns the item documents of a collection, excluding the reserved
// invocation-info record and nested subcollection documents.
func (s *BadgerStore) Query(ctx context.Context, userID, collection string, filter *Filter) ([]models.Document, error) {
	prefix := userKeyPrefix + userID + "/" + collection + "/"
	results := make([]models.Document, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			name := string(it.Item().Key())[len(prefix):]
			// Skip the reserved record and anything nested beneath it.
			if name == models.InvokeInfoName || strings.Contains(name, "/") {
				continue
			}
			var doc models.Document
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &doc)
			}); err != nil {
				return fmt.Errorf("read item %s: %w", name, err)
			}
			if filter != nil && doc[filter.Field] != filter.Value {
				continue
			}
			results = append(results, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// QueryGroup returns all documents of the named subcollection across every
// entity of the user.
func (s *BadgerStore) QueryGroup(ctx context.Context, userID, subcollection string) ([]models.Document, error) {
	prefix := userKeyPrefix + userID + "/"
	dirSuffix := "/" + models.InvokeInfoName + "/" + subcollection
	results := make([]models.Document, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			rest := string(it.Item().Key())[len(prefix):]
			slash := strings.LastIndex(rest, "/")
			if slash < 0 {
				continue
			}
			dir := rest[:slash]
			if !strings.HasSuffix(dir, dirSuffix) {
				continue
			}
			var doc models.Document
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &doc)
			}); err != nil {
				return fmt.Errorf("read %s: %w", rest, err)
			}
			results = append(results, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetAllUsers returns every user ID present in the store.
func (s *BadgerStore) GetAllUsers(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(userKeyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			rest := string(it.Item().Key())[len(userKeyPrefix):]
			if slash := strings.Index(rest, "/"); slash > 0 {
				seen[rest[:slash]] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	users := make([]string, 0, len(seen))
	for userID := range seen {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users, nil
}

// GetUserCollections returns the top-level entity collection names of a user.
func (s *BadgerStore) GetUserCollections(ctx context.Context, userID string) ([]string, error) {
	prefix := userKeyPrefix + userID + "/"
	seen := make(map[string]bool)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			rest := string(it.Item().Key())[len(prefix):]
			if slash := strings.Index(rest, "/"); slash > 0 {
				seen[rest[:slash]] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	collections := make([]string, 0, len(seen))
	for name := range seen {
		collections = append(collections, name)
	}
	sort.Strings(collections)
	return collections, nil
}

// GetSystemInfo reads the run state of a pipeline section. A section never
// written returns the zero SystemInfo.
func (s *BadgerStore) GetSystemInfo(ctx context.Context, section string) (models.SystemInfo, error) {
	var info models.SystemInfo
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(systemInfoPath(section))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get system info: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &info)
		})
	})
	if err != nil {
		return models.SystemInfo{}, err
	}
	return info, nil
}

// UpdateSystemInfo applies mutate inside a transaction. BadgerDB detects
// write conflicts at commit time; a conflicting concurrent update triggers a
// bounded retry that re-reads the state, which preserves compare-and-swap
// semantics for the in-progress guard.
func (s *BadgerStore) UpdateSystemInfo(ctx context.Context, section string, mutate func(models.SystemInfo) (models.SystemInfo, bool)) (models.SystemInfo, bool, error) {
	key := systemInfoPath(section)

	for attempt := 0; attempt < casAttempts; attempt++ {
		var result models.SystemInfo
		var applied bool

		err := s.db.Update(func(txn *badger.Txn) error {
			var current models.SystemInfo
			item, err := txn.Get(key)
			if err == nil {
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &current)
				}); err != nil {
					return fmt.Errorf("read system info: %w", err)
				}
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("get system info: %w", err)
			}

			next, apply := mutate(current)
			if !apply {
				result, applied = current, false
				return nil
			}

			data, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("marshal system info: %w", err)
			}
			if err := txn.Set(key, data); err != nil {
				return fmt.Errorf("set system info: %w", err)
			}
			result, applied = next, true
			return nil
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return models.SystemInfo{}, false, err
		}
		return result, applied, nil
	}
	return models.SystemInfo{}, false, fmt.Errorf("update system info %s: %w", section, badger.ErrConflict)
}

// Close releases the underlying BadgerDB handle.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
