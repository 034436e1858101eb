// Sentigraph - Social Data Aggregation and Sentiment Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentigraph

package store

import (
	"fmt"
)

// Compile-time interface checks.
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*BadgerStore)(nil)
)

// Store type identifiers used in configuration.
const (
	TypeMemory = "memory"
	TypeBadger = "badger"
)

// New creates a Store of the configured type. The memory store ignores path.
func New(storeType, path string) (Store, error) {
	switch storeType {
	case TypeMemory:
		return NewMemoryStore(), nil
	case TypeBadger:
		if path == "" {
			return nil, fmt.Errorf("badger store requires a data path")
		}
		return NewBadgerStore(path)
	default:
		return nil, fmt.Errorf("unknown store type %q (want %s or %s)", storeType, TypeMemory, TypeBadger)
	}
}
