// Sentigraph - Social Data Aggregation and Sentiment Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentigraph

package sentiment

import (
	"context"
	"errors"
)

// ErrDisabled is returned by the disabled scorer. Callers treat it like any
// scorer failure: the item stays unscored and is retried once a real scorer
// is configured.
var ErrDisabled = errors.New("sentiment: scoring disabled")

// Disabled is the scorer used when no scoring endpoint is configured.
// Providers with pre-classified labels still get metadata; free-text scoring
// is skipped.
type Disabled struct{}

// Analyze always fails with ErrDisabled.
func (Disabled) Analyze(_ context.Context, _ string) (Result, error) {
	return Result{}, ErrDisabled
}
