// Sentigraph - Social Data Aggregation and Sentiment Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentigraph

/*
dispatcher.go - Pipeline Section Dispatcher

Each named pipeline section (load, snapshot) is an independent two-state
machine persisted in the store's system-info record:

	Idle    (inProgress=false)
	Running (inProgress=true)

Idle -> Running requires, atomically (compare-and-swap through the store's
conditional update):
  - the inbound message is not older than the section's own interval
    (stale-message guard, distinct from the entity freshness window),
  - the stored state is Idle,
  - the last completed run is older than interval minus a safety buffer.
    The buffer absorbs scheduler and clock skew so a job does not fire again
    immediately after completing.

Running -> Idle is unconditional at pipeline completion, stamping the last
updated timestamp. A failure before the fan-out begins (e.g. the user
enumeration fails) deliberately leaves the section Running: auto-resetting
could mask genuine repeated failures, so the stuck state is logged loudly
and requires manual clearing.
*/
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/sentigraph/internal/logging"
	"github.com/tomtom215/sentigraph/internal/metrics"
	"github.com/tomtom215/sentigraph/internal/models"
	"github.com/tomtom215/sentigraph/internal/store"
	"github.com/tomtom215/sentigraph/internal/transport"
)

// DefaultBuffer is the safety margin subtracted from a section's interval
// when deciding whether the previous run is old enough to run again.
const DefaultBuffer = time.Minute

// Runner is a pipeline body. An error return means the run failed before
// its fan-out began; per-unit failures inside the fan-out are isolated by
// the body itself and never surface here.
type Runner interface {
	Run(ctx context.Context) error
}

// Section couples one pipeline body with its persisted run-state guard.
type Section struct {
	// Name is the system-info section name, e.g. "load".
	Name string

	// Interval is the scheduled cadence of the section. Messages older
	// than this are rejected as stale.
	Interval time.Duration

	// Buffer is the scheduler-skew safety margin. Default: DefaultBuffer.
	Buffer time.Duration

	// Runner executes the pipeline body.
	Runner Runner
}

// Dispatcher routes inbound action messages to their pipeline sections.
type Dispatcher struct {
	store    store.Store
	sections map[string]*Section
}

// NewDispatcher creates a dispatcher over the given sections, keyed by the
// transport action that triggers each.
func NewDispatcher(st store.Store, sections map[string]*Section) *Dispatcher {
	for _, section := range sections {
		if section.Buffer <= 0 {
			section.Buffer = DefaultBuffer
		}
	}
	return &Dispatcher{store: st, sections: sections}
}

// Handlers returns the transport handler map for this dispatcher's sections.
func (d *Dispatcher) Handlers() map[string]transport.Handler {
	handlers := make(map[string]transport.Handler, len(d.sections))
	for action, section := range d.sections {
		handlers[action] = func(ctx context.Context, msg transport.ActionMessage) error {
			return d.trigger(ctx, section, msg)
		}
	}
	return handlers
}

// trigger runs one section if its guards allow. Duplicate and stale
// deliveries degrade to no-ops, which is what makes the at-least-once
// transport safe to consume.
func (d *Dispatcher) trigger(ctx context.Context, section *Section, msg transport.ActionMessage) error {
	now := time.Now().UnixMilli()

	// Stale-message guard: a delivery older than the section's own cadence
	// is a leftover from a previous scheduling cycle.
	if msg.Timestamp > 0 && now-msg.Timestamp > section.Interval.Milliseconds() {
		metrics.PipelineRuns.WithLabelValues(section.Name, "stale").Inc()
		logging.Ctx(ctx).Warn().
			Str("section", section.Name).
			Int64("message_ts", msg.Timestamp).
			Msg("dropping stale pipeline message")
		return nil
	}

	// Idle -> Running, atomically. The mutate closure re-evaluates the
	// guard against the freshest stored state, so two rapid deliveries
	// admit exactly one run.
	var skipReason string
	_, acquired, err := d.store.UpdateSystemInfo(ctx, section.Name, func(cur models.SystemInfo) (models.SystemInfo, bool) {
		if cur.InProgress {
			skipReason = "in progress"
			return cur, false
		}
		threshold := (section.Interval - section.Buffer).Milliseconds()
		if cur.LastUpdatedTimestamp != 0 && now-cur.LastUpdatedTimestamp <= threshold {
			skipReason = "ran recently"
			return cur, false
		}
		cur.InProgress = true
		return cur, true
	})
	if err != nil {
		metrics.PipelineRuns.WithLabelValues(section.Name, "error").Inc()
		return fmt.Errorf("acquire %s guard: %w", section.Name, err)
	}
	if !acquired {
		metrics.PipelineRuns.WithLabelValues(section.Name, "skipped").Inc()
		logging.Ctx(ctx).Debug().
			Str("section", section.Name).
			Str("reason", skipReason).
			Msg("pipeline trigger skipped")
		return nil
	}

	logging.Ctx(ctx).Info().
		Str("section", section.Name).
		Msg("pipeline starting")

	start := time.Now()
	if err := section.Runner.Run(ctx); err != nil {
		// Pre-fan-out failure: the section stays Running until cleared by
		// hand. See the file banner for why this is not auto-reset.
		metrics.PipelineRuns.WithLabelValues(section.Name, "error").Inc()
		logging.Ctx(ctx).Error().
			Err(err).
			Str("section", section.Name).
			Msg("pipeline failed before fan-out; section stuck in-progress, clear manually")
		return err
	}

	// Running -> Idle, unconditional.
	completed := time.Now().UnixMilli()
	if _, _, err := d.store.UpdateSystemInfo(ctx, section.Name, func(cur models.SystemInfo) (models.SystemInfo, bool) {
		cur.InProgress = false
		cur.LastUpdatedTimestamp = completed
		return cur, true
	}); err != nil {
		metrics.PipelineRuns.WithLabelValues(section.Name, "error").Inc()
		return fmt.Errorf("release %s guard: %w", section.Name, err)
	}

	metrics.PipelineRuns.WithLabelValues(section.Name, "completed").Inc()
	metrics.PipelineDuration.WithLabelValues(section.Name).Observe(time.Since(start).Seconds())
	logging.Ctx(ctx).Info().
		Str("section", section.Name).
		Dur("duration", time.Since(start)).
		Msg("pipeline completed")
	return nil
}
