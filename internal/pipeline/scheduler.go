// Sentigraph - Social Data Aggregation and Sentiment Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentigraph

package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/sentigraph/internal/logging"
	"github.com/tomtom215/sentigraph/internal/transport"
)

// ScheduleEntry publishes one action on a fixed cadence.
type ScheduleEntry struct {
	Action   string
	Interval time.Duration
}

// TickerScheduler is the in-process replacement for an external cron
// service: it publishes pipeline action messages on their configured
// cadence. Standalone deployments enable it; deployments with a real
// scheduler leave it off and let the external service publish instead.
// It implements suture.Service.
type TickerScheduler struct {
	publisher message.Publisher
	topic     string
	entries   []ScheduleEntry
}

// NewTickerScheduler creates a scheduler over the given publisher.
func NewTickerScheduler(pub message.Publisher, topic string, entries []ScheduleEntry) *TickerScheduler {
	return &TickerScheduler{publisher: pub, topic: topic, entries: entries}
}

// Serve publishes each entry's action on its interval until the context is
// canceled. The dispatcher's guards make an extra publish harmless, so the
// scheduler does not try to be clever about startup alignment.
func (s *TickerScheduler) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, entry := range s.entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runEntry(ctx, entry)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (s *TickerScheduler) runEntry(ctx context.Context, entry ScheduleEntry) {
	ticker := time.NewTicker(entry.Interval)
	defer ticker.Stop()

	logging.Info().
		Str("action", entry.Action).
		Dur("interval", entry.Interval).
		Msg("scheduler entry started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := transport.PublishAction(s.publisher, s.topic, entry.Action); err != nil {
				logging.Error().
					Err(err).
					Str("action", entry.Action).
					Msg("scheduled publish failed")
			}
		}
	}
}
