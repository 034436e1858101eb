// Sentigraph - Social Data Aggregation and Sentiment Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentigraph

// Package transport delivers scheduled action messages to the pipeline
// dispatcher over Watermill.
//
// Delivery is at-least-once: the consumer acks unconditionally after
// attempting dispatch, and the dispatcher's persisted state machine makes
// duplicate or stale deliveries degrade to no-ops. Two backends are
// supported: the in-process gochannel pub/sub (development, tests) and NATS
// JetStream (production).
package transport

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/sentigraph/internal/logging"
)

// ActionMessage is the payload of a scheduled or manually triggered action.
type ActionMessage struct {
	// Action names the pipeline trigger, e.g. "invoke-load".
	Action string `json:"action"`

	// Timestamp is epoch milliseconds at publish time. Consumers reject
	// messages older than their section's cadence.
	Timestamp int64 `json:"timestamp"`
}

// Handler processes one decoded action message.
type Handler func(ctx context.Context, msg ActionMessage) error

// NewGoChannel creates the in-process pub/sub used for development and
// tests. The returned value is both a message.Publisher and a
// message.Subscriber.
func NewGoChannel() *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
}

// PublishAction publishes an action message with the current timestamp.
func PublishAction(pub message.Publisher, topic, action string) error {
	payload, err := json.Marshal(ActionMessage{
		Action:    action,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	return pub.Publish(topic, message.NewMessage(watermill.NewUUID(), payload))
}

// Consumer subscribes a topic and dispatches decoded actions through a
// registered handler map. It implements suture.Service.
type Consumer struct {
	subscriber message.Subscriber
	topic      string
	handlers   map[string]Handler
}

// NewConsumer creates a consumer over the given subscriber and handler map.
func NewConsumer(sub message.Subscriber, topic string, handlers map[string]Handler) *Consumer {
	return &Consumer{subscriber: sub, topic: topic, handlers: handlers}
}

// Serve consumes messages until the context is canceled. Every message is
// acked after dispatch regardless of handler outcome; redelivery would not
// help a handler that has already decided the trigger is stale or duplicate.
func (c *Consumer) Serve(ctx context.Context) error {
	messages, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		return err
	}

	logging.Info().
		Str("topic", c.topic).
		Int("handlers", len(c.handlers)).
		Msg("transport consumer started")

	for msg := range messages {
		c.dispatch(ctx, msg)
		msg.Ack()
	}
	return ctx.Err()
}

func (c *Consumer) dispatch(ctx context.Context, msg *message.Message) {
	var action ActionMessage
	if err := json.Unmarshal(msg.Payload, &action); err != nil {
		logging.Error().
			Err(err).
			Str("message_uuid", msg.UUID).
			Msg("undecodable action message dropped")
		return
	}

	handler, ok := c.handlers[action.Action]
	if !ok {
		logging.Warn().
			Str("action", action.Action).
			Msg("no handler registered for action")
		return
	}

	// Each dispatch gets a correlation ID so one pipeline run is traceable
	// across the dispatcher and the DAL.
	runCtx := logging.ContextWithNewCorrelationID(ctx)
	if err := handler(runCtx, action); err != nil {
		logging.Ctx(runCtx).Error().
			Err(err).
			Str("action", action.Action).
			Msg("action handler failed")
	}
}
