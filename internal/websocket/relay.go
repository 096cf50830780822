// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package websocket

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/showtrail/internal/logging"
	"github.com/tomtom215/showtrail/internal/notify"
)

// ErrSubscriptionClosed is returned by Serve when the source closes a
// subscription while the relay is still running.
var ErrSubscriptionClosed = errors.New("websocket: notification subscription closed")

// Subscriber is the notification source the relay consumes.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

// Sender is the part of the hub the relay writes to.
type Sender interface {
	SendToUser(userID, messageType string, data any) bool
}

// Relay forwards notifications to the websocket clients of their user.
type Relay struct {
	source Subscriber
	hub    Sender
}

// NewRelay creates a relay from source to hub.
func NewRelay(source Subscriber, hub Sender) *Relay {
	return &Relay{source: source, hub: hub}
}

// Serve implements suture.Service. It returns when ctx ends or a
// subscription closes.
func (r *Relay) Serve(ctx context.Context) error {
	badges, err := r.source.Subscribe(ctx, notify.TopicBadgesEarned)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", notify.TopicBadgesEarned, err)
	}
	summaries, err := r.source.Subscribe(ctx, notify.TopicActivitySummaries)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", notify.TopicActivitySummaries, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.pump(gctx, badges, func(msg *message.Message) (string, any, error) {
			b, err := notify.DecodeBadges(msg)
			return MessageTypeBadgeEarned, b, err
		})
	})
	g.Go(func() error {
		return r.pump(gctx, summaries, func(msg *message.Message) (string, any, error) {
			s, err := notify.DecodeSummary(msg)
			return MessageTypeActivity, s, err
		})
	})
	return g.Wait()
}

func (r *Relay) String() string {
	return "notification-relay"
}

type decodeFunc func(*message.Message) (string, any, error)

func (r *Relay) pump(ctx context.Context, messages <-chan *message.Message, decode decodeFunc) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrSubscriptionClosed
			}
			r.forward(msg, decode)
			msg.Ack()
		}
	}
}

func (r *Relay) forward(msg *message.Message, decode decodeFunc) {
	userID := msg.Metadata.Get(notify.MetadataUserID)
	if userID == "" {
		logging.Warn().Str("message_id", msg.UUID).Msg("notification without user, not relayed")
		return
	}
	kind, data, err := decode(msg)
	if err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Msg("undecodable notification, not relayed")
		return
	}
	r.hub.SendToUser(userID, kind, data)
}
