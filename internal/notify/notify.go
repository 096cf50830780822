// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

// Package notify hands earned badges and activity summaries to whoever
// presents them. Payloads are JSON on an in-process watermill pub/sub;
// every message carries the owning user in its metadata so consumers can
// route without decoding.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/showtrail/internal/activity"
	"github.com/tomtom215/showtrail/internal/catalog"
	"github.com/tomtom215/showtrail/internal/logging"
	"github.com/tomtom215/showtrail/internal/metrics"
)

const (
	// TopicBadgesEarned carries one BadgesEarned per logical update.
	TopicBadgesEarned = "badges.earned"

	// TopicActivitySummaries carries one activity.Summary per message.
	TopicActivitySummaries = "activity.summaries"

	// MetadataUserID names the metadata key holding the user id.
	MetadataUserID = "user_id"
)

// ErrClosed is returned for publishes after Close.
var ErrClosed = errors.New("notify: publisher closed")

// BadgesEarned is the payload of TopicBadgesEarned.
type BadgesEarned struct {
	UserID   string                `json:"userId"`
	Badges   []catalog.EarnedBadge `json:"badges"`
	EarnedAt time.Time             `json:"earnedAt"`
}

// Options configures the publisher.
type Options struct {
	// OutputBuffer is the per-subscriber channel buffer.
	OutputBuffer int64

	// Now stamps BadgesEarned. Defaults to time.Now.
	Now func() time.Time
}

// Publisher publishes notifications and lets consumers subscribe to them.
type Publisher struct {
	pubsub *gochannel.GoChannel
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
}

var _ activity.SummarySink = (*Publisher)(nil)

// NewPublisher creates a publisher backed by an in-process channel.
func NewPublisher(opts Options) *Publisher {
	if opts.OutputBuffer <= 0 {
		opts.OutputBuffer = 256
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := watermill.NewSlogLogger(logging.NewSlogLogger())
	return &Publisher{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: opts.OutputBuffer}, logger),
		now:    opts.Now,
	}
}

// Publish sends payload as JSON on topic on behalf of userID.
func (p *Publisher) Publish(ctx context.Context, topic, userID string, payload any) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(MetadataUserID, userID)
	msg.SetContext(ctx)

	if err := p.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	metrics.NotificationsPublished.WithLabelValues(topic).Inc()
	return nil
}

// PublishSummary implements activity.SummarySink.
func (p *Publisher) PublishSummary(ctx context.Context, s activity.Summary) error {
	return p.Publish(ctx, TopicActivitySummaries, s.UserID, s)
}

// PublishBadges publishes the badges earned by one update. An empty list
// publishes nothing.
func (p *Publisher) PublishBadges(ctx context.Context, userID string, badges []catalog.EarnedBadge) error {
	if len(badges) == 0 {
		return nil
	}
	return p.Publish(ctx, TopicBadgesEarned, userID, BadgesEarned{
		UserID:   userID,
		Badges:   badges,
		EarnedAt: p.now().UTC(),
	})
}

// BadgeCallback adapts PublishBadges to the activity manager's callback.
// Publish failures are logged.
func (p *Publisher) BadgeCallback(ctx context.Context) activity.BadgeCallback {
	return func(userID string, badges []catalog.EarnedBadge) {
		if err := p.PublishBadges(ctx, userID, badges); err != nil {
			logging.Warn().Err(err).Str("user_id", userID).Int("badges", len(badges)).Msg("Failed to publish earned badges")
		}
	}
}

// Subscribe returns the messages published on topic until ctx ends.
// Every message must be acked before the next one is delivered.
func (p *Publisher) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrClosed
	}
	return p.pubsub.Subscribe(ctx, topic)
}

// Close stops the pub/sub and closes every subscription.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.pubsub.Close()
}

// DecodeBadges decodes a TopicBadgesEarned message.
func DecodeBadges(msg *message.Message) (BadgesEarned, error) {
	var out BadgesEarned
	if err := json.Unmarshal(msg.Payload, &out); err != nil {
		return BadgesEarned{}, fmt.Errorf("decode badges message %s: %w", msg.UUID, err)
	}
	return out, nil
}

// DecodeSummary decodes a TopicActivitySummaries message.
func DecodeSummary(msg *message.Message) (activity.Summary, error) {
	var out activity.Summary
	if err := json.Unmarshal(msg.Payload, &out); err != nil {
		return activity.Summary{}, fmt.Errorf("decode summary message %s: %w", msg.UUID, err)
	}
	return out, nil
}
