// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package websocket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/showtrail/internal/activity"
	"github.com/tomtom215/showtrail/internal/catalog"
	"github.com/tomtom215/showtrail/internal/notify"
)

type sent struct {
	userID string
	kind   string
	data   any
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recordingSender) SendToUser(userID, messageType string, data any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{userID: userID, kind: messageType, data: data})
	return true
}

func (r *recordingSender) snapshot() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.sent...)
}

func startRelay(t *testing.T) (*notify.Publisher, *recordingSender) {
	t.Helper()
	pub := notify.NewPublisher(notify.Options{})
	rec := &recordingSender{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = NewRelay(pub, rec).Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = pub.Close()
	})
	// Subscriptions are established asynchronously; gochannel drops
	// messages with no subscriber.
	time.Sleep(50 * time.Millisecond)
	return pub, rec
}

func TestRelayForwardsBadges(t *testing.T) {
	pub, rec := startRelay(t)

	def := catalog.Default().List()[0]
	err := pub.PublishBadges(context.Background(), "u1", []catalog.EarnedBadge{def.Earn(time.Now(), "")})
	if err != nil {
		t.Fatalf("PublishBadges: %v", err)
	}

	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })
	got := rec.snapshot()[0]
	if got.userID != "u1" || got.kind != MessageTypeBadgeEarned {
		t.Errorf("sent = %+v", got)
	}
	payload, ok := got.data.(notify.BadgesEarned)
	if !ok || len(payload.Badges) != 1 || payload.Badges[0].ID != def.ID {
		t.Errorf("payload = %#v", got.data)
	}
}

func TestRelayForwardsSummaries(t *testing.T) {
	pub, rec := startRelay(t)

	err := pub.PublishSummary(context.Background(), activity.Summary{ID: "s1", UserID: "u2", Description: "Watched Show S01E01"})
	if err != nil {
		t.Fatalf("PublishSummary: %v", err)
	}

	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })
	got := rec.snapshot()[0]
	if got.userID != "u2" || got.kind != MessageTypeActivity {
		t.Errorf("sent = %+v", got)
	}
}

func TestRelaySkipsMessagesWithoutUser(t *testing.T) {
	pub, rec := startRelay(t)

	if err := pub.Publish(context.Background(), notify.TopicActivitySummaries, "", activity.Summary{ID: "orphan"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := pub.PublishSummary(context.Background(), activity.Summary{ID: "s2", UserID: "u3"}); err != nil {
		t.Fatalf("PublishSummary: %v", err)
	}

	waitFor(t, func() bool { return len(rec.snapshot()) >= 1 })
	time.Sleep(20 * time.Millisecond)
	got := rec.snapshot()
	if len(got) != 1 || got[0].userID != "u3" {
		t.Errorf("sent = %+v, want only u3", got)
	}
}
