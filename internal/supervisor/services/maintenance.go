// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package services

import (
	"context"
	"time"

	"github.com/tomtom215/showtrail/internal/logging"
)

// Sweeper finalizes expired binge windows and releases idle sessions.
// Satisfied by *activity.Manager.
type Sweeper interface {
	Sweep(ctx context.Context, idleAfter time.Duration) (finalized, released int)
}

// GarbageCollector reclaims store space. Satisfied by *store.BadgerStore.
type GarbageCollector interface {
	RunGC(discardRatio float64) error
}

// tick calls fn every interval until ctx is canceled.
func tick(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// SweeperService runs Sweep on an interval.
type SweeperService struct {
	sweeper   Sweeper
	interval  time.Duration
	idleAfter time.Duration
}

// NewSweeperService creates the service. idleAfter of zero never releases
// sessions.
func NewSweeperService(sweeper Sweeper, interval, idleAfter time.Duration) *SweeperService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SweeperService{sweeper: sweeper, interval: interval, idleAfter: idleAfter}
}

// Serve implements suture.Service.
func (s *SweeperService) Serve(ctx context.Context) error {
	return tick(ctx, s.interval, s.RunOnce)
}

// RunOnce performs one sweep.
func (s *SweeperService) RunOnce(ctx context.Context) {
	finalized, released := s.sweeper.Sweep(ctx, s.idleAfter)
	if finalized > 0 || released > 0 {
		logging.Ctx(ctx).Info().
			Int("finalized", finalized).
			Int("released", released).
			Msg("Session sweep complete")
	}
}

func (s *SweeperService) String() string {
	return "session-sweeper"
}

// GCService runs value-log garbage collection on an interval.
type GCService struct {
	gc           GarbageCollector
	interval     time.Duration
	discardRatio float64
}

// NewGCService creates the service.
func NewGCService(gc GarbageCollector, interval time.Duration, discardRatio float64) *GCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if discardRatio <= 0 || discardRatio >= 1 {
		discardRatio = 0.5
	}
	return &GCService{gc: gc, interval: interval, discardRatio: discardRatio}
}

// Serve implements suture.Service. GC failures are logged and retried on
// the next tick.
func (g *GCService) Serve(ctx context.Context) error {
	return tick(ctx, g.interval, g.RunOnce)
}

// RunOnce performs one collection.
func (g *GCService) RunOnce(ctx context.Context) {
	start := time.Now()
	if err := g.gc.RunGC(g.discardRatio); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Store garbage collection failed")
		return
	}
	logging.Ctx(ctx).Debug().Dur("duration", time.Since(start)).Msg("Store garbage collection complete")
}

func (g *GCService) String() string {
	return "store-gc"
}
