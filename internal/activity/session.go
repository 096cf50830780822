// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package activity

import (
	"sync"
	"time"

	"github.com/tomtom215/showtrail/internal/classifier"
)

// State is where a user's session is in its batching cycle.
type State int

const (
	StateIdle State = iota
	StateAccumulating
	StateFlushing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateFlushing:
		return "flushing"
	default:
		return "unknown"
	}
}

// session is the per-user batching context.
type session struct {
	userID string

	mu         sync.Mutex
	pending    []classifier.WatchEvent
	timer      *time.Timer
	generation uint64
	flushing   int
	lastActive time.Time

	// evalMu serializes badge checks so the immediate and flush paths
	// deliver each new grant once.
	evalMu sync.Mutex
}

func newSession(userID string, now time.Time) *session {
	return &session{userID: userID, lastActive: now}
}

func (s *session) stateLocked() State {
	switch {
	case s.flushing > 0:
		return StateFlushing
	case len(s.pending) > 0:
		return StateAccumulating
	default:
		return StateIdle
	}
}

func (s *session) state() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// buffer appends e and rearms the debounce timer. fire runs with the
// generation it was armed for.
func (s *session) buffer(e classifier.WatchEvent, now time.Time, delay time.Duration, fire func(gen uint64)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, e)
	s.lastActive = now
	s.generation++
	gen := s.generation
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, func() { fire(gen) })
}

// take removes the pending events and cancels the timer. When gen is
// non-zero the take only happens if no newer event rearmed the timer.
func (s *session) take(gen uint64) []classifier.WatchEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != 0 && gen != s.generation {
		return nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.generation++
	events := s.pending
	s.pending = nil
	if len(events) > 0 {
		s.flushing++
	}
	return events
}

func (s *session) doneFlushing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushing--
}

func (s *session) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked() == StateIdle && s.lastActive.Before(cutoff)
}
