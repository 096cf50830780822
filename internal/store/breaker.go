// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package store

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/showtrail/internal/logging"
	"github.com/tomtom215/showtrail/internal/metrics"
)

// BreakerSettings configures a BreakerStore.
type BreakerSettings struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// BreakerStore wraps a Store with a circuit breaker. While open, every call
// fails fast with gobreaker.ErrOpenState so that callers record a lost
// update instead of queueing behind a failing backend.
type BreakerStore struct {
	inner Store
	cb    *gobreaker.CircuitBreaker[any]
	name  string
}

// NewBreakerStore wraps inner.
func NewBreakerStore(inner Store, settings BreakerSettings) *BreakerStore {
	name := settings.Name
	if name == "" {
		name = "document-store"
	}
	threshold := settings.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
		IsSuccessful: isBreakerSuccess,
	})

	return &BreakerStore{inner: inner, cb: cb, name: name}
}

// isBreakerSuccess keeps domain outcomes and caller cancellation from
// counting as backend failures.
func isBreakerSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidPath) ||
		errors.Is(err, context.Canceled)
}

// State returns the current breaker state.
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerStore) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
	case err != nil && !isBreakerSuccess(err):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	}
	return result, err
}

func (b *BreakerStore) Get(ctx context.Context, path string) ([]byte, error) {
	v, err := b.execute(func() (any, error) { return b.inner.Get(ctx, path) })
	if err != nil {
		return nil, err
	}
	data, _ := v.([]byte)
	return data, nil
}

func (b *BreakerStore) Set(ctx context.Context, path string, value []byte) error {
	_, err := b.execute(func() (any, error) { return nil, b.inner.Set(ctx, path, value) })
	return err
}

func (b *BreakerStore) Update(ctx context.Context, path string, fields map[string]any) error {
	_, err := b.execute(func() (any, error) { return nil, b.inner.Update(ctx, path, fields) })
	return err
}

func (b *BreakerStore) Remove(ctx context.Context, path string) error {
	_, err := b.execute(func() (any, error) { return nil, b.inner.Remove(ctx, path) })
	return err
}

func (b *BreakerStore) Transaction(ctx context.Context, path string, fn TxnFunc) (TxnResult, error) {
	v, err := b.execute(func() (any, error) { return b.inner.Transaction(ctx, path, fn) })
	if err != nil {
		return TxnResult{}, err
	}
	res, _ := v.(TxnResult)
	return res, nil
}

func (b *BreakerStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	v, err := b.execute(func() (any, error) { return b.inner.List(ctx, prefix) })
	if err != nil {
		return nil, err
	}
	entries, _ := v.([]Entry)
	return entries, nil
}

// Subscribe is passed through; a change feed is not a request.
func (b *BreakerStore) Subscribe(ctx context.Context, prefix string, fn func(Change)) (func(), error) {
	return b.inner.Subscribe(ctx, prefix, fn)
}

func (b *BreakerStore) Close() error {
	return b.inner.Close()
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
