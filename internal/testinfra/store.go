// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

// Package testinfra provides shared fixtures for package tests: an
// in-memory document store, a fault-injecting store wrapper and a
// controllable clock.
package testinfra

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/showtrail/internal/store"
)

// ErrInjected is returned by FaultyStore for injected failures.
var ErrInjected = errors.New("testinfra: injected transport failure")

// NewMemoryStore opens an in-memory BadgerStore closed at test cleanup.
func NewMemoryStore(t testing.TB) *store.BadgerStore {
	t.Helper()
	s, err := store.OpenBadger(store.Options{InMemory: true})
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// FaultyStore wraps a Store and fails operations whose path contains one
// of the configured fragments.
type FaultyStore struct {
	store.Store

	mu        sync.Mutex
	failPaths []string
	failAll   bool
	calls     map[string]int
}

// NewFaultyStore wraps inner.
func NewFaultyStore(inner store.Store) *FaultyStore {
	return &FaultyStore{Store: inner, calls: make(map[string]int)}
}

// FailPath makes operations on paths containing fragment fail.
func (f *FaultyStore) FailPath(fragment string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPaths = append(f.failPaths, fragment)
}

// FailAll makes every operation fail until Heal is called.
func (f *FaultyStore) FailAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAll = true
}

// Heal clears all injected failures.
func (f *FaultyStore) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAll = false
	f.failPaths = nil
}

// Calls returns how many times op was invoked.
func (f *FaultyStore) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FaultyStore) fail(op, path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if f.failAll {
		return true
	}
	for _, frag := range f.failPaths {
		if strings.Contains(path, frag) {
			return true
		}
	}
	return false
}

func (f *FaultyStore) Get(ctx context.Context, path string) ([]byte, error) {
	if f.fail("get", path) {
		return nil, ErrInjected
	}
	return f.Store.Get(ctx, path)
}

func (f *FaultyStore) Set(ctx context.Context, path string, value []byte) error {
	if f.fail("set", path) {
		return ErrInjected
	}
	return f.Store.Set(ctx, path, value)
}

func (f *FaultyStore) Update(ctx context.Context, path string, fields map[string]any) error {
	if f.fail("update", path) {
		return ErrInjected
	}
	return f.Store.Update(ctx, path, fields)
}

func (f *FaultyStore) Remove(ctx context.Context, path string) error {
	if f.fail("remove", path) {
		return ErrInjected
	}
	return f.Store.Remove(ctx, path)
}

func (f *FaultyStore) Transaction(ctx context.Context, path string, fn store.TxnFunc) (store.TxnResult, error) {
	if f.fail("transaction", path) {
		return store.TxnResult{}, ErrInjected
	}
	return f.Store.Transaction(ctx, path, fn)
}

func (f *FaultyStore) List(ctx context.Context, prefix string) ([]store.Entry, error) {
	if f.fail("list", prefix) {
		return nil, ErrInjected
	}
	return f.Store.List(ctx, prefix)
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
