// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

// Package store is the hierarchical document store every other component
// persists through. Paths are slash-separated ("users/u1/counters/streak")
// and values are JSON documents.
//
// Transaction is the only primitive that may be used for read-modify-write.
// Its function can run more than once when a concurrent writer touched the
// same path, so it must compute the next value from current alone.
package store

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned by Get when nothing is stored at the path.
	ErrNotFound = errors.New("store: path not found")

	// ErrTxnAborted is returned from a TxnFunc to leave the path untouched.
	// Transaction itself reports it as an uncommitted result, not an error.
	ErrTxnAborted = errors.New("store: transaction aborted")

	// ErrInvalidPath is returned for empty or malformed paths.
	ErrInvalidPath = errors.New("store: invalid path")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store: closed")

	// ErrConflictRetriesExhausted is returned when a transaction kept
	// conflicting with concurrent writers.
	ErrConflictRetriesExhausted = errors.New("store: transaction conflict retries exhausted")
)

// TxnFunc computes the next value of a path from its current value.
// current is nil when the path is empty. Returning a nil value removes the
// path; returning ErrTxnAborted commits nothing.
type TxnFunc func(current []byte) ([]byte, error)

// TxnResult reports the outcome of a Transaction.
type TxnResult struct {
	// Committed is false when the function aborted.
	Committed bool

	// Value is the value at the path after the transaction.
	Value []byte
}

// Entry is one stored document.
type Entry struct {
	Path  string
	Value []byte
}

// ChangeKind distinguishes writes from removals in a change feed.
type ChangeKind string

const (
	ChangeSet    ChangeKind = "set"
	ChangeRemove ChangeKind = "remove"
)

// Change describes one committed mutation.
type Change struct {
	Path  string
	Kind  ChangeKind
	Value []byte
}

// Store is the remote document store.
type Store interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Set(ctx context.Context, path string, value []byte) error

	// Update merges fields into the JSON object at path, creating it if absent.
	Update(ctx context.Context, path string, fields map[string]any) error

	Remove(ctx context.Context, path string) error
	Transaction(ctx context.Context, path string, fn TxnFunc) (TxnResult, error)

	// List returns every document stored below prefix in key order.
	List(ctx context.Context, prefix string) ([]Entry, error)

	// Subscribe calls fn for each change below prefix until the returned
	// cancel function is called or ctx ends.
	Subscribe(ctx context.Context, prefix string, fn func(Change)) (cancel func(), err error)

	Close() error
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// UserPath builds a path inside a user's namespace.
func UserPath(userID string, segments ...string) string {
	return Join(append([]string{"users", userID}, segments...)...)
}

// ValidatePath rejects empty paths, empty segments and surrounding slashes.
func ValidatePath(path string) error {
	if path == "" || strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return ErrInvalidPath
	}
	if strings.Contains(path, "//") {
		return ErrInvalidPath
	}
	return nil
}

// childPrefix returns the key prefix that matches documents under path.
func childPrefix(path string) string {
	return strings.TrimSuffix(path, "/") + "/"
}

// Under reports whether path equals prefix or lies below it.
func Under(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// LastSegment returns the final path segment.
func LastSegment(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
