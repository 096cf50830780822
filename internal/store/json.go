// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package store

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
)

// GetJSON decodes the document at path into v.
func GetJSON(ctx context.Context, s Store, path string, v any) error {
	data, err := s.Get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// SetJSON encodes v and stores it at path.
func SetJSON(ctx context.Context, s Store, path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return s.Set(ctx, path, data)
}

// TransactJSON runs a typed transaction. fn receives the decoded current
// value (the zero value and exists=false when absent) and returns the next
// value, nil to remove the path, or ErrTxnAborted.
func TransactJSON[T any](ctx context.Context, s Store, path string, fn func(current T, exists bool) (*T, error)) (T, bool, error) {
	var zero T
	res, err := s.Transaction(ctx, path, func(raw []byte) ([]byte, error) {
		var current T
		exists := raw != nil
		if exists {
			if err := json.Unmarshal(raw, &current); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		}
		next, err := fn(current, exists)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, nil
		}
		return json.Marshal(next)
	})
	if err != nil {
		return zero, false, err
	}
	if res.Value == nil {
		return zero, res.Committed, nil
	}
	var out T
	if err := json.Unmarshal(res.Value, &out); err != nil {
		return zero, res.Committed, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, res.Committed, nil
}

// ListJSON decodes every document below prefix. Documents that fail to
// decode are skipped and reported through the returned count.
func ListJSON[T any](ctx context.Context, s Store, prefix string) (map[string]T, int, error) {
	entries, err := s.List(ctx, prefix)
	if err != nil {
		return nil, 0, err
	}
	out := make(map[string]T, len(entries))
	skipped := 0
	for _, e := range entries {
		var v T
		if err := json.Unmarshal(e.Value, &v); err != nil {
			skipped++
			continue
		}
		out[e.Path] = v
	}
	return out, skipped, nil
}
