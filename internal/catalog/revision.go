// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/showtrail/internal/logging"
	"github.com/tomtom215/showtrail/internal/store"
)

// ErrRequirementChanged is returned by Verify when an existing badge id now
// carries a different requirement. Grants already made under the old
// requirement would silently disagree with the new one, so a changed
// threshold must use a new id instead.
var ErrRequirementChanged = errors.New("catalog: requirement changed for existing badge id")

type revision struct {
	Fingerprint string    `json:"fingerprint"`
	Requirement string    `json:"requirement"`
	RecordedAt  time.Time `json:"recordedAt"`
}

// Fingerprint identifies a definition's category and requirement.
func Fingerprint(d Definition) (string, error) {
	req, err := json.Marshal(d.Requirement)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(append([]byte(string(d.Category)+"|"), req...))
	return hex.EncodeToString(sum[:]), nil
}

// FingerprintPath is where the recorded fingerprint of a badge id lives.
func FingerprintPath(id string) string {
	return store.Join("catalog", "fingerprints", id)
}

// Verify records the fingerprint of every definition seen for the first
// time and fails with ErrRequirementChanged for every id whose stored
// fingerprint differs.
func Verify(ctx context.Context, s store.Store, c *Catalog) error {
	var errs []error
	recorded := 0

	for _, d := range c.List() {
		fp, err := Fingerprint(d)
		if err != nil {
			errs = append(errs, fmt.Errorf("fingerprint %s: %w", d.ID, err))
			continue
		}

		created := false
		_, _, err = store.TransactJSON(ctx, s, FingerprintPath(d.ID), func(cur revision, exists bool) (*revision, error) {
			if !exists {
				created = true
				return &revision{Fingerprint: fp, Requirement: d.Requirement.Describe(), RecordedAt: time.Now().UTC()}, nil
			}
			created = false
			if cur.Fingerprint != fp {
				return nil, fmt.Errorf("%w: %s was %q, now %q", ErrRequirementChanged, d.ID, cur.Requirement, d.Requirement.Describe())
			}
			return nil, store.ErrTxnAborted
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if created {
			recorded++
		}
	}

	if recorded > 0 {
		logging.Info().Int("recorded", recorded).Int("total", c.Len()).Msg("Recorded badge requirement fingerprints")
	}
	return errors.Join(errs...)
}
