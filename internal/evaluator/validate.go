// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package evaluator

import (
	"context"
	"fmt"
	"sort"

	"github.com/tomtom215/showtrail/internal/catalog"
	"github.com/tomtom215/showtrail/internal/logging"
	"github.com/tomtom215/showtrail/internal/metrics"
)

// Finding describes a grant whose requirement no longer holds.
type Finding struct {
	Badge    catalog.EarnedBadge `json:"badge"`
	Measured int64               `json:"measured"`
	Required int                 `json:"required"`
	Removed  bool                `json:"removed"`
}

// Report is the outcome of Validate.
type Report struct {
	UserID  string    `json:"userId"`
	Checked int       `json:"checked"`
	Valid   int       `json:"valid"`
	Invalid []Finding `json:"invalid"`

	// Orphaned grants reference ids missing from the catalog. They are
	// reported but never removed.
	Orphaned []catalog.EarnedBadge `json:"orphaned"`
}

// Validate re-measures every grant the user holds against fresh data.
// With fix set, grants that no longer hold are removed.
func (e *Evaluator) Validate(ctx context.Context, userID string, fix bool) (Report, error) {
	e.Invalidate(userID)
	snap, err := e.Snapshot(ctx, userID)
	if err != nil {
		return Report{}, err
	}
	earned, err := e.EarnedBadges(ctx, userID)
	if err != nil {
		return Report{}, fmt.Errorf("load grants for %s: %w", userID, err)
	}

	ids := make([]string, 0, len(earned))
	for id := range earned {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	log := logging.Ctx(ctx)
	report := Report{UserID: userID, Invalid: []Finding{}, Orphaned: []catalog.EarnedBadge{}}
	for _, id := range ids {
		grant := earned[id]
		report.Checked++

		def, ok := e.catalog.Get(id)
		if !ok {
			report.Orphaned = append(report.Orphaned, grant)
			continue
		}
		m, err := e.measure(snap, def)
		if err != nil {
			return report, fmt.Errorf("measure %s: %w", id, err)
		}
		if m.Met(def.Requirement) {
			report.Valid++
			continue
		}

		f := Finding{Badge: grant, Measured: m.Value, Required: def.Requirement.Threshold()}
		if fix {
			if err := e.db.Remove(ctx, BadgePath(userID, id)); err != nil {
				log.Warn().Err(err).Str("user_id", userID).Str("badge_id", id).Msg("Failed to remove invalid grant")
			} else {
				f.Removed = true
				metrics.BadgesRevoked.Inc()
			}
		}
		report.Invalid = append(report.Invalid, f)
	}

	log.Info().
		Str("user_id", userID).
		Int("checked", report.Checked).
		Int("invalid", len(report.Invalid)).
		Int("orphaned", len(report.Orphaned)).
		Bool("fix", fix).
		Msg("Badge grants validated")
	return report, nil
}
