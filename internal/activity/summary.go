// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package activity

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/showtrail/internal/classifier"
)

// Summary is one entry for the user's activity feed.
type Summary struct {
	ID           string             `json:"id"`
	UserID       string             `json:"userId"`
	SeriesID     string             `json:"seriesId"`
	SeriesName   string             `json:"seriesName,omitempty"`
	SeasonNumber int                `json:"seasonNumber"`
	Episodes     []int              `json:"episodes"`
	Pattern      classifier.Pattern `json:"pattern,omitempty"`
	Aggregate    bool               `json:"aggregate"`
	Description  string             `json:"description"`
	CreatedAt    time.Time          `json:"createdAt"`
}

func aggregateSummary(userID string, group []classifier.WatchEvent, res classifier.Result, now time.Time) Summary {
	first := group[0]
	return Summary{
		ID:           uuid.NewString(),
		UserID:       userID,
		SeriesID:     first.SeriesID,
		SeriesName:   first.SeriesName,
		SeasonNumber: first.SeasonNumber,
		Episodes:     episodeNumbers(group),
		Pattern:      res.PatternType,
		Aggregate:    true,
		Description:  res.Description,
		CreatedAt:    now,
	}
}

func eventSummary(userID string, e classifier.WatchEvent, quickwatch bool, now time.Time) Summary {
	desc := fmt.Sprintf("Watched %s S%02dE%02d", e.Label(), e.SeasonNumber, e.EpisodeNumber)
	if e.IsRewatch {
		desc = fmt.Sprintf("Rewatched %s S%02dE%02d", e.Label(), e.SeasonNumber, e.EpisodeNumber)
	}
	var pattern classifier.Pattern
	if quickwatch {
		pattern = classifier.PatternQuickwatch
		desc += " right after release"
	}
	return Summary{
		ID:           uuid.NewString(),
		UserID:       userID,
		SeriesID:     e.SeriesID,
		SeriesName:   e.SeriesName,
		SeasonNumber: e.SeasonNumber,
		Episodes:     []int{e.EpisodeNumber},
		Pattern:      pattern,
		Description:  desc,
		CreatedAt:    now,
	}
}

func episodeNumbers(events []classifier.WatchEvent) []int {
	out := make([]int, len(events))
	for i, e := range events {
		out[i] = e.EpisodeNumber
	}
	return out
}
