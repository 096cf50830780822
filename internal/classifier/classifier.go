// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

// Package classifier decides whether a burst of watch events forms one
// aggregate pattern (a binge, a run of quickwatches, a completed season)
// or has to be reported event by event.
//
// Classify is a pure function of its arguments.
package classifier

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Pattern is the kind of aggregate a group of events forms.
type Pattern string

const (
	PatternNone           Pattern = ""
	PatternQuickwatch     Pattern = "quickwatch"
	PatternBinge          Pattern = "binge"
	PatternSeasonComplete Pattern = "season_complete"
)

// Default tunables.
const (
	DefaultReleaseWindow = 24 * time.Hour
	DefaultBingeWindow   = 120 * time.Minute

	minSeasonEvents = 3
)

// ErrMalformedEvent is returned for events that cannot be classified.
var ErrMalformedEvent = errors.New("classifier: malformed watch event")

// WatchEvent is one episode being marked as watched.
type WatchEvent struct {
	SeriesID           string    `json:"seriesId" validate:"required"`
	SeriesName         string    `json:"seriesName,omitempty"`
	SeasonNumber       int       `json:"seasonNumber" validate:"gte=0"`
	EpisodeNumber      int       `json:"episodeNumber" validate:"gte=0"`
	SeasonEpisodeCount int       `json:"seasonEpisodeCount,omitempty" validate:"gte=0"`
	AirDate            string    `json:"airDate,omitempty"`
	WatchedAt          time.Time `json:"watchedAt" validate:"required"`
	IsRewatch          bool      `json:"isRewatch"`
	WatchCount         int       `json:"watchCount" validate:"gte=0"`
}

// Label is the series name, or its id when no name was resolved.
func (e WatchEvent) Label() string {
	if e.SeriesName != "" {
		return e.SeriesName
	}
	return e.SeriesID
}

// Validate reports whether e carries enough to be classified. Air dates
// are checked later, by Classify.
func (e WatchEvent) Validate() error {
	return checkEvent(e)
}

// Options tunes the time windows.
type Options struct {
	// ReleaseWindow bounds watchedAt - airDate for a quickwatch.
	ReleaseWindow time.Duration

	// BingeWindow bounds the span from first to last watch for a binge.
	BingeWindow time.Duration

	// Location interprets date-only air dates. Defaults to UTC.
	Location *time.Location
}

// DefaultOptions returns the default windows in UTC.
func DefaultOptions() Options {
	return Options{ReleaseWindow: DefaultReleaseWindow, BingeWindow: DefaultBingeWindow, Location: time.UTC}
}

func (o Options) normalized() Options {
	if o.ReleaseWindow <= 0 {
		o.ReleaseWindow = DefaultReleaseWindow
	}
	if o.BingeWindow <= 0 {
		o.BingeWindow = DefaultBingeWindow
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

// Result is the classification of a group of events.
type Result struct {
	ShouldBatch bool    `json:"shouldBatch"`
	PatternType Pattern `json:"patternType,omitempty"`
	Description string  `json:"description,omitempty"`
	Count       int     `json:"count"`
}

// Classify inspects events and reports the aggregate pattern they form.
// Several events only batch when they all belong to one series; among the
// candidate patterns a completed season wins over quickwatches, which win
// over a binge.
func Classify(events []WatchEvent, opts Options) (Result, error) {
	opts = opts.normalized()

	if len(events) == 0 {
		return Result{}, nil
	}
	for i, e := range events {
		if err := checkEvent(e); err != nil {
			return Result{}, fmt.Errorf("event %d: %w", i, err)
		}
	}

	if len(events) == 1 {
		e := events[0]
		ok, err := IsQuickwatch(e, opts)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{Count: 1}, nil
		}
		return Result{
			PatternType: PatternQuickwatch,
			Description: fmt.Sprintf("Watched %s within %s of release", episodeLabel(e), windowLabel(opts.ReleaseWindow)),
			Count:       1,
		}, nil
	}

	if !sameSeries(events) {
		return Result{Count: len(events)}, nil
	}
	name := events[0].Label()

	if season, ok := completesSeason(events); ok {
		return Result{
			ShouldBatch: true,
			PatternType: PatternSeasonComplete,
			Description: fmt.Sprintf("Completed season %d of %s", season, name),
			Count:       len(events),
		}, nil
	}

	quick := 0
	for _, e := range events {
		ok, err := IsQuickwatch(e, opts)
		if err != nil {
			return Result{}, err
		}
		if ok {
			quick++
		}
	}
	if quick >= 2 {
		return Result{
			ShouldBatch: true,
			PatternType: PatternQuickwatch,
			Description: fmt.Sprintf("Watched %d episodes of %s within %s of release", quick, name, windowLabel(opts.ReleaseWindow)),
			Count:       quick,
		}, nil
	}

	first, last := span(events)
	if last.Sub(first) <= opts.BingeWindow {
		return Result{
			ShouldBatch: true,
			PatternType: PatternBinge,
			Description: fmt.Sprintf("Binged %d episodes of %s in %s", len(events), name, durationLabel(last.Sub(first))),
			Count:       len(events),
		}, nil
	}

	return Result{Count: len(events)}, nil
}

// IsQuickwatch reports whether e was watched within the release window of
// its air date. Events without an air date never qualify.
func IsQuickwatch(e WatchEvent, opts Options) (bool, error) {
	opts = opts.normalized()
	if e.AirDate == "" {
		return false, nil
	}
	aired, err := ParseAirDate(e.AirDate, opts.Location)
	if err != nil {
		return false, err
	}
	delta := e.WatchedAt.Sub(aired)
	return delta >= 0 && delta <= opts.ReleaseWindow, nil
}

// ParseAirDate accepts a calendar date (midnight in loc) or an RFC 3339
// timestamp.
func ParseAirDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: unparseable air date %q", ErrMalformedEvent, s)
}

func checkEvent(e WatchEvent) error {
	if e.SeriesID == "" {
		return fmt.Errorf("%w: missing series id", ErrMalformedEvent)
	}
	if e.WatchedAt.IsZero() {
		return fmt.Errorf("%w: missing watch time", ErrMalformedEvent)
	}
	if e.SeasonNumber < 0 || e.EpisodeNumber < 0 {
		return fmt.Errorf("%w: negative season or episode number", ErrMalformedEvent)
	}
	return nil
}

func sameSeries(events []WatchEvent) bool {
	for _, e := range events[1:] {
		if e.SeriesID != events[0].SeriesID {
			return false
		}
	}
	return true
}

// completesSeason reports whether events all belong to one season and
// their distinct episode numbers cover every episode of it.
func completesSeason(events []WatchEvent) (int, bool) {
	if len(events) < minSeasonEvents {
		return 0, false
	}
	season := events[0].SeasonNumber
	total := 0
	seen := make(map[int]struct{}, len(events))
	for _, e := range events {
		if e.SeasonNumber != season {
			return 0, false
		}
		total = max(total, e.SeasonEpisodeCount)
		if e.EpisodeNumber > 0 {
			seen[e.EpisodeNumber] = struct{}{}
		}
	}
	if total < minSeasonEvents {
		return 0, false
	}
	for n := 1; n <= total; n++ {
		if _, ok := seen[n]; !ok {
			return 0, false
		}
	}
	return season, true
}

func span(events []WatchEvent) (time.Time, time.Time) {
	times := make([]time.Time, len(events))
	for i, e := range events {
		times[i] = e.WatchedAt
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times[0], times[len(times)-1]
}

func episodeLabel(e WatchEvent) string {
	return fmt.Sprintf("%s S%02dE%02d", e.Label(), e.SeasonNumber, e.EpisodeNumber)
}

func windowLabel(d time.Duration) string {
	if d%(24*time.Hour) == 0 {
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "24 hours"
		}
		return fmt.Sprintf("%d days", days)
	}
	return durationLabel(d)
}

func durationLabel(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "under a minute"
	case d < time.Hour:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	case d%time.Hour == 0:
		if d == time.Hour {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", int(d.Hours()))
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
