// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package evaluator

import (
	"errors"
	"fmt"

	"github.com/tomtom215/showtrail/internal/catalog"
	"github.com/tomtom215/showtrail/internal/counters"
)

// ErrNoRule is returned when no rule is registered for a category.
var ErrNoRule = errors.New("evaluator: no rule for category")

// ErrRequirementMismatch is returned when a rule receives a requirement
// variant of another category.
var ErrRequirementMismatch = errors.New("evaluator: requirement variant does not match rule")

// Measurement is the value a rule observed, with evidence for people.
type Measurement struct {
	Value   int64
	Details string
}

// Met reports whether the measurement reaches the requirement.
func (m Measurement) Met(req catalog.Requirement) bool {
	return m.Value >= int64(req.Threshold())
}

// Rule measures one category of requirement against a snapshot.
type Rule interface {
	Category() catalog.Category
	Measure(snap *Snapshot, req catalog.Requirement) (Measurement, error)
}

// typedRule adapts a measure function on one requirement variant.
type typedRule[R catalog.Requirement] struct {
	category catalog.Category
	measure  func(*Snapshot, R) Measurement
}

func (r typedRule[R]) Category() catalog.Category { return r.category }

func (r typedRule[R]) Measure(snap *Snapshot, req catalog.Requirement) (Measurement, error) {
	typed, ok := req.(R)
	if !ok {
		return Measurement{}, fmt.Errorf("%w: %s rule got %T", ErrRequirementMismatch, r.category, req)
	}
	return r.measure(snap, typed), nil
}

func newRule[R catalog.Requirement](category catalog.Category, measure func(*Snapshot, R) Measurement) Rule {
	return typedRule[R]{category: category, measure: measure}
}

// DefaultRules returns one rule per catalog category.
func DefaultRules() []Rule {
	return []Rule{
		newRule(catalog.CategoryBinge, measureBinge),
		newRule(catalog.CategoryQuickwatch, func(s *Snapshot, _ catalog.QuickwatchRequirement) Measurement {
			n := s.Counter(counters.QuickwatchEpisodes)
			return Measurement{Value: n, Details: plural(n, "episode", "episodes") + " watched right after release"}
		}),
		newRule(catalog.CategoryMarathon, func(s *Snapshot, _ catalog.MarathonRequirement) Measurement {
			n := s.Counter(counters.MarathonSeasons)
			return Measurement{Value: n, Details: plural(n, "season", "seasons") + " finished in one go"}
		}),
		newRule(catalog.CategoryStreak, func(s *Snapshot, _ catalog.StreakRequirement) Measurement {
			n := int64(s.Streak.Best())
			return Measurement{Value: n, Details: fmt.Sprintf("%d day streak", n)}
		}),
		newRule(catalog.CategoryRewatch, measureRewatch),
		newRule(catalog.CategoryExplorer, func(s *Snapshot, _ catalog.ExplorerRequirement) Measurement {
			n := int64(len(s.Series))
			return Measurement{Value: n, Details: plural(n, "series", "series") + " in the library"}
		}),
		newRule(catalog.CategoryCollector, measureCollector),
		newRule(catalog.CategorySocial, func(s *Snapshot, _ catalog.SocialRequirement) Measurement {
			n := int64(len(s.Friends))
			return Measurement{Value: n, Details: plural(n, "friend", "friends")}
		}),
		newRule(catalog.CategoryCompletion, func(s *Snapshot, _ catalog.CompletionRequirement) Measurement {
			var n int64
			for _, series := range s.Series {
				if series.Complete() {
					n++
				}
			}
			return Measurement{Value: n, Details: plural(n, "series", "series") + " fully watched"}
		}),
		newRule(catalog.CategoryDedication, func(s *Snapshot, _ catalog.DedicationRequirement) Measurement {
			var n int64
			for _, series := range s.Series {
				for _, season := range series.Seasons {
					for _, ep := range season.Episodes {
						if ep.Watched {
							n++
						}
					}
				}
			}
			return Measurement{Value: n, Details: plural(n, "episode", "episodes") + " watched"}
		}),
	}
}

// measureBinge takes the best of the recorded peak and the live window,
// so a badge can be earned while the window is still open.
func measureBinge(s *Snapshot, req catalog.BingeRequirement) Measurement {
	key := string(req.Timeframe)
	n := s.Counter(counters.BingeBest(key))
	if w, ok := s.Windows[key]; ok && w.Count > n {
		n = w.Count
	}
	return Measurement{Value: n, Details: fmt.Sprintf("%s in %s", plural(n, "episode", "episodes"), req.Timeframe.Label())}
}

func measureRewatch(s *Snapshot, _ catalog.RewatchRequirement) Measurement {
	var n int64
	for _, series := range s.Series {
		for _, season := range series.Seasons {
			for _, ep := range season.Episodes {
				if ep.Watched && ep.WatchCount > 1 {
					n += int64(ep.WatchCount - 1)
				}
			}
		}
	}
	for _, m := range s.Movies {
		if m.Watched && m.WatchCount > 1 {
			n += int64(m.WatchCount - 1)
		}
	}
	return Measurement{Value: n, Details: plural(n, "rewatch", "rewatches")}
}

func measureCollector(s *Snapshot, _ catalog.CollectorRequirement) Measurement {
	var n int64
	for _, series := range s.Series {
		if series.Rating > 0 {
			n++
		}
	}
	for _, m := range s.Movies {
		if m.Rating > 0 {
			n++
		}
	}
	return Measurement{Value: n, Details: plural(n, "title", "titles") + " rated"}
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return fmt.Sprintf("%d %s", n, many)
}
