// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package catalog

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Requirement is the predicate a user must satisfy to earn a badge. Each
// category has exactly one variant, and a variant carries only the fields
// its category uses.
type Requirement interface {
	// Category is the category this variant belongs to.
	Category() Category

	// Threshold is the number that must be reached.
	Threshold() int

	// Describe renders the requirement for people.
	Describe() string

	sealed()
}

// BingeRequirement: Episodes watched inside one sliding Timeframe window.
type BingeRequirement struct {
	Episodes  int       `json:"episodes" validate:"gt=0"`
	Timeframe Timeframe `json:"timeframe" validate:"oneof=day weekend week"`
}

// QuickwatchRequirement: Episodes watched within the release window of airing.
type QuickwatchRequirement struct {
	Episodes int `json:"episodes" validate:"gt=0"`
}

// MarathonRequirement: whole Seasons finished as one batch.
type MarathonRequirement struct {
	Seasons int `json:"seasons" validate:"gt=0"`
}

// StreakRequirement: consecutive calendar Days with activity.
type StreakRequirement struct {
	Days int `json:"days" validate:"gt=0"`
}

// RewatchRequirement: repeat viewings of already watched Episodes.
type RewatchRequirement struct {
	Episodes int `json:"episodes" validate:"gt=0"`
}

// ExplorerRequirement: distinct Series in the library.
type ExplorerRequirement struct {
	Series int `json:"series" validate:"gt=0"`
}

// CollectorRequirement: rated series and movies.
type CollectorRequirement struct {
	Ratings int `json:"ratings" validate:"gt=0"`
}

// SocialRequirement: friend relationships.
type SocialRequirement struct {
	Friends int `json:"friends" validate:"gt=0"`
}

// CompletionRequirement: Series with every episode watched.
type CompletionRequirement struct {
	Series int `json:"series" validate:"gt=0"`
}

// DedicationRequirement: total watched Episodes.
type DedicationRequirement struct {
	Episodes int `json:"episodes" validate:"gt=0"`
}

func (BingeRequirement) Category() Category      { return CategoryBinge }
func (QuickwatchRequirement) Category() Category { return CategoryQuickwatch }
func (MarathonRequirement) Category() Category   { return CategoryMarathon }
func (StreakRequirement) Category() Category     { return CategoryStreak }
func (RewatchRequirement) Category() Category    { return CategoryRewatch }
func (ExplorerRequirement) Category() Category   { return CategoryExplorer }
func (CollectorRequirement) Category() Category  { return CategoryCollector }
func (SocialRequirement) Category() Category     { return CategorySocial }
func (CompletionRequirement) Category() Category { return CategoryCompletion }
func (DedicationRequirement) Category() Category { return CategoryDedication }

func (r BingeRequirement) Threshold() int      { return r.Episodes }
func (r QuickwatchRequirement) Threshold() int { return r.Episodes }
func (r MarathonRequirement) Threshold() int   { return r.Seasons }
func (r StreakRequirement) Threshold() int     { return r.Days }
func (r RewatchRequirement) Threshold() int    { return r.Episodes }
func (r ExplorerRequirement) Threshold() int   { return r.Series }
func (r CollectorRequirement) Threshold() int  { return r.Ratings }
func (r SocialRequirement) Threshold() int     { return r.Friends }
func (r CompletionRequirement) Threshold() int { return r.Series }
func (r DedicationRequirement) Threshold() int { return r.Episodes }

func (r BingeRequirement) Describe() string {
	return fmt.Sprintf("Watch %d episodes within %s", r.Episodes, r.Timeframe.Label())
}

func (r QuickwatchRequirement) Describe() string {
	return fmt.Sprintf("Watch %d episodes within a day of release", r.Episodes)
}

func (r MarathonRequirement) Describe() string {
	return fmt.Sprintf("Finish %d full seasons in one sitting", r.Seasons)
}

func (r StreakRequirement) Describe() string {
	return fmt.Sprintf("Watch something %d days in a row", r.Days)
}

func (r RewatchRequirement) Describe() string {
	return fmt.Sprintf("Rewatch %d episodes or movies", r.Episodes)
}

func (r ExplorerRequirement) Describe() string {
	return fmt.Sprintf("Add %d different series", r.Series)
}

func (r CollectorRequirement) Describe() string {
	return fmt.Sprintf("Rate %d series or movies", r.Ratings)
}

func (r SocialRequirement) Describe() string {
	return fmt.Sprintf("Connect with %d friends", r.Friends)
}

func (r CompletionRequirement) Describe() string {
	return fmt.Sprintf("Watch every episode of %d series", r.Series)
}

func (r DedicationRequirement) Describe() string {
	return fmt.Sprintf("Watch %d episodes in total", r.Episodes)
}

func (BingeRequirement) sealed()      {}
func (QuickwatchRequirement) sealed() {}
func (MarathonRequirement) sealed()   {}
func (StreakRequirement) sealed()     {}
func (RewatchRequirement) sealed()    {}
func (ExplorerRequirement) sealed()   {}
func (CollectorRequirement) sealed()  {}
func (SocialRequirement) sealed()     {}
func (CompletionRequirement) sealed() {}
func (DedicationRequirement) sealed() {}

// decodeRequirement decodes the variant that belongs to category.
func decodeRequirement(category Category, raw json.RawMessage) (Requirement, error) {
	var (
		req Requirement
		err error
	)
	switch category {
	case CategoryBinge:
		req, err = decodeAs[BingeRequirement](raw)
	case CategoryQuickwatch:
		req, err = decodeAs[QuickwatchRequirement](raw)
	case CategoryMarathon:
		req, err = decodeAs[MarathonRequirement](raw)
	case CategoryStreak:
		req, err = decodeAs[StreakRequirement](raw)
	case CategoryRewatch:
		req, err = decodeAs[RewatchRequirement](raw)
	case CategoryExplorer:
		req, err = decodeAs[ExplorerRequirement](raw)
	case CategoryCollector:
		req, err = decodeAs[CollectorRequirement](raw)
	case CategorySocial:
		req, err = decodeAs[SocialRequirement](raw)
	case CategoryCompletion:
		req, err = decodeAs[CompletionRequirement](raw)
	case CategoryDedication:
		req, err = decodeAs[DedicationRequirement](raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s requirement: %w", category, err)
	}
	return req, nil
}

func decodeAs[T Requirement](raw json.RawMessage) (Requirement, error) {
	var r T
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return r, nil
}
