// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package catalog

import "time"

// Category groups badges by the behaviour they reward.
type Category string

const (
	CategoryBinge      Category = "binge"
	CategoryQuickwatch Category = "quickwatch"
	CategoryMarathon   Category = "marathon"
	CategoryStreak     Category = "streak"
	CategoryRewatch    Category = "rewatch"
	CategoryExplorer   Category = "explorer"
	CategoryCollector  Category = "collector"
	CategorySocial     Category = "social"
	CategoryCompletion Category = "completion"
	CategoryDedication Category = "dedication"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryBinge,
	CategoryQuickwatch,
	CategoryMarathon,
	CategoryStreak,
	CategoryRewatch,
	CategoryExplorer,
	CategoryCollector,
	CategorySocial,
	CategoryCompletion,
	CategoryDedication,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Tier is a badge level within a category.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
	TierDiamond  Tier = "diamond"
)

var tierRank = map[Tier]int{
	TierBronze:   1,
	TierSilver:   2,
	TierGold:     3,
	TierPlatinum: 4,
	TierDiamond:  5,
}

// Rank orders tiers from 1 (bronze) to 5 (diamond); 0 means unknown.
func (t Tier) Rank() int {
	return tierRank[t]
}

// TierPoints is the score a grant of each tier contributes.
var TierPoints = map[Tier]int{
	TierBronze:   10,
	TierSilver:   25,
	TierGold:     50,
	TierPlatinum: 100,
	TierDiamond:  250,
}

// Rarity is a display hint for how uncommon a badge is.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Timeframe names a sliding binge window.
type Timeframe string

const (
	TimeframeDay     Timeframe = "day"
	TimeframeWeekend Timeframe = "weekend"
	TimeframeWeek    Timeframe = "week"
)

// Timeframes lists the binge windows maintained for every user.
var Timeframes = []Timeframe{TimeframeDay, TimeframeWeekend, TimeframeWeek}

var timeframeDurations = map[Timeframe]time.Duration{
	TimeframeDay:     24 * time.Hour,
	TimeframeWeekend: 72 * time.Hour,
	TimeframeWeek:    7 * 24 * time.Hour,
}

// Duration returns the window length, or 0 for an unknown timeframe.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

// Valid reports whether tf is a known timeframe.
func (tf Timeframe) Valid() bool {
	_, ok := timeframeDurations[tf]
	return ok
}

// Label is the human wording used in badge evidence.
func (tf Timeframe) Label() string {
	switch tf {
	case TimeframeDay:
		return "24 hours"
	case TimeframeWeekend:
		return "a weekend"
	case TimeframeWeek:
		return "a week"
	default:
		return string(tf)
	}
}
