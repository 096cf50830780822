// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package catalog

import "sync"

var tierRarity = map[Tier]Rarity{
	TierBronze:   RarityCommon,
	TierSilver:   RarityUncommon,
	TierGold:     RarityRare,
	TierPlatinum: RarityEpic,
	TierDiamond:  RarityLegendary,
}

var categoryIcon = map[Category]string{
	CategoryBinge:      "popcorn",
	CategoryQuickwatch: "lightning",
	CategoryMarathon:   "medal",
	CategoryStreak:     "flame",
	CategoryRewatch:    "repeat",
	CategoryExplorer:   "compass",
	CategoryCollector:  "star",
	CategorySocial:     "people",
	CategoryCompletion: "checkmark",
	CategoryDedication: "trophy",
}

func badge(id, name string, tier Tier, req Requirement) Definition {
	return Definition{
		ID:          id,
		Name:        name,
		Description: req.Describe(),
		Icon:        categoryIcon[req.Category()],
		Category:    req.Category(),
		Tier:        tier,
		Rarity:      tierRarity[tier],
		Requirement: req,
	}
}

// DefaultDefinitions is the shipped badge table. Ids are permanent: a
// changed threshold must ship under a new id.
func DefaultDefinitions() []Definition {
	return []Definition{
		badge("binge_bronze", "Couch Warmer", TierBronze, BingeRequirement{Episodes: 5, Timeframe: TimeframeDay}),
		badge("binge_silver", "Just One More", TierSilver, BingeRequirement{Episodes: 10, Timeframe: TimeframeDay}),
		badge("binge_gold", "Sofa Sovereign", TierGold, BingeRequirement{Episodes: 20, Timeframe: TimeframeDay}),
		badge("binge_platinum", "Lost Weekend", TierPlatinum, BingeRequirement{Episodes: 30, Timeframe: TimeframeWeekend}),
		badge("binge_diamond", "Screen Hermit", TierDiamond, BingeRequirement{Episodes: 60, Timeframe: TimeframeWeek}),

		badge("quickwatch_bronze", "Early Bird", TierBronze, QuickwatchRequirement{Episodes: 1}),
		badge("quickwatch_silver", "Spoiler Dodger", TierSilver, QuickwatchRequirement{Episodes: 10}),
		badge("quickwatch_gold", "Premiere Regular", TierGold, QuickwatchRequirement{Episodes: 50}),
		badge("quickwatch_platinum", "Day One Devotee", TierPlatinum, QuickwatchRequirement{Episodes: 100}),
		badge("quickwatch_diamond", "Ahead of the Curve", TierDiamond, QuickwatchRequirement{Episodes: 250}),

		badge("marathon_bronze", "Season Sprinter", TierBronze, MarathonRequirement{Seasons: 1}),
		badge("marathon_silver", "Distance Viewer", TierSilver, MarathonRequirement{Seasons: 5}),
		badge("marathon_gold", "Iron Eyes", TierGold, MarathonRequirement{Seasons: 15}),
		badge("marathon_platinum", "Ultramarathoner", TierPlatinum, MarathonRequirement{Seasons: 30}),
		badge("marathon_diamond", "Endless Credits", TierDiamond, MarathonRequirement{Seasons: 50}),

		badge("streak_bronze", "Warming Up", TierBronze, StreakRequirement{Days: 3}),
		badge("streak_silver", "Week Watcher", TierSilver, StreakRequirement{Days: 7}),
		badge("streak_gold", "Monthly Ritual", TierGold, StreakRequirement{Days: 30}),
		badge("streak_platinum", "Centurion", TierPlatinum, StreakRequirement{Days: 100}),
		badge("streak_diamond", "Year Round", TierDiamond, StreakRequirement{Days: 365}),

		badge("rewatch_bronze", "Second Look", TierBronze, RewatchRequirement{Episodes: 5}),
		badge("rewatch_silver", "Comfort Viewer", TierSilver, RewatchRequirement{Episodes: 25}),
		badge("rewatch_gold", "Deep Cuts", TierGold, RewatchRequirement{Episodes: 100}),
		badge("rewatch_platinum", "Worn Out Tape", TierPlatinum, RewatchRequirement{Episodes: 250}),

		badge("explorer_bronze", "Channel Surfer", TierBronze, ExplorerRequirement{Series: 5}),
		badge("explorer_silver", "Genre Hopper", TierSilver, ExplorerRequirement{Series: 10}),
		badge("explorer_gold", "Globetrotter", TierGold, ExplorerRequirement{Series: 25}),
		badge("explorer_platinum", "Cartographer", TierPlatinum, ExplorerRequirement{Series: 50}),
		badge("explorer_diamond", "Omnivore", TierDiamond, ExplorerRequirement{Series: 100}),

		badge("collector_bronze", "Critic in Training", TierBronze, CollectorRequirement{Ratings: 5}),
		badge("collector_silver", "Opinionated", TierSilver, CollectorRequirement{Ratings: 25}),
		badge("collector_gold", "Curator", TierGold, CollectorRequirement{Ratings: 50}),
		badge("collector_platinum", "Archivist", TierPlatinum, CollectorRequirement{Ratings: 100}),

		badge("social_bronze", "Plus One", TierBronze, SocialRequirement{Friends: 1}),
		badge("social_silver", "Watch Party", TierSilver, SocialRequirement{Friends: 5}),
		badge("social_gold", "Crowd Pleaser", TierGold, SocialRequirement{Friends: 10}),
		badge("social_platinum", "Box Office", TierPlatinum, SocialRequirement{Friends: 25}),

		badge("completion_bronze", "Finisher", TierBronze, CompletionRequirement{Series: 1}),
		badge("completion_silver", "Closer", TierSilver, CompletionRequirement{Series: 5}),
		badge("completion_gold", "Completionist", TierGold, CompletionRequirement{Series: 10}),
		badge("completion_platinum", "No Loose Ends", TierPlatinum, CompletionRequirement{Series: 25}),
		badge("completion_diamond", "Vault Keeper", TierDiamond, CompletionRequirement{Series: 50}),

		badge("dedication_bronze", "Regular", TierBronze, DedicationRequirement{Episodes: 100}),
		badge("dedication_silver", "Enthusiast", TierSilver, DedicationRequirement{Episodes: 500}),
		badge("dedication_gold", "Devotee", TierGold, DedicationRequirement{Episodes: 1000}),
		badge("dedication_platinum", "Lifer", TierPlatinum, DedicationRequirement{Episodes: 5000}),
		badge("dedication_diamond", "Legend of the Living Room", TierDiamond, DedicationRequirement{Episodes: 10000}),
	}
}

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// Default returns the shipped catalog. It panics if the built-in table is
// invalid, which the package tests rule out.
func Default() *Catalog {
	defaultCatalogOnce.Do(func() {
		c, err := New(DefaultDefinitions())
		if err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}
