// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/showtrail/internal/testinfra"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	c, err := New(DefaultDefinitions())
	if err != nil {
		t.Fatalf("default definitions invalid: %v", err)
	}
	if c.Len() != len(DefaultDefinitions()) {
		t.Errorf("Len() = %d, want %d", c.Len(), len(DefaultDefinitions()))
	}
	for _, cat := range Categories {
		if len(c.ByCategory(cat)) == 0 {
			t.Errorf("category %s has no badges", cat)
		}
	}
}

func TestByCategory(t *testing.T) {
	c := Default()

	streaks := c.ByCategory(CategoryStreak)
	prev := 0
	for _, d := range streaks {
		if d.Category != CategoryStreak {
			t.Errorf("ByCategory(streak) returned %s badge %s", d.Category, d.ID)
		}
		if d.Tier.Rank() <= prev {
			t.Errorf("streak badges should be in ascending tier order, %s after rank %d", d.ID, prev)
		}
		prev = d.Tier.Rank()
	}
	if got := len(c.ByCategory(Category("unknown"))); got != 0 {
		t.Errorf("unknown category returned %d badges", got)
	}
}

func TestListReturnsCopy(t *testing.T) {
	c := Default()
	list := c.List()
	list[0].Name = "mutated"
	if c.List()[0].Name == "mutated" {
		t.Error("List must not expose internal storage")
	}
}

func TestGet(t *testing.T) {
	c := Default()
	d, ok := c.Get("explorer_gold")
	if !ok {
		t.Fatal("explorer_gold missing")
	}
	req, ok := d.Requirement.(ExplorerRequirement)
	if !ok {
		t.Fatalf("explorer_gold requirement is %T", d.Requirement)
	}
	if req.Series != 25 {
		t.Errorf("explorer_gold requires %d series, want 25", req.Series)
	}
	if _, ok := c.Get("nope"); ok {
		t.Error("unknown id should not be found")
	}
}

func TestNewRejectsInvalidDefinitions(t *testing.T) {
	valid := badge("streak_bronze", "Warming Up", TierBronze, StreakRequirement{Days: 3})

	tests := []struct {
		name string
		defs []Definition
	}{
		{"duplicate id", []Definition{valid, valid}},
		{"mismatched variant", []Definition{{
			ID: "streak_x", Name: "x", Description: "x", Category: CategoryStreak,
			Tier: TierBronze, Rarity: RarityCommon, Requirement: ExplorerRequirement{Series: 2},
		}}},
		{"zero threshold", []Definition{badge("streak_zero", "Zero", TierBronze, StreakRequirement{Days: 0})}},
		{"bad timeframe", []Definition{badge("binge_x", "X", TierBronze, BingeRequirement{Episodes: 2, Timeframe: "month"})}},
		{"bad id", []Definition{badge("Streak Bronze", "X", TierBronze, StreakRequirement{Days: 2})}},
		{"missing requirement", []Definition{{
			ID: "streak_y", Name: "y", Description: "y", Category: CategoryStreak,
			Tier: TierBronze, Rarity: RarityCommon,
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("New panicked: %v", r)
				}
			}()
			if _, err := New(tt.defs); !errors.Is(err, ErrInvalidDefinition) {
				t.Errorf("New() error = %v, want ErrInvalidDefinition", err)
			}
		})
	}
}

func TestDefinitionJSONRoundTripKeepsVariant(t *testing.T) {
	d, _ := Default().Get("binge_platinum")

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}

	var wire map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatal(err)
	}
	req, _ := wire["requirement"].(map[string]any)
	if req["timeframe"] != "weekend" || req["episodes"] != float64(30) {
		t.Errorf("unexpected requirement encoding: %v", wire["requirement"])
	}
	if _, ok := req["days"]; ok {
		t.Error("binge requirement must not carry unrelated fields")
	}

	var back Definition
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if got, ok := back.Requirement.(BingeRequirement); !ok || got.Timeframe != TimeframeWeekend {
		t.Errorf("decoded requirement = %#v", back.Requirement)
	}
}

func TestEarn(t *testing.T) {
	d, _ := Default().Get("social_bronze")
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	e := d.Earn(at, "1 friend")
	if e.ID != d.ID || e.Tier != TierBronze || !e.EarnedAt.Equal(at) || e.Details != "1 friend" {
		t.Errorf("unexpected grant %+v", e)
	}
	if e.Points != TierPoints[TierBronze] {
		t.Errorf("Points = %d", e.Points)
	}
}

func TestVerifyDetectsRequirementChange(t *testing.T) {
	s := testinfra.NewMemoryStore(t)
	ctx := context.Background()

	original, err := New([]Definition{badge("streak_bronze", "Warming Up", TierBronze, StreakRequirement{Days: 3})})
	if err != nil {
		t.Fatal(err)
	}
	if err := Verify(ctx, s, original); err != nil {
		t.Fatalf("first Verify() error = %v", err)
	}
	if err := Verify(ctx, s, original); err != nil {
		t.Fatalf("unchanged catalog should verify, got %v", err)
	}

	changed, err := New([]Definition{
		badge("streak_bronze", "Warming Up", TierBronze, StreakRequirement{Days: 5}),
		badge("streak_bronze_v2", "Warming Up", TierBronze, StreakRequirement{Days: 5}),
	})
	if err != nil {
		t.Fatal(err)
	}
	err = Verify(ctx, s, changed)
	if !errors.Is(err, ErrRequirementChanged) {
		t.Fatalf("Verify() error = %v, want ErrRequirementChanged", err)
	}

	if _, err := s.Get(ctx, FingerprintPath("streak_bronze_v2")); err != nil {
		t.Errorf("new id should still be recorded: %v", err)
	}
}

func TestTimeframeDurations(t *testing.T) {
	if TimeframeDay.Duration() != 24*time.Hour {
		t.Errorf("day = %v", TimeframeDay.Duration())
	}
	if TimeframeWeek.Duration() != 168*time.Hour {
		t.Errorf("week = %v", TimeframeWeek.Duration())
	}
	if Timeframe("month").Valid() {
		t.Error("month should not be a valid timeframe")
	}
}
