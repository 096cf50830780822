// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

// Package catalog holds the immutable table of badge definitions.
//
// A Catalog is validated once when it is built and never changes afterwards,
// so it can be shared freely between goroutines.
package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/showtrail/internal/validation"
)

var (
	// ErrUnknownCategory is returned for a category outside Categories.
	ErrUnknownCategory = errors.New("catalog: unknown category")

	// ErrUnknownBadge is returned when an id is not in the catalog.
	ErrUnknownBadge = errors.New("catalog: unknown badge")

	// ErrInvalidDefinition is returned when a definition fails validation.
	ErrInvalidDefinition = errors.New("catalog: invalid definition")
)

// Definition is one badge a user can earn.
type Definition struct {
	ID          string      `validate:"required,slug"`
	Name        string      `validate:"required"`
	Description string      `validate:"required"`
	Icon        string      `validate:"omitempty"`
	Category    Category    `validate:"required,oneof=binge quickwatch marathon streak rewatch explorer collector social completion dedication"`
	Tier        Tier        `validate:"required,oneof=bronze silver gold platinum diamond"`
	Rarity      Rarity      `validate:"required,oneof=common uncommon rare epic legendary"`
	Requirement Requirement `validate:"required"`
}

// Points returns the score this badge contributes.
func (d Definition) Points() int {
	return TierPoints[d.Tier]
}

type definitionJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Icon        string          `json:"icon,omitempty"`
	Category    Category        `json:"category"`
	Tier        Tier            `json:"tier"`
	Rarity      Rarity          `json:"rarity"`
	Points      int             `json:"points"`
	Requirement json.RawMessage `json:"requirement"`
}

// MarshalJSON emits the requirement as a nested object of its own fields.
func (d Definition) MarshalJSON() ([]byte, error) {
	req, err := json.Marshal(d.Requirement)
	if err != nil {
		return nil, err
	}
	return json.Marshal(definitionJSON{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Icon:        d.Icon,
		Category:    d.Category,
		Tier:        d.Tier,
		Rarity:      d.Rarity,
		Points:      d.Points(),
		Requirement: req,
	})
}

// UnmarshalJSON picks the requirement variant from the category.
func (d *Definition) UnmarshalJSON(data []byte) error {
	var raw definitionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	req, err := decodeRequirement(raw.Category, raw.Requirement)
	if err != nil {
		return err
	}
	*d = Definition{
		ID:          raw.ID,
		Name:        raw.Name,
		Description: raw.Description,
		Icon:        raw.Icon,
		Category:    raw.Category,
		Tier:        raw.Tier,
		Rarity:      raw.Rarity,
		Requirement: req,
	}
	return nil
}

// EarnedBadge is the persisted record of a grant.
type EarnedBadge struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon,omitempty"`
	Category    Category  `json:"category"`
	Tier        Tier      `json:"tier"`
	Rarity      Rarity    `json:"rarity"`
	Points      int       `json:"points"`
	EarnedAt    time.Time `json:"earnedAt"`
	Details     string    `json:"details"`
}

// Earn builds the grant record for d.
func (d Definition) Earn(at time.Time, details string) EarnedBadge {
	return EarnedBadge{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Icon:        d.Icon,
		Category:    d.Category,
		Tier:        d.Tier,
		Rarity:      d.Rarity,
		Points:      d.Points(),
		EarnedAt:    at,
		Details:     details,
	}
}

// Catalog is a validated, read-only set of definitions.
type Catalog struct {
	defs       []Definition
	byID       map[string]int
	byCategory map[Category][]Definition
}

// New validates defs and builds a catalog. Ids must be unique, every
// requirement variant must match its definition's category and thresholds
// must be positive.
func New(defs []Definition) (*Catalog, error) {
	c := &Catalog{
		defs:       make([]Definition, 0, len(defs)),
		byID:       make(map[string]int, len(defs)),
		byCategory: make(map[Category][]Definition),
	}

	var errs []error
	for _, d := range defs {
		if err := validateDefinition(d); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := c.byID[d.ID]; dup {
			errs = append(errs, fmt.Errorf("%w: duplicate id %q", ErrInvalidDefinition, d.ID))
			continue
		}
		c.byID[d.ID] = len(c.defs)
		c.defs = append(c.defs, d)
		c.byCategory[d.Category] = append(c.byCategory[d.Category], d)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

func validateDefinition(d Definition) error {
	if verr := validation.ValidateStruct(&d); verr != nil {
		return fmt.Errorf("%w: %s: %s", ErrInvalidDefinition, d.ID, verr.Error())
	}
	if d.Requirement.Category() != d.Category {
		return fmt.Errorf("%w: %s: requirement is for %s, badge is %s",
			ErrInvalidDefinition, d.ID, d.Requirement.Category(), d.Category)
	}
	if verr := validation.ValidateStruct(d.Requirement); verr != nil {
		return fmt.Errorf("%w: %s: requirement: %s", ErrInvalidDefinition, d.ID, verr.Error())
	}
	return nil
}

// List returns every definition in catalog order.
func (c *Catalog) List() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// ByCategory returns the definitions of one category in catalog order.
func (c *Catalog) ByCategory(category Category) []Definition {
	defs := c.byCategory[category]
	out := make([]Definition, len(defs))
	copy(out, defs)
	return out
}

// Get returns the definition with the given id.
func (c *Catalog) Get(id string) (Definition, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// Len returns the number of definitions.
func (c *Catalog) Len() int {
	return len(c.defs)
}
