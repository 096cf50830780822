// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package validation

import (
	"strings"
	"testing"
)

type sample struct {
	ID       string `validate:"required,slug"`
	SeriesID string `validate:"required,segment"`
	Season   int    `validate:"gte=0,lte=500"`
	Kind     string `validate:"omitempty,oneof=episode movie"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name      string
		input     sample
		wantField string
	}{
		{"valid", sample{ID: "binge_gold", SeriesID: "tt123", Season: 1}, ""},
		{"missing id", sample{SeriesID: "tt123"}, "ID"},
		{"uppercase slug", sample{ID: "Binge", SeriesID: "tt123"}, "ID"},
		{"trailing underscore", sample{ID: "binge_", SeriesID: "tt123"}, "ID"},
		{"slash in segment", sample{ID: "a", SeriesID: "a/b"}, "SeriesID"},
		{"negative season", sample{ID: "a", SeriesID: "s", Season: -1}, "Season"},
		{"bad oneof", sample{ID: "a", SeriesID: "s", Kind: "book"}, "Kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if got := err.Errors()[0].Field(); got != tt.wantField {
				t.Errorf("field = %q, want %q", got, tt.wantField)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	err := ValidateStruct(&sample{Season: 1000})
	if err == nil {
		t.Fatal("expected errors")
	}
	apiErr := err.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q", apiErr.Code)
	}
	if len(err.Errors()) < 2 {
		t.Fatalf("expected multiple field errors, got %d", len(err.Errors()))
	}
	if _, ok := apiErr.Details["fields"]; !ok {
		t.Error("multi-error envelope should list fields")
	}
	if !strings.Contains(apiErr.Message, "Season") {
		t.Errorf("message should name Season: %s", apiErr.Message)
	}
}

func TestGetValidatorSingleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("expected the same validator instance")
	}
}
