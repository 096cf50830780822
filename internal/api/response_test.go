// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/showtrail/internal/activity"
	"github.com/tomtom215/showtrail/internal/classifier"
	"github.com/tomtom215/showtrail/internal/counters"
	"github.com/tomtom215/showtrail/internal/store"
)

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestSuccessListCarriesCount(t *testing.T) {
	w := httptest.NewRecorder()
	NewResponseWriter(w, httptest.NewRequest(http.MethodGet, "/", nil)).SuccessList([]int{1, 2, 3}, 3)

	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}
	resp := decodeEnvelope(t, w)
	if !resp.Success || resp.Meta == nil || resp.Meta.Count == nil || *resp.Meta.Count != 3 {
		t.Errorf("response = %+v", resp)
	}
}

func TestRespondFailure(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"malformed event", fmt.Errorf("wrap: %w", classifier.ErrMalformedEvent), http.StatusBadRequest, ErrCodeValidationFailed},
		{"invalid path", store.ErrInvalidPath, http.StatusBadRequest, ErrCodeBadRequest},
		{"invalid counter name", fmt.Errorf("wrap: %w", counters.ErrInvalidName), http.StatusBadRequest, ErrCodeBadRequest},
		{"not found", store.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"manager closed", activity.ErrClosed, http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{"store closed", store.ErrClosed, http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{"breaker open", gobreaker.ErrOpenState, http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError, ErrCodeStoreError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			respondFailure(NewResponseWriter(w, httptest.NewRequest(http.MethodGet, "/", nil)), tt.err)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			resp := decodeEnvelope(t, w)
			if resp.Success || resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %s", resp.Error, tt.code)
			}
		})
	}
}

func TestStoreErrorDoesNotLeakCause(t *testing.T) {
	w := httptest.NewRecorder()
	NewResponseWriter(w, httptest.NewRequest(http.MethodGet, "/", nil)).StoreError(errors.New("secret path /var/lib/badger"))
	if strings.Contains(w.Body.String(), "secret") {
		t.Errorf("body leaks cause: %s", w.Body.String())
	}
}
