// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/showtrail/internal/classifier"
	"github.com/tomtom215/showtrail/internal/validation"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// UserPathRequest is the validated {userID} path parameter.
type UserPathRequest struct {
	UserID string `validate:"required,segment,max=128"`
}

// DocumentPathRequest is a user-scoped document id.
type DocumentPathRequest struct {
	UserID string `validate:"required,segment,max=128"`
	DocID  string `validate:"required,segment,max=128"`
}

// IngestRequest is the body of POST /events. A single event may be sent
// bare instead of wrapped.
type IngestRequest struct {
	Events []classifier.WatchEvent `json:"events" validate:"required,min=1,max=500,dive"`
}

// CatalogRequest filters the catalog listing.
type CatalogRequest struct {
	Category string `validate:"omitempty,slug"`
}

// decodeBody reads one JSON document into v.
func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return errors.New("request body too large")
	}
	if len(body) == 0 {
		return errors.New("request body is empty")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// decodeIngest accepts {"events":[...]} or a single bare event.
func decodeIngest(r *http.Request) (IngestRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return IngestRequest{}, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return IngestRequest{}, errors.New("request body too large")
	}

	var envelope struct {
		Events json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return IngestRequest{}, fmt.Errorf("invalid JSON body: %w", err)
	}
	if envelope.Events != nil {
		var req IngestRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return IngestRequest{}, fmt.Errorf("invalid events: %w", err)
		}
		return req, nil
	}

	var single classifier.WatchEvent
	if err := json.Unmarshal(body, &single); err != nil {
		return IngestRequest{}, fmt.Errorf("invalid event: %w", err)
	}
	return IngestRequest{Events: []classifier.WatchEvent{single}}, nil
}

// validateRequest writes a 400 and returns false when v is invalid.
func validateRequest(rw *ResponseWriter, v any) bool {
	if verr := validation.ValidateStruct(v); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return false
	}
	return true
}

// userID extracts and validates the {userID} path parameter.
func userID(rw *ResponseWriter, r *http.Request) (string, bool) {
	req := UserPathRequest{UserID: chi.URLParam(r, "userID")}
	if !validateRequest(rw, &req) {
		return "", false
	}
	return req.UserID, true
}

// documentPath extracts {userID} and {docID}.
func documentPath(rw *ResponseWriter, r *http.Request) (DocumentPathRequest, bool) {
	req := DocumentPathRequest{UserID: chi.URLParam(r, "userID"), DocID: chi.URLParam(r, "docID")}
	if !validateRequest(rw, &req) {
		return req, false
	}
	return req, true
}
