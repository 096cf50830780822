// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordStoreOperationCountsErrors(t *testing.T) {
	before := testutil.ToFloat64(StoreErrors.WithLabelValues("metrics_test_op"))

	RecordStoreOperation("metrics_test_op", time.Millisecond, nil)
	RecordStoreOperation("metrics_test_op", time.Millisecond, errors.New("boom"))

	after := testutil.ToFloat64(StoreErrors.WithLabelValues("metrics_test_op"))
	if after-before != 1 {
		t.Errorf("expected exactly one error recorded, got %v", after-before)
	}
}

func TestRecordCounterUpdate(t *testing.T) {
	before := testutil.ToFloat64(CounterUpdates.WithLabelValues("increment", "lost"))
	RecordCounterUpdate("increment", "lost")
	if got := testutil.ToFloat64(CounterUpdates.WithLabelValues("increment", "lost")); got != before+1 {
		t.Errorf("CounterUpdates = %v, want %v", got, before+1)
	}
}

func TestRecordBadgeGranted(t *testing.T) {
	before := testutil.ToFloat64(BadgesGranted.WithLabelValues("explorer"))
	RecordBadgeGranted("explorer")
	RecordBadgeGranted("explorer")
	if got := testutil.ToFloat64(BadgesGranted.WithLabelValues("explorer")); got != before+2 {
		t.Errorf("BadgesGranted = %v, want %v", got, before+2)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/catalog", "200"))
	RecordAPIRequest("GET", "/api/v1/catalog", "200", 5*time.Millisecond)
	if got := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/catalog", "200")); got != before+1 {
		t.Errorf("APIRequestsTotal = %v, want %v", got, before+1)
	}
}
