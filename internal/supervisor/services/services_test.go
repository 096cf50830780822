// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/showtrail/internal/logging"
)

//nolint:gochecknoinits // init keeps test output quiet
func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

var (
	_ suture.Service = (*HTTPServerService)(nil)
	_ suture.Service = (*SweeperService)(nil)
	_ suture.Service = (*GCService)(nil)
)

type mockHTTPServer struct {
	listenErr error
	started   chan struct{}
	stop      chan struct{}
	stopOnce  sync.Once
	shutdowns atomic.Int32
}

func newMockHTTPServer(listenErr error) *mockHTTPServer {
	return &mockHTTPServer{listenErr: listenErr, started: make(chan struct{}, 1), stop: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	m.started <- struct{}{}
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stop
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(context.Context) error {
	m.shutdowns.Add(1)
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}

func TestHTTPServerServiceGracefulShutdown(t *testing.T) {
	srv := newMockHTTPServer(nil)
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	<-srv.started
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	if srv.shutdowns.Load() != 1 {
		t.Errorf("Shutdown called %d times", srv.shutdowns.Load())
	}
}

func TestHTTPServerServiceListenFailure(t *testing.T) {
	srv := newMockHTTPServer(errors.New("address in use"))
	err := NewHTTPServerService(srv, 0).Serve(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if srv.shutdowns.Load() != 0 {
		t.Error("Shutdown called after listen failure")
	}
}

type mockSweeper struct {
	calls     atomic.Int32
	idleAfter atomic.Int64
}

func (m *mockSweeper) Sweep(_ context.Context, idleAfter time.Duration) (int, int) {
	m.calls.Add(1)
	m.idleAfter.Store(int64(idleAfter))
	return 1, 0
}

type mockGC struct {
	calls atomic.Int32
	ratio atomic.Value
	err   error
}

func (m *mockGC) RunGC(ratio float64) error {
	m.calls.Add(1)
	m.ratio.Store(ratio)
	return m.err
}

func waitForCalls(t *testing.T, calls *atomic.Int32, want int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < want {
		if time.Now().After(deadline) {
			t.Fatalf("got %d calls, want %d", calls.Load(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSweeperServiceTicks(t *testing.T) {
	sweeper := &mockSweeper{}
	svc := NewSweeperService(sweeper, 10*time.Millisecond, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	waitForCalls(t, &sweeper.calls, 2)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve = %v", err)
	}
	if time.Duration(sweeper.idleAfter.Load()) != time.Hour {
		t.Errorf("idleAfter = %v", time.Duration(sweeper.idleAfter.Load()))
	}
}

func TestGCServiceSurvivesFailures(t *testing.T) {
	gc := &mockGC{err: errors.New("gc failed")}
	svc := NewGCService(gc, 10*time.Millisecond, 7)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	waitForCalls(t, &gc.calls, 2)
	cancel()
	<-done
	if got, _ := gc.ratio.Load().(float64); got != 0.5 {
		t.Errorf("discard ratio = %v, want clamped 0.5", got)
	}
}

func TestServiceNames(t *testing.T) {
	tests := []struct {
		svc  interface{ String() string }
		want string
	}{
		{NewHTTPServerService(newMockHTTPServer(nil), 0), "http-server"},
		{NewSweeperService(&mockSweeper{}, 0, 0), "session-sweeper"},
		{NewGCService(&mockGC{}, 0, 0), "store-gc"},
	}
	for _, tt := range tests {
		if got := tt.svc.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
