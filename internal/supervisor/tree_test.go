// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

// blockingService runs until its context is canceled and counts starts.
type blockingService struct {
	name   string
	starts atomic.Int64
}

func (s *blockingService) String() string { return s.name }

func (s *blockingService) Serve(ctx context.Context) error {
	s.starts.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDefaultTreeConfig(t *testing.T) {
	cfg := DefaultTreeConfig()
	if cfg.FailureThreshold != 5.0 {
		t.Errorf("FailureThreshold = %v, want 5", cfg.FailureThreshold)
	}
	if cfg.FailureBackoff != 15*time.Second {
		t.Errorf("FailureBackoff = %v, want 15s", cfg.FailureBackoff)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout)
	}
}

func TestNewTree_ZeroConfigGetsDefaults(t *testing.T) {
	tree, err := NewTree(testLogger(), TreeConfig{})
	if err != nil {
		t.Fatalf("NewTree() error = %v", err)
	}
	if tree.config.FailureThreshold != 5.0 {
		t.Errorf("FailureThreshold = %v, want default 5", tree.config.FailureThreshold)
	}
	if tree.Root() == nil {
		t.Error("Root() returned nil")
	}
}

func TestTree_RunsServices(t *testing.T) {
	tree, err := NewTree(testLogger(), DefaultTreeConfig())
	if err != nil {
		t.Fatalf("NewTree() error = %v", err)
	}

	messaging := &blockingService{name: "messaging-probe"}
	apiSvc := &blockingService{name: "api-probe"}
	tree.AddMessagingService(messaging)
	tree.AddAPIService(apiSvc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if messaging.starts.Load() > 0 && apiSvc.starts.Load() > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if messaging.starts.Load() == 0 || apiSvc.starts.Load() == 0 {
		t.Fatalf("services not started: messaging=%d api=%d",
			messaging.starts.Load(), apiSvc.starts.Load())
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop after cancel")
	}
}

func TestTree_RestartsCrashedService(t *testing.T) {
	cfg := DefaultTreeConfig()
	cfg.FailureBackoff = 10 * time.Millisecond
	tree, err := NewTree(testLogger(), cfg)
	if err != nil {
		t.Fatalf("NewTree() error = %v", err)
	}

	crasher := &crashingService{}
	tree.AddMessagingService(crasher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if crasher.starts.Load() >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := crasher.starts.Load(); got < 2 {
		t.Errorf("crashed service started %d times, want >= 2", got)
	}

	cancel()
	<-errCh
}

// crashingService fails immediately on every start.
type crashingService struct {
	starts atomic.Int64
}

func (s *crashingService) String() string { return "crasher" }

func (s *crashingService) Serve(_ context.Context) error {
	s.starts.Add(1)
	return errors.New("boom")
}
