package daemon_test

import (
	"context"
	"testing"

	"newsdesk/internal/config"
	"newsdesk/internal/daemon"
	"newsdesk/internal/ingest"
	"newsdesk/internal/llm"
	"newsdesk/internal/pipeline"
	"newsdesk/internal/testsupport"
	"newsdesk/internal/workflow"
)

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	st := testsupport.MustOpenStore(t, cfg)
	orchestrator := pipeline.New(st, llm.NewExecutor(cfg, nil), nil)
	poller := ingest.NewPoller(cfg, st, orchestrator, nil)
	manager := workflow.NewManager(cfg, st, orchestrator, poller, nil)
	d, err := daemon.New(cfg, st, nil, manager)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func TestDaemonEnforcesSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	first := newDaemon(t, cfg)
	if err := first.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer first.Stop()

	second := newDaemon(t, cfg)
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("second instance must fail to acquire the lock")
	}
}

func TestDaemonStatusAndRestart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	d := newDaemon(t, cfg)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	status := d.Status()
	if !status.Running || status.DatabasePath != cfg.DatabasePath() {
		t.Fatalf("unexpected status: %+v", status)
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("expected stopped status")
	}

	// The released lock allows a fresh start.
	if err := d.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	d.Stop()
}
