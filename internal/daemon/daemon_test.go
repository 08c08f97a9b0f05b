package daemon_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"atelier/internal/daemon"
	"atelier/internal/store"
	"atelier/internal/testsupport"
)

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	d, err := daemon.New(cfg, st, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	status := d.Status(context.Background())
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.DBPath == "" || status.LockFilePath == "" {
		t.Fatal("expected db and lock paths in status")
	}

	d.Stop()
	if d.Status(context.Background()).Running {
		t.Fatal("expected daemon to report stopped")
	}
}

func TestDaemonSecondInstanceRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	first, err := daemon.New(cfg, st, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.Stop()

	second, err := daemon.New(cfg, st, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected second instance to fail the lock")
	}
}

func TestDaemonRejectsBadCronSpec(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Triggers.CronEnabled = true
	cfg.Triggers.CronSpec = "definitely not cron"
	st := testsupport.MustOpenStore(t, cfg)

	d, err := daemon.New(cfg, st, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err == nil {
		d.Stop()
		t.Fatal("expected start to fail on invalid cron spec")
	}
}

func TestDaemonProcessesQueuedRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Scraper.BaseURL = srv.URL
	cfg.Workflow.PollInterval = 1
	st := testsupport.MustOpenStore(t, cfg)

	account, _ := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")
	run, err := st.CreateRun(context.Background(), account.ID, store.TriggerManual)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	d, err := daemon.New(cfg, st, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		got, err := st.GetRun(context.Background(), run.ID)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if got.Status == store.RunCompleted {
			return
		}
		if got.Status.Terminal() {
			t.Fatalf("run ended %s (step %s: %s)", got.Status, got.ErrorStep, got.ErrorMessage)
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("run never completed")
}
