package worker_test

import (
	"context"
	"errors"
	"testing"

	"atelier/internal/services"
	"atelier/internal/store"
	"atelier/internal/testsupport"
	"atelier/internal/worker"
)

func TestTriggerAllQueuesActiveAccounts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	manager := newManager(t, st, skipSet())

	active, _ := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")
	disabled, _ := testsupport.SeedAccount(t, st, "atelier_paused", "weekly_inspo")
	if err := st.SetAccountActive(context.Background(), disabled.ID, false); err != nil {
		t.Fatalf("SetAccountActive: %v", err)
	}

	ts, err := worker.NewTriggerScheduler("0 9 * * *", st, manager, nil)
	if err != nil {
		t.Fatalf("NewTriggerScheduler: %v", err)
	}

	if err := ts.TriggerAll(context.Background()); err != nil {
		t.Fatalf("TriggerAll: %v", err)
	}

	run, err := st.LatestRun(context.Background(), active.ID)
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if run == nil {
		t.Fatal("expected a run for the active account")
	}
	if run.Trigger != store.TriggerScheduled {
		t.Fatalf("trigger = %s, want scheduled", run.Trigger)
	}

	skipped, err := st.LatestRun(context.Background(), disabled.ID)
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if skipped != nil {
		t.Fatal("disabled account should not have been queued")
	}
}

func TestTriggerAllToleratesLiveRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	manager := newManager(t, st, skipSet())
	account, _ := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")

	ts, err := worker.NewTriggerScheduler("@daily", st, manager, nil)
	if err != nil {
		t.Fatalf("NewTriggerScheduler: %v", err)
	}

	if err := ts.TriggerAll(context.Background()); err != nil {
		t.Fatalf("first TriggerAll: %v", err)
	}
	if err := ts.TriggerAll(context.Background()); err != nil {
		t.Fatalf("second TriggerAll: %v", err)
	}

	runs, err := st.ListRuns(context.Background(), account.ID, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("run count = %d, want 1", len(runs))
	}
}

func TestNewTriggerSchedulerRejectsBadSpec(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	manager := newManager(t, st, skipSet())

	_, err := worker.NewTriggerScheduler("not a cron spec", st, manager, nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("error = %v, want ErrConfiguration", err)
	}
}
