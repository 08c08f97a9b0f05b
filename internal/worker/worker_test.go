package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"atelier/internal/pipeline"
	"atelier/internal/services"
	"atelier/internal/store"
	"atelier/internal/testsupport"
	"atelier/internal/worker"
)

type stubHandler struct {
	name store.StepName
	run  func(ctx context.Context, rc pipeline.Context) (pipeline.Outcome, error)
}

func (s stubHandler) Step() store.StepName { return s.name }

func (s stubHandler) Run(ctx context.Context, rc pipeline.Context) (pipeline.Outcome, error) {
	if s.run == nil {
		return pipeline.Skip("nothing to do"), nil
	}
	return s.run(ctx, rc)
}

func skipSet() pipeline.StepSet {
	return pipeline.StepSet{
		Scraper:   stubHandler{name: store.StepScrape},
		Validator: stubHandler{name: store.StepValidate},
		Describer: stubHandler{name: store.StepDescribe},
		Generator: stubHandler{name: store.StepGenerate},
		Captioner: stubHandler{name: store.StepCaption},
		Scheduler: stubHandler{name: store.StepSchedule},
	}
}

func newManager(t *testing.T, st *store.Store, steps pipeline.StepSet) *pipeline.Manager {
	t.Helper()
	engine, err := pipeline.NewEngine(st, steps, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	manager, err := pipeline.NewManager(st, engine, nil, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return manager
}

func waitForStatus(t *testing.T, st *store.Store, runID int64, want store.RunStatus) *store.Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		run, err := st.GetRun(context.Background(), runID)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if run.Status == want {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %d never reached status %s", runID, want)
	return nil
}

func TestWorkerDrainsPendingRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	manager := newManager(t, st, skipSet())

	first, _ := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")
	second, _ := testsupport.SeedAccount(t, st, "atelier_alt", "weekly_inspo")

	runA, err := st.CreateRun(context.Background(), first.ID, store.TriggerManual)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	runB, err := st.CreateRun(context.Background(), second.ID, store.TriggerManual)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	w := worker.New(cfg, st, manager, nil,
		worker.WithLanes(2),
		worker.WithPollInterval(10*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	waitForStatus(t, st, runA.ID, store.RunCompleted)
	waitForStatus(t, st, runB.ID, store.RunCompleted)
}

func TestWorkerPicksUpRunsCreatedWhileRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	manager := newManager(t, st, skipSet())
	account, _ := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")

	w := worker.New(cfg, st, manager, nil,
		worker.WithPollInterval(10*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	run, err := st.CreateRun(context.Background(), account.ID, store.TriggerTimer)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	waitForStatus(t, st, run.ID, store.RunCompleted)
}

func TestWorkerDoubleStartRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	manager := newManager(t, st, skipSet())

	w := worker.New(cfg, st, manager, nil, worker.WithPollInterval(10*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := w.Start(context.Background()); !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("second Start error = %v, want ErrInvalidState", err)
	}
}

func TestWorkerStopWaitsForInFlightRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	started := make(chan struct{})
	release := make(chan struct{})
	steps := skipSet()
	steps.Scraper = stubHandler{name: store.StepScrape, run: func(ctx context.Context, rc pipeline.Context) (pipeline.Outcome, error) {
		close(started)
		<-release
		return pipeline.Skip("nothing to do"), nil
	}}
	manager := newManager(t, st, steps)

	account, _ := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")
	run, err := st.CreateRun(context.Background(), account.ID, store.TriggerManual)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	w := worker.New(cfg, st, manager, nil, worker.WithPollInterval(10*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	<-started
	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a run was still executing")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the run finished")
	}

	// Shutdown cancels the lane context, so the engine stops the run at
	// the next step boundary instead of leaving it stranded in running.
	got, err := st.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != store.RunCancelled {
		t.Fatalf("run status = %s, want cancelled", got.Status)
	}
}
