package vetting_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"atelier/internal/pipeline"
	"atelier/internal/services"
	"atelier/internal/store"
	"atelier/internal/testsupport"
	"atelier/internal/vetting"
)

type stubScorer struct {
	scores map[string]float64
	errs   map[string]error
}

func (s *stubScorer) Score(_ context.Context, media []byte, _ string) (float64, error) {
	key := string(media)
	if err, ok := s.errs[key]; ok {
		return 0, err
	}
	return s.scores[key], nil
}

type stubMedia struct{}

// FetchMedia echoes the URL back so the scorer can key off it.
func (stubMedia) FetchMedia(_ context.Context, mediaURL string) ([]byte, string, error) {
	return []byte(mediaURL), "image/jpeg", nil
}

func settings(threshold float64) store.Settings {
	return store.Settings{VetThreshold: threshold}
}

func TestVetApprovesAndRejectsAgainstThreshold(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	account, source := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")
	ctx := context.Background()

	a := testsupport.SeedItem(t, st, account.ID, source.ID, "p1", 0)
	b := testsupport.SeedItem(t, st, account.ID, source.ID, "p2", 0)
	c := testsupport.SeedItem(t, st, account.ID, source.ID, "p3", 0)

	scorer := &stubScorer{scores: map[string]float64{
		a.MediaURL: 0.9,
		b.MediaURL: 0.5,
		c.MediaURL: 0.8,
	}}
	handler := vetting.New(st, scorer, stubMedia{}, nil)

	outcome, err := handler.Run(ctx, pipeline.Context{AccountID: account.ID, Settings: settings(0.7)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	output := outcome.Output.(pipeline.ValidateOutput)
	if output.AutoApproved != 2 || output.AutoRejected != 1 || output.Threshold != 0.7 {
		t.Fatalf("output = %+v", output)
	}
	if len(outcome.Delta.ApprovedItemIDs) != 2 {
		t.Fatalf("delta = %+v", outcome.Delta)
	}

	gotA, _ := st.GetItem(ctx, a.ID)
	if gotA.Status != store.ItemApproved || gotA.VetScore == nil || *gotA.VetScore != 0.9 {
		t.Fatalf("item a = %+v", gotA)
	}
	gotB, _ := st.GetItem(ctx, b.ID)
	if gotB.Status != store.ItemRejected {
		t.Fatalf("item b = %+v", gotB)
	}
}

func TestVetSkipsWithoutPendingItems(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	account, _ := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")

	handler := vetting.New(st, &stubScorer{}, stubMedia{}, nil)
	outcome, err := handler.Run(context.Background(), pipeline.Context{AccountID: account.ID, Settings: settings(0.7)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.Skipped || outcome.SkipReason != "no items pending review" {
		t.Fatalf("outcome = %+v", outcome)
	}
}

func TestVetSkipsWhenVisionUnconfigured(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	account, source := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")
	testsupport.SeedItem(t, st, account.ID, source.ID, "p1", 0)
	testsupport.SeedItem(t, st, account.ID, source.ID, "p2", 0)

	handler := vetting.New(st, nil, nil, nil)
	outcome, err := handler.Run(context.Background(), pipeline.Context{AccountID: account.ID, Settings: settings(0.7)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.Skipped || !strings.Contains(outcome.SkipReason, "2 item(s) await manual review") {
		t.Fatalf("outcome = %+v", outcome)
	}

	// Items stay pending for manual review.
	pending, err := st.ItemsPendingVet(context.Background(), account.ID, 0)
	if err != nil || len(pending) != 2 {
		t.Fatalf("pending = %d, %v", len(pending), err)
	}
}

func TestVetPartialScoringFailure(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	account, source := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")
	a := testsupport.SeedItem(t, st, account.ID, source.ID, "p1", 0)
	b := testsupport.SeedItem(t, st, account.ID, source.ID, "p2", 0)

	scorer := &stubScorer{
		scores: map[string]float64{a.MediaURL: 0.8},
		errs:   map[string]error{b.MediaURL: errors.New("model overloaded")},
	}
	handler := vetting.New(st, scorer, stubMedia{}, nil)

	outcome, err := handler.Run(context.Background(), pipeline.Context{AccountID: account.ID, Settings: settings(0.7)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	output := outcome.Output.(pipeline.ValidateOutput)
	if output.AutoApproved != 1 || len(output.Errors) != 1 || output.Errors[0].ItemID != b.ID {
		t.Fatalf("output = %+v", output)
	}
}

func TestVetFailsWhenNothingScored(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	account, source := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")
	a := testsupport.SeedItem(t, st, account.ID, source.ID, "p1", 0)

	scorer := &stubScorer{errs: map[string]error{a.MediaURL: errors.New("model overloaded")}}
	handler := vetting.New(st, scorer, stubMedia{}, nil)

	_, err := handler.Run(context.Background(), pipeline.Context{AccountID: account.ID, Settings: settings(0.7)})
	if !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("error = %v, want ErrExternalService", err)
	}
}

func TestVetBoundsBatchPerRun(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	account, source := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")
	ctx := context.Background()

	a := testsupport.SeedItem(t, st, account.ID, source.ID, "p1", 0)
	b := testsupport.SeedItem(t, st, account.ID, source.ID, "p2", 0)
	c := testsupport.SeedItem(t, st, account.ID, source.ID, "p3", 0)

	scorer := &stubScorer{scores: map[string]float64{
		a.MediaURL: 0.9,
		b.MediaURL: 0.9,
		c.MediaURL: 0.9,
	}}
	handler := vetting.New(st, scorer, stubMedia{}, nil, vetting.WithBatchSize(2))

	outcome, err := handler.Run(ctx, pipeline.Context{AccountID: account.ID, Settings: settings(0.7)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	output := outcome.Output.(pipeline.ValidateOutput)
	if output.AutoApproved != 2 {
		t.Fatalf("output = %+v", output)
	}

	// The oldest items go first; the rest wait for the next run.
	left, err := st.ItemsPendingVet(ctx, account.ID, 0)
	if err != nil || len(left) != 1 || left[0].ID != c.ID {
		t.Fatalf("left = %+v, %v", left, err)
	}
}
