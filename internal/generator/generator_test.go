package generator_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"atelier/internal/generator"
	"atelier/internal/pipeline"
	"atelier/internal/services"
	"atelier/internal/services/imagegen"
	"atelier/internal/store"
	"atelier/internal/testsupport"
)

type stubProvider struct {
	name  string
	calls int
	errs  map[int]error
	data  []byte
}

func (s *stubProvider) Name() string {
	if s.name == "" {
		return "stub"
	}
	return s.name
}

func (s *stubProvider) Generate(ctx context.Context, req imagegen.Request) ([]byte, error) {
	s.calls++
	if err, ok := s.errs[s.calls]; ok {
		return nil, err
	}
	if s.data != nil {
		return s.data, nil
	}
	return []byte{0x89, 'P', 'N', 'G'}, nil
}

func describedItem(t *testing.T, st *store.Store, accountID, sourceID int64, ref string) *store.Item {
	t.Helper()
	item := testsupport.SeedItem(t, st, accountID, sourceID, ref, 0)
	ctx := context.Background()
	if err := st.SetItemVetResult(ctx, item.ID, 0.9, store.ItemApproved); err != nil {
		t.Fatalf("SetItemVetResult: %v", err)
	}
	if err := st.SetItemDescription(ctx, item.ID, "a quiet harbor at dawn"); err != nil {
		t.Fatalf("SetItemDescription: %v", err)
	}
	return item
}

func referenceImage(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "reference.png")
	testsupport.WriteFile(t, path, []byte("reference-bytes"))
	return path
}

func registryOf(providers ...imagegen.Provider) *imagegen.Registry {
	return imagegen.NewRegistry("stub", providers...)
}

func TestGenerateWritesImagesAndRecordsPaths(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	account, source := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")
	item := describedItem(t, st, account.ID, source.ID, "p1")
	refPath := referenceImage(t, t.TempDir())
	outDir := filepath.Join(t.TempDir(), "generated")
	ctx := context.Background()

	handler := generator.New(st, registryOf(&stubProvider{}), outDir, nil)
	outcome, err := handler.Run(ctx, pipeline.Context{
		AccountID: account.ID,
		RunID:     1,
		Settings:  store.Settings{ReferenceImagePath: refPath, AspectRatio: "4:5"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	output := outcome.Output.(pipeline.GenerateOutput)
	if output.Generated != 1 || output.Provider != "stub" {
		t.Fatalf("output = %+v", output)
	}

	got, _ := st.GetItem(ctx, item.ID)
	if got.GeneratedPath == "" {
		t.Fatal("generated path not recorded")
	}
	if _, err := os.Stat(got.GeneratedPath); err != nil {
		t.Fatalf("generated file: %v", err)
	}
	if !strings.HasSuffix(got.GeneratedPath, ".png") {
		t.Fatalf("path = %q", got.GeneratedPath)
	}
}

func TestGenerateFailsWithoutReferenceImage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	account, source := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")
	describedItem(t, st, account.ID, source.ID, "p1")

	handler := generator.New(st, registryOf(&stubProvider{}), t.TempDir(), nil)
	_, err := handler.Run(context.Background(), pipeline.Context{
		AccountID: account.ID,
		Settings:  store.Settings{},
	})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("error = %v, want ErrConfiguration", err)
	}
	if !strings.Contains(err.Error(), "reference image not configured") {
		t.Fatalf("error message = %q", err.Error())
	}
}

func TestGenerateSkipsWithoutWork(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	account, _ := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")

	handler := generator.New(st, registryOf(&stubProvider{}), t.TempDir(), nil)
	outcome, err := handler.Run(context.Background(), pipeline.Context{AccountID: account.ID})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.Skipped {
		t.Fatalf("outcome = %+v", outcome)
	}
}

func TestGeneratePartialFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	account, source := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")
	describedItem(t, st, account.ID, source.ID, "p1")
	describedItem(t, st, account.ID, source.ID, "p2")
	refPath := referenceImage(t, t.TempDir())

	provider := &stubProvider{errs: map[int]error{1: errors.New("quota exceeded")}}
	handler := generator.New(st, registryOf(provider), t.TempDir(), nil)

	outcome, err := handler.Run(context.Background(), pipeline.Context{
		AccountID: account.ID,
		Settings:  store.Settings{ReferenceImagePath: refPath},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	output := outcome.Output.(pipeline.GenerateOutput)
	if output.Generated != 1 || len(output.Errors) != 1 {
		t.Fatalf("output = %+v", output)
	}
}

func TestGenerateAllItemsFailedFailsStep(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	account, source := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")
	describedItem(t, st, account.ID, source.ID, "p1")
	refPath := referenceImage(t, t.TempDir())

	provider := &stubProvider{errs: map[int]error{1: errors.New("quota exceeded")}}
	handler := generator.New(st, registryOf(provider), t.TempDir(), nil)

	_, err := handler.Run(context.Background(), pipeline.Context{
		AccountID: account.ID,
		Settings:  store.Settings{ReferenceImagePath: refPath},
	})
	if !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("error = %v, want ErrExternalService", err)
	}
}

func TestGenerateUsesAccountProviderSetting(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	account, source := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")
	describedItem(t, st, account.ID, source.ID, "p1")
	refPath := referenceImage(t, t.TempDir())

	fallback := &stubProvider{}
	flux := &stubProvider{name: "flux"}
	handler := generator.New(st, registryOf(fallback, flux), t.TempDir(), nil)

	outcome, err := handler.Run(context.Background(), pipeline.Context{
		AccountID: account.ID,
		RunID:     1,
		Settings: store.Settings{
			ReferenceImagePath: refPath,
			GenerationProvider: "flux",
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	output := outcome.Output.(pipeline.GenerateOutput)
	if output.Provider != "flux" {
		t.Fatalf("provider = %q, want flux", output.Provider)
	}
	if flux.calls != 1 || fallback.calls != 0 {
		t.Fatalf("calls: flux = %d, fallback = %d", flux.calls, fallback.calls)
	}
}

func TestGenerateFallsBackToDefaultProvider(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	account, source := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")
	describedItem(t, st, account.ID, source.ID, "p1")
	refPath := referenceImage(t, t.TempDir())

	fallback := &stubProvider{}
	handler := generator.New(st, registryOf(fallback, &stubProvider{name: "flux"}), t.TempDir(), nil)

	outcome, err := handler.Run(context.Background(), pipeline.Context{
		AccountID: account.ID,
		RunID:     1,
		Settings:  store.Settings{ReferenceImagePath: refPath},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	output := outcome.Output.(pipeline.GenerateOutput)
	if output.Provider != "stub" || fallback.calls != 1 {
		t.Fatalf("output = %+v, fallback calls = %d", output, fallback.calls)
	}
}

func TestGenerateUnknownAccountProviderFailsStep(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	account, source := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")
	describedItem(t, st, account.ID, source.ID, "p1")
	refPath := referenceImage(t, t.TempDir())

	handler := generator.New(st, registryOf(&stubProvider{}), t.TempDir(), nil)

	_, err := handler.Run(context.Background(), pipeline.Context{
		AccountID: account.ID,
		Settings: store.Settings{
			ReferenceImagePath: refPath,
			GenerationProvider: "dalle",
		},
	})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("error = %v, want ErrConfiguration", err)
	}
}

func TestGenerateSpacesProviderCalls(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	account, source := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")
	describedItem(t, st, account.ID, source.ID, "p1")
	describedItem(t, st, account.ID, source.ID, "p2")
	describedItem(t, st, account.ID, source.ID, "p3")
	refPath := referenceImage(t, t.TempDir())

	var slept []time.Duration
	handler := generator.New(st, registryOf(&stubProvider{}), t.TempDir(), nil,
		generator.WithItemDelay(500*time.Millisecond),
		generator.WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
	)

	if _, err := handler.Run(context.Background(), pipeline.Context{
		AccountID: account.ID,
		Settings:  store.Settings{ReferenceImagePath: refPath},
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Delay between items, not before the first.
	if len(slept) != 2 || slept[0] != 500*time.Millisecond {
		t.Fatalf("sleeps = %v", slept)
	}
}
