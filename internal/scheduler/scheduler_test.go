package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"atelier/internal/pipeline"
	"atelier/internal/scheduler"
	"atelier/internal/services"
	"atelier/internal/store"
	"atelier/internal/testsupport"
)

func readyItem(t *testing.T, st *store.Store, accountID, sourceID int64, ref, caption string) *store.Item {
	t.Helper()
	item := testsupport.SeedItem(t, st, accountID, sourceID, ref, 0)
	ctx := context.Background()
	if err := st.SetItemVetResult(ctx, item.ID, 0.9, store.ItemApproved); err != nil {
		t.Fatalf("SetItemVetResult: %v", err)
	}
	if err := st.SetItemDescription(ctx, item.ID, "harbor at dawn"); err != nil {
		t.Fatalf("SetItemDescription: %v", err)
	}
	if err := st.SetItemGenerated(ctx, item.ID, "/tmp/generated/"+ref+".png"); err != nil {
		t.Fatalf("SetItemGenerated: %v", err)
	}
	if caption != "" {
		if err := st.SetItemCaption(ctx, item.ID, caption, ""); err != nil {
			t.Fatalf("SetItemCaption: %v", err)
		}
	}
	return item
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestScheduleWalksSlots(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	account, source := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")
	ctx := context.Background()

	readyItem(t, st, account.ID, source.ID, "p1", "caption one")
	readyItem(t, st, account.ID, source.ID, "p2", "caption two")
	readyItem(t, st, account.ID, source.ID, "p3", "caption three")

	morning := time.Date(2026, 3, 1, 8, 0, 0, 0, time.Local)
	handler := scheduler.New(st, []string{"09:00", "13:00"}, nil, scheduler.WithClock(fixedClock(morning)))

	outcome, err := handler.Run(ctx, pipeline.Context{AccountID: account.ID})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	output := outcome.Output.(pipeline.ScheduleOutput)
	if output.Scheduled != 3 {
		t.Fatalf("output = %+v", output)
	}

	posts, err := st.UpcomingPosts(ctx, account.ID, 10)
	if err != nil || len(posts) != 3 {
		t.Fatalf("posts = %d, %v", len(posts), err)
	}
	if posts[0].ScheduledFor.Hour() != 9 || posts[1].ScheduledFor.Hour() != 13 {
		t.Fatalf("slots = %v, %v", posts[0].ScheduledFor, posts[1].ScheduledFor)
	}
	// Third post spills into the next day's first slot.
	if posts[2].ScheduledFor.Day() != 2 || posts[2].ScheduledFor.Hour() != 9 {
		t.Fatalf("third slot = %v", posts[2].ScheduledFor)
	}
}

func TestScheduleContinuesAfterQueuedPosts(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	account, source := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")
	ctx := context.Background()

	existing := readyItem(t, st, account.ID, source.ID, "p0", "queued earlier")
	if _, err := st.CreateScheduledPost(ctx, &store.ScheduledPost{
		AccountID:    account.ID,
		ItemID:       existing.ID,
		Caption:      "queued earlier",
		ImagePath:    existing.GeneratedPath,
		ScheduledFor: time.Date(2026, 3, 2, 13, 0, 0, 0, time.Local),
	}); err != nil {
		t.Fatalf("CreateScheduledPost: %v", err)
	}

	readyItem(t, st, account.ID, source.ID, "p1", "new caption")

	morning := time.Date(2026, 3, 1, 8, 0, 0, 0, time.Local)
	handler := scheduler.New(st, []string{"09:00", "13:00"}, nil, scheduler.WithClock(fixedClock(morning)))

	if _, err := handler.Run(ctx, pipeline.Context{AccountID: account.ID}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	posts, err := st.UpcomingPosts(ctx, account.ID, 10)
	if err != nil {
		t.Fatalf("UpcomingPosts: %v", err)
	}
	last := posts[len(posts)-1]
	// The new post lands after the already-queued slot, not before it.
	if want := time.Date(2026, 3, 3, 9, 0, 0, 0, time.Local); !last.ScheduledFor.Equal(want) {
		t.Fatalf("slot = %v, want %v", last.ScheduledFor, want)
	}
}

func TestSchedulePrefersRunCaptions(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	account, source := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")
	item := readyItem(t, st, account.ID, source.ID, "p1", "stored caption")
	ctx := context.Background()

	handler := scheduler.New(st, []string{"09:00"}, nil)
	outcome, err := handler.Run(ctx, pipeline.Context{
		AccountID: account.ID,
		Captions:  map[int64]pipeline.Caption{item.ID: {Text: "fresh caption"}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Output.(pipeline.ScheduleOutput).Scheduled != 1 {
		t.Fatalf("outcome = %+v", outcome)
	}

	posts, _ := st.UpcomingPosts(ctx, account.ID, 1)
	if posts[0].Caption != "fresh caption" {
		t.Fatalf("caption = %q", posts[0].Caption)
	}
}

func TestScheduleSkipsItemsWithoutCaption(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	account, source := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")
	readyItem(t, st, account.ID, source.ID, "p1", "")
	readyItem(t, st, account.ID, source.ID, "p2", "has caption")
	ctx := context.Background()

	handler := scheduler.New(st, []string{"09:00"}, nil)
	outcome, err := handler.Run(ctx, pipeline.Context{AccountID: account.ID})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	output := outcome.Output.(pipeline.ScheduleOutput)
	if output.Scheduled != 1 || len(output.Errors) != 1 || output.Errors[0].Message != "no caption available" {
		t.Fatalf("output = %+v", output)
	}
}

func TestScheduleFailsWhenNothingSchedulable(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	account, source := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")
	readyItem(t, st, account.ID, source.ID, "p1", "")
	ctx := context.Background()

	handler := scheduler.New(st, []string{"09:00"}, nil)
	_, err := handler.Run(ctx, pipeline.Context{AccountID: account.ID})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestScheduleSkipsWithoutWork(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	account, _ := testsupport.SeedAccount(t, st, "atelier_main", "daily_inspo")

	handler := scheduler.New(st, []string{"09:00"}, nil)
	outcome, err := handler.Run(context.Background(), pipeline.Context{AccountID: account.ID})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.Skipped || outcome.SkipReason != "nothing to schedule" {
		t.Fatalf("outcome = %+v", outcome)
	}
}
