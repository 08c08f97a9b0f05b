package testsupport

import (
	"context"
	"testing"

	"atelier/internal/config"
	"atelier/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// SeedAccount creates an account with one active source for tests.
func SeedAccount(t testing.TB, st *store.Store, handle, sourceHandle string) (*store.Account, *store.Source) {
	t.Helper()

	account, err := st.CreateAccount(context.Background(), handle)
	if err != nil {
		t.Fatalf("store.CreateAccount: %v", err)
	}
	source, err := st.AddSource(context.Background(), account.ID, sourceHandle)
	if err != nil {
		t.Fatalf("store.AddSource: %v", err)
	}
	return account, source
}

// SeedItem inserts an approved item for tests and returns it with its id set.
func SeedItem(t testing.TB, st *store.Store, accountID, sourceID int64, postURL string, pos int) *store.Item {
	t.Helper()

	item := &store.Item{
		AccountID:   accountID,
		SourceID:    sourceID,
		PostURL:     postURL,
		CarouselPos: pos,
		MediaURL:    postURL + "/media",
	}
	duplicate, err := st.InsertItem(context.Background(), item)
	if err != nil {
		t.Fatalf("store.InsertItem: %v", err)
	}
	if duplicate {
		t.Fatalf("unexpected duplicate for %s pos %d", postURL, pos)
	}
	return item
}
