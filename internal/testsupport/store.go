package testsupport

import (
	"context"
	"testing"

	"newsdesk/internal/config"
	"newsdesk/internal/store"
)

// MustOpenStore opens a store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// NewSource creates an active source for tests using the provided store.
func NewSource(t testing.TB, st *store.Store, name string, method store.SourceMethod) *store.Source {
	t.Helper()

	source, err := st.CreateSource(context.Background(), &store.Source{
		Name:   name,
		Method: method,
		URL:    "https://example.com/" + name,
		Active: true,
	})
	if err != nil {
		t.Fatalf("store.CreateSource: %v", err)
	}
	return source
}
