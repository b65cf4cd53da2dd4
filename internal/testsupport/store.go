package testsupport

import (
	"context"
	"testing"

	"seedkeeper/internal/config"
	"seedkeeper/internal/download"
)

// MustOpenStore opens a download.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *download.Store {
	t.Helper()

	store, err := download.Open(cfg)
	if err != nil {
		t.Fatalf("download.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewAcquisition queues an acquisition for tests using the provided store.
func NewAcquisition(t testing.TB, store *download.Store, params download.NewAcquisitionParams) *download.Acquisition {
	t.Helper()

	item, err := store.NewAcquisition(context.Background(), params)
	if err != nil {
		t.Fatalf("store.NewAcquisition: %v", err)
	}
	return item
}
