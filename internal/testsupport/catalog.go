package testsupport

import (
	"testing"

	"animstore/internal/catalog"
	"animstore/internal/config"
)

// MustOpenCatalog opens the catalog configured in cfg and registers cleanup.
func MustOpenCatalog(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg.Paths.CatalogPath)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
