package testsupport

import (
	"path/filepath"
	"testing"

	"animstore/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Keyframe ids come from a counter, the memory guard is off, and no free
// space is reserved, so results do not depend on the host.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.CatalogPath = filepath.Join(base, "data", "catalog.db")
	cfgVal.Tracks.IDFormat = "counter"
	cfgVal.Precompute.MemoryGuard = false
	cfgVal.Precompute.Workers = 2
	cfgVal.Packager.MinFreeBytes = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithCompression toggles the compressed animation codec.
func WithCompression(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Codec.Compress = enabled
	}
}

// WithChildThresholds lowers the per-child split thresholds.
func WithChildThresholds(vertices, size int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Packager.ChildVertexThreshold = vertices
		b.cfg.Packager.ChildSizeThreshold = size
	}
}

// WithChildrenThreshold sets the whole-collection split threshold.
func WithChildrenThreshold(size int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Packager.ChildrenSizeThreshold = size
	}
}

// WithFrameRate sets the default frame rate for new track sets.
func WithFrameRate(fps int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Tracks.DefaultFrameRate = fps
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
