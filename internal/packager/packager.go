package packager

import (
	"log/slog"
	"runtime"
	"time"

	"animstore/internal/logging"
)

// DefaultMaxEntryBytes bounds the decompressed size of a single archive entry.
const DefaultMaxEntryBytes = 1 << 30

// Option configures a Packager.
type Option func(*Packager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Packager) {
		p.logger = logging.NewComponentLogger(logger, "packager")
	}
}

// WithClock overrides the time source used for side-file names and the
// manifest timestamp.
func WithClock(now func() time.Time) Option {
	return func(p *Packager) {
		if now != nil {
			p.now = now
		}
	}
}

// WithWorkers bounds concurrent side-file decoding during Unpack.
func WithWorkers(n int) Option {
	return func(p *Packager) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithMaxEntryBytes bounds the decompressed size of any archive entry.
func WithMaxEntryBytes(n int64) Option {
	return func(p *Packager) {
		if n > 0 {
			p.maxEntryBytes = n
		}
	}
}

// Packager splits, packs, unpacks, and merges project documents.
type Packager struct {
	logger        *slog.Logger
	now           func() time.Time
	workers       int
	maxEntryBytes int64
}

// New constructs a Packager.
func New(opts ...Option) *Packager {
	p := &Packager{
		logger:        logging.NewComponentLogger(nil, "packager"),
		now:           time.Now,
		workers:       runtime.NumCPU(),
		maxEntryBytes: DefaultMaxEntryBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}
