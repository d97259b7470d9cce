package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"animstore/internal/catalog"
	"animstore/internal/codec"
	"animstore/internal/config"
	"animstore/internal/framecache"
	"animstore/internal/ids"
	"animstore/internal/keyframe"
	"animstore/internal/logging"
	"animstore/internal/packager"
	"animstore/internal/project"
	"animstore/internal/trackset"
)

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workspace) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithCatalog records every save and load in store.
func WithCatalog(store *catalog.Store) Option {
	return func(w *Workspace) {
		w.catalog = store
	}
}

// WithIDGenerator overrides the configured keyframe id generator.
func WithIDGenerator(gen ids.Generator) Option {
	return func(w *Workspace) {
		if gen != nil {
			w.idGen = gen
		}
	}
}

// WithMemoryProbe overrides the probe used by the frame cache memory guard.
func WithMemoryProbe(probe framecache.MemoryProbe) Option {
	return func(w *Workspace) {
		w.probe = probe
	}
}

// WithBackup keeps a verified copy of an existing archive at <path>.bak
// before it is overwritten.
func WithBackup(enabled bool) Option {
	return func(w *Workspace) {
		w.backup = enabled
	}
}

// Workspace holds a project document, its track set, and the frame cache.
// It is not safe for concurrent use.
type Workspace struct {
	cfg      *config.Config
	logger   *slog.Logger
	catalog  *catalog.Store
	packager *packager.Packager
	codec    *codec.Codec
	policy   packager.Policy
	idGen    ids.Generator
	probe    framecache.MemoryProbe
	backup   bool

	doc   project.Document
	set   *trackset.Set
	cache *framecache.Cache
	path  string
}

// New returns an empty workspace configured from cfg.
func New(cfg *config.Config, opts ...Option) (*Workspace, error) {
	if cfg == nil {
		return nil, fmt.Errorf("workspace: config is required")
	}
	w := &Workspace{
		cfg:    cfg,
		logger: logging.NewNop(),
		policy: packager.PolicyFromConfig(cfg.Packager),
		probe:  framecache.SystemMemory{},
	}
	for _, opt := range opts {
		opt(w)
	}
	base := w.logger
	w.logger = logging.NewComponentLogger(base, "workspace")

	if w.idGen == nil {
		gen, err := ids.New(cfg.Tracks.IDFormat)
		if err != nil {
			return nil, fmt.Errorf("workspace: %w", err)
		}
		w.idGen = gen
	}
	if cfg.Codec.Compress {
		w.codec = codec.New(codec.WithPrecision(cfg.Codec.TimeDecimals, cfg.Codec.ValueDecimals))
	}
	w.packager = packager.New(
		packager.WithLogger(base),
		packager.WithWorkers(cfg.Precompute.Workers),
	)

	cacheOpts := []framecache.Option{
		framecache.WithMargin(cfg.Precompute.MarginFactor),
		framecache.WithWorkers(cfg.Precompute.Workers),
		framecache.WithLogger(base),
	}
	if cfg.Precompute.MemoryGuard && w.probe != nil {
		cacheOpts = append(cacheOpts, framecache.WithMemoryGuard(w.probe, cfg.Precompute.MaxMemoryFraction))
	}
	w.cache = framecache.New(cacheOpts...)

	w.doc = project.Document{}
	w.set = trackset.New(w.trackOptions()...)
	return w, nil
}

func (w *Workspace) trackOptions() []trackset.Option {
	return []trackset.Option{
		trackset.WithFrameRate(w.cfg.Tracks.DefaultFrameRate),
		trackset.WithIDGenerator(w.idGen),
		trackset.WithTrackOptions(
			keyframe.WithCapacity(w.cfg.Tracks.Capacity),
			keyframe.WithEpsilon(w.cfg.Tracks.TimeEpsilon),
		),
	}
}

// Set returns the live track set. Mutations are picked up by the next
// Precompute or Save.
func (w *Workspace) Set() *trackset.Set { return w.set }

// Cache returns the frame cache.
func (w *Workspace) Cache() *framecache.Cache { return w.cache }

// Document returns the live project document. Its timeline.animation entry
// is rewritten from the track set on every save.
func (w *Workspace) Document() project.Document { return w.doc }

// Path returns the archive last saved to or loaded from.
func (w *Workspace) Path() string { return w.path }

// Policy returns the split policy used by Save.
func (w *Workspace) Policy() packager.Policy { return w.policy }

// Packager returns the packager used by Save and Load.
func (w *Workspace) Packager() *packager.Packager { return w.packager }

// Replace installs doc as the live document and rebuilds the track set from
// its animation. A document without animation gets an empty set. Track-level
// problems are returned; on error the previous state is kept.
func (w *Workspace) Replace(doc project.Document) ([]trackset.TrackError, error) {
	if doc == nil {
		doc = project.Document{}
	}
	set, problems, err := w.rehydrate(doc)
	if err != nil {
		return nil, err
	}
	w.install(doc, set, w.path)
	return problems, nil
}

// Precompute refreshes the frame cache if the track set changed.
func (w *Workspace) Precompute(ctx context.Context) (bool, error) {
	return w.cache.EnsureFresh(ctx, w.set)
}

func (w *Workspace) rehydrate(doc project.Document) (*trackset.Set, []trackset.TrackError, error) {
	set, problems, err := doc.Animation(w.trackOptions()...)
	if errors.Is(err, project.ErrNoAnimation) {
		return trackset.New(w.trackOptions()...), nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("rebuild animation: %w", err)
	}
	return set, problems, nil
}

func (w *Workspace) install(doc project.Document, set *trackset.Set, path string) {
	w.doc = doc
	w.set = set
	w.path = path
	w.cache.Invalidate()
}
