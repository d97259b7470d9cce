package framecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sync/errgroup"

	"animstore/internal/keyframe"
	"animstore/internal/logging"
	"animstore/internal/metrics"
	"animstore/internal/trackset"
)

const (
	// DefaultMargin sizes the cache 10% past MaxTime so edits that extend the
	// timeline slightly still land inside the buffer.
	DefaultMargin = 1.1
	// DefaultMaxMemoryFraction is the share of available memory a recompute
	// may claim when the memory guard is on.
	DefaultMaxMemoryFraction = 0.5

	// MaxFrames caps the frames per track so that a buffer of 3 floats per
	// frame stays addressable.
	MaxFrames = math.MaxInt / 3

	ctxCheckInterval = 1024
	frameSlack       = 1e-9
	bytesPerFrame    = 3 * 8
)

var (
	// ErrInsufficientMemory reports a recompute that would exceed the memory guard.
	ErrInsufficientMemory = errors.New("insufficient memory for frame cache")
	// ErrTooManyFrames reports a timeline too long to hold in memory at all.
	ErrTooManyFrames = errors.New("frame count exceeds cache limit")
)

// MemoryProbe reports available system memory in bytes.
type MemoryProbe interface {
	Available() (uint64, error)
}

// SystemMemory reads available memory from the OS.
type SystemMemory struct{}

// Available returns the bytes of memory available for new allocations.
func (SystemMemory) Available() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// Option configures a Cache.
type Option func(*Cache)

// WithMargin overrides the duration margin factor. Values below 1 are ignored.
func WithMargin(m float64) Option {
	return func(c *Cache) {
		if m >= 1 {
			c.margin = m
		}
	}
}

// WithWorkers bounds the number of tracks sampled concurrently.
func WithWorkers(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithMemoryGuard refuses recomputes needing more than fraction of the memory
// reported by probe.
func WithMemoryGuard(probe MemoryProbe, fraction float64) Option {
	return func(c *Cache) {
		c.probe = probe
		if fraction > 0 && fraction <= 1 {
			c.maxFraction = fraction
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logging.NewComponentLogger(logger, "framecache")
	}
}

// Cache holds a dense per-frame sample buffer for every track of a set.
type Cache struct {
	margin      float64
	workers     int
	probe       MemoryProbe
	maxFraction float64
	logger      *slog.Logger

	valid       bool
	revision    uint64
	frameRate   int
	totalFrames int
	buffers     map[trackset.Key][]float64
}

// New returns an empty, dirty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		margin:      DefaultMargin,
		workers:     runtime.NumCPU(),
		maxFraction: DefaultMaxMemoryFraction,
		logger:      logging.NewComponentLogger(nil, "framecache"),
		buffers:     make(map[trackset.Key][]float64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TotalFrames returns ceil(maxTime * frameRate * margin), or ErrTooManyFrames
// when the result would exceed MaxFrames.
func TotalFrames(maxTime float64, frameRate int, margin float64) (int, error) {
	if maxTime <= 0 || frameRate <= 0 {
		return 0, nil
	}
	frames := math.Ceil(maxTime*float64(frameRate)*margin - frameSlack)
	if math.IsNaN(frames) || frames >= float64(MaxFrames) {
		return 0, fmt.Errorf("%w: %g frames at %d fps", ErrTooManyFrames, frames, frameRate)
	}
	return int(frames), nil
}

// Dirty reports whether the cache no longer reflects set.
func (c *Cache) Dirty(set *trackset.Set) bool {
	return !c.valid || c.revision != set.Revision()
}

// Invalidate forces the next EnsureFresh to recompute.
func (c *Cache) Invalidate() {
	c.valid = false
}

// TotalFrames returns the frame count of the last recompute.
func (c *Cache) TotalFrames() int { return c.totalFrames }

// FrameRate returns the frame rate of the last recompute.
func (c *Cache) FrameRate() int { return c.frameRate }

// Buffer returns the dense buffer for a track: 3 floats per frame. The slice
// is owned by the cache and must not be modified. Nothing is served until a
// recompute has completed since the last failure or Invalidate.
func (c *Cache) Buffer(objectID, property string) ([]float64, bool) {
	if !c.valid {
		return nil, false
	}
	buf, ok := c.buffers[trackset.Key{ObjectID: objectID, Property: property}]
	return buf, ok
}

// Frame returns the precomputed sample of a track at a frame index.
func (c *Cache) Frame(objectID, property string, frame int) (keyframe.Vec3, bool) {
	buf, ok := c.Buffer(objectID, property)
	if !ok || frame < 0 || frame >= c.totalFrames {
		return keyframe.Vec3{}, false
	}
	off := frame * 3
	return keyframe.Vec3{buf[off], buf[off+1], buf[off+2]}, true
}

// EnsureFresh recomputes every track buffer when the set has changed since
// the last pass and reports whether it did. The caller must not mutate set
// while the pass runs. On error the cache stays dirty.
func (c *Cache) EnsureFresh(ctx context.Context, set *trackset.Set) (bool, error) {
	if !c.Dirty(set) {
		return false, nil
	}
	timer := metrics.NewTimer()

	fps := set.FrameRate()
	total, err := TotalFrames(set.MaxTime(), fps, c.margin)
	if err != nil {
		c.valid = false
		return false, err
	}
	keys := set.Keys()
	if err = c.checkMemory(total, len(keys)); err != nil {
		c.valid = false
		return false, err
	}

	buffers := make(map[trackset.Key][]float64, len(keys))
	for _, key := range keys {
		buffers[key] = c.reuse(key, total*3)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, key := range keys {
		tr, _ := set.Track(key.ObjectID, key.Property)
		buf := buffers[key]
		g.Go(func() error {
			return fill(gctx, buf, tr, total, fps)
		})
	}
	if err := g.Wait(); err != nil {
		c.valid = false
		return false, fmt.Errorf("precompute frames: %w", err)
	}

	c.buffers = buffers
	c.totalFrames = total
	c.frameRate = fps
	c.revision = set.Revision()
	c.valid = true

	elapsed := timer.ObserveTo(metrics.PrecomputeDuration)
	metrics.PrecomputedFrames.Add(float64(total * len(keys)))
	c.logger.Debug("frame cache recomputed",
		logging.Int(logging.FieldTrackCount, len(keys)),
		logging.Int("total_frames", total),
		logging.Int("frame_rate", fps),
		logging.Duration("elapsed", elapsed))
	return true, nil
}

func (c *Cache) checkMemory(totalFrames, tracks int) error {
	if c.probe == nil {
		return nil
	}
	need, ok := bufferBytes(totalFrames, tracks)
	if !ok {
		return fmt.Errorf("%w: %d frames across %d tracks overflows", ErrInsufficientMemory, totalFrames, tracks)
	}
	available, err := c.probe.Available()
	if err != nil {
		logging.WarnWithContext(c.logger, "memory probe failed", "framecache_probe_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "frame cache recompute proceeds without memory guard"))
		return nil
	}
	limit := uint64(float64(available) * c.maxFraction)
	if need > limit {
		return fmt.Errorf("%w: need %s, limit %s", ErrInsufficientMemory, humanize.IBytes(need), humanize.IBytes(limit))
	}
	return nil
}

// bufferBytes returns the bytes needed for tracks buffers of totalFrames
// frames, or false when the product does not fit in a uint64.
func bufferBytes(totalFrames, tracks int) (uint64, bool) {
	if totalFrames <= 0 || tracks <= 0 {
		return 0, true
	}
	perTrack := uint64(totalFrames)
	if perTrack > math.MaxUint64/bytesPerFrame {
		return 0, false
	}
	perTrack *= bytesPerFrame
	if perTrack > math.MaxUint64/uint64(tracks) {
		return 0, false
	}
	return perTrack * uint64(tracks), true
}

// reuse returns the previous buffer for key when it has the exact size,
// avoiding reallocation when only values changed.
func (c *Cache) reuse(key trackset.Key, size int) []float64 {
	if old, ok := c.buffers[key]; ok && len(old) == size {
		return old
	}
	return make([]float64, size)
}

func fill(ctx context.Context, buf []float64, tr *keyframe.Track, total, fps int) error {
	if tr == nil || tr.Len() == 0 {
		clear(buf)
		return nil
	}
	rate := float64(fps)
	for frame := 0; frame < total; frame++ {
		if frame%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		v, _ := tr.Sample(float64(frame) / rate)
		off := frame * 3
		buf[off], buf[off+1], buf[off+2] = v[0], v[1], v[2]
	}
	return nil
}
