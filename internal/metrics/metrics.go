// Package metrics provides Prometheus instruments for the track store.
//
// Instruments live on a private registry so embedding applications can
// decide how to expose them; the CLI writes them to a node-exporter style
// textfile via WriteTextfile.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every instrument defined by this package.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// PrecomputeDuration observes full frame-cache recompute passes.
	PrecomputeDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "animstore_precompute_duration_seconds",
			Help:    "Time spent recomputing the dense frame cache",
			Buckets: prometheus.DefBuckets,
		},
	)

	// PrecomputedFrames counts frames sampled across all tracks.
	PrecomputedFrames = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "animstore_precomputed_frames_total",
			Help: "Total number of track frames sampled into the cache",
		},
	)

	// ArchiveOperations counts pack/unpack attempts by outcome.
	ArchiveOperations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "animstore_archive_operations_total",
			Help: "Archive pack and unpack operations",
		},
		[]string{"operation", "status"},
	)

	// ArchiveBytes observes archive sizes.
	ArchiveBytes = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "animstore_archive_bytes",
			Help:    "Size of archives written or read",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
		[]string{"operation"},
	)

	// SideFiles counts side files extracted by the splitter, by kind.
	SideFiles = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "animstore_side_files_total",
			Help: "Side files produced by project splitting",
		},
		[]string{"kind"},
	)

	// TrackProblems counts per-track decode or import failures.
	TrackProblems = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "animstore_track_problems_total",
			Help: "Tracks or keyframes skipped during load",
		},
	)
)

// RecordArchive records the outcome of a pack or unpack.
func RecordArchive(operation string, err error, bytes int64) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ArchiveOperations.WithLabelValues(operation, status).Inc()
	if err == nil && bytes > 0 {
		ArchiveBytes.WithLabelValues(operation).Observe(float64(bytes))
	}
}

// Timer measures elapsed time for histogram observations.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveTo records the elapsed time on h and returns it.
func (t *Timer) ObserveTo(h prometheus.Observer) time.Duration {
	d := time.Since(t.start)
	h.Observe(d.Seconds())
	return d
}

// WriteTextfile writes the current metric values to path in the Prometheus
// text exposition format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
