// Package framecache precomputes dense per-frame samples for every track of a
// trackset so playback can look values up in O(1).
//
// The cache is sized to ceil(MaxTime × FrameRate × margin) frames, margin
// defaulting to 1.1, and stores three floats per frame per track in one
// pre-sized slice. Tracks without keyframes produce zero-filled buffers.
//
// Staleness is detected by comparing the set revision recorded at the last
// pass with the set's current revision; any mutation marks the cache dirty and
// the next EnsureFresh recomputes the whole set. EnsureFresh is a blocking
// pass the caller triggers after a burst of edits. It may fan tracks out over
// a bounded worker pool, but the set must not be mutated while it runs.
package framecache
