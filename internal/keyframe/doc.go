// Package keyframe implements the per-property keyframe track: an ordered,
// capacity-bounded buffer of timestamped 3-component values together with the
// sampling rules used during playback.
//
// # Key Types
//
// Keyframe: id, time (seconds), Vec3 value, Interpolation kind, and optional
// Bézier Handles.
//
// Track: keyframes kept strictly increasing by time. Two keyframes may not sit
// within the track epsilon (0.001s by default) of each other; such inserts are
// rejected with ErrDuplicateTime rather than merged. A full track rejects
// inserts with ErrCapacityExceeded.
//
// # Sampling
//
// Track.Sample clamps to the first/last value outside the keyed range. Inside,
// the interpolation of the earlier keyframe of the bracketing pair decides the
// curve: Linear lerps per axis, Step holds the earlier value, Bezier evaluates a
// cubic through prev.Handles.Out and next.Handles.In and degrades to Linear
// when either handle is missing.
//
// # Ownership
//
// Tracks are single-writer. A track created with WithObserver reports every
// mutation so the owning trackset can maintain its max time and revision.
package keyframe
