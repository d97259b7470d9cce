package keyframe

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"animstore/internal/ids"
)

const (
	// DefaultCapacity bounds the number of keyframes in one track.
	DefaultCapacity = 3600
	// DefaultEpsilon is the minimum spacing between keyframe times, in seconds.
	DefaultEpsilon = 0.001

	// timeSlack absorbs float noise when comparing spacings against the
	// epsilon, so times that differ by exactly one epsilon after decimal
	// rounding are not rejected.
	timeSlack = 1e-9

	// maxIDAttempts bounds how many generated ids are tried before giving up
	// on a generator that keeps returning ids already in the track.
	maxIDAttempts = 64
)

// Option configures a Track.
type Option func(*Track)

// WithCapacity overrides the keyframe capacity. Non-positive values are ignored.
func WithCapacity(n int) Option {
	return func(t *Track) {
		if n > 0 {
			t.capacity = n
		}
	}
}

// WithEpsilon overrides the duplicate-time epsilon. Non-positive values are ignored.
func WithEpsilon(eps float64) Option {
	return func(t *Track) {
		if eps > 0 {
			t.epsilon = eps
		}
	}
}

// WithIDGenerator sets the generator used for new keyframe ids.
func WithIDGenerator(gen ids.Generator) Option {
	return func(t *Track) {
		if gen != nil {
			t.ids = gen
		}
	}
}

// WithObserver registers fn to be called after every successful mutation with
// the time the mutation touched.
func WithObserver(fn func(time float64)) Option {
	return func(t *Track) {
		t.observer = fn
	}
}

// Track is an ordered, bounded sequence of keyframes for one property.
type Track struct {
	keys     []Keyframe
	byID     map[string]struct{}
	capacity int
	epsilon  float64
	ids      ids.Generator
	observer func(float64)
}

// NewTrack returns an empty track.
func NewTrack(opts ...Option) *Track {
	t := &Track{
		byID:     make(map[string]struct{}),
		capacity: DefaultCapacity,
		epsilon:  DefaultEpsilon,
		ids:      ids.UUID{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Len returns the number of keyframes.
func (t *Track) Len() int { return len(t.keys) }

// Capacity returns the maximum number of keyframes.
func (t *Track) Capacity() int { return t.capacity }

// Epsilon returns the duplicate-time epsilon.
func (t *Track) Epsilon() float64 { return t.epsilon }

// At returns the i-th keyframe in time order.
func (t *Track) At(i int) Keyframe { return t.keys[i].clone() }

// Keyframes returns a copy of all keyframes in time order.
func (t *Track) Keyframes() []Keyframe {
	out := make([]Keyframe, len(t.keys))
	for i, k := range t.keys {
		out[i] = k.clone()
	}
	return out
}

// Find returns the keyframe with the given id.
func (t *Track) Find(id string) (Keyframe, bool) {
	idx := t.indexOf(id)
	if idx < 0 {
		return Keyframe{}, false
	}
	return t.keys[idx].clone(), true
}

// Span returns the first and last keyframe times. ok is false for an empty track.
func (t *Track) Span() (start, end float64, ok bool) {
	if len(t.keys) == 0 {
		return 0, 0, false
	}
	return t.keys[0].Time, t.keys[len(t.keys)-1].Time, true
}

// Add inserts a keyframe and returns its newly minted id.
func (t *Track) Add(time float64, value []float64, interp Interpolation) (string, error) {
	return t.AddWithID("", time, value, interp)
}

// AddWithID inserts a keyframe under an explicit id. An empty id gets a
// generated one.
func (t *Track) AddWithID(id string, time float64, value []float64, interp Interpolation) (string, error) {
	v, err := VecFrom(value)
	if err != nil {
		return "", err
	}
	if err := checkTime(time); err != nil {
		return "", err
	}
	if !interp.Valid() {
		return "", fmt.Errorf("%w: unknown interpolation %d", ErrInvalidValue, int(interp))
	}
	if len(t.keys) >= t.capacity {
		return "", fmt.Errorf("%w: %d keyframes", ErrCapacityExceeded, t.capacity)
	}
	pos := t.search(time)
	if t.conflicts(time, pos, -1) {
		return "", fmt.Errorf("%w: %.6fs", ErrDuplicateTime, time)
	}
	if id == "" {
		id, err = t.nextID()
		if err != nil {
			return "", err
		}
	} else if t.Has(id) {
		return "", fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	t.keys = slices.Insert(t.keys, pos, Keyframe{
		ID:            id,
		Time:          time,
		Value:         v,
		Interpolation: interp,
	})
	t.byID[id] = struct{}{}
	t.notify(time)
	return id, nil
}

// Remove deletes the keyframe with the given id and reports whether it existed.
func (t *Track) Remove(id string) bool {
	idx := t.indexOf(id)
	if idx < 0 {
		return false
	}
	removed := t.keys[idx].Time
	t.keys = slices.Delete(t.keys, idx, idx+1)
	delete(t.byID, id)
	t.notify(removed)
	return true
}

// UpdateTime moves a keyframe to a new time, keeping its id.
func (t *Track) UpdateTime(id string, time float64) error {
	idx := t.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := checkTime(time); err != nil {
		return err
	}
	if t.conflicts(time, t.search(time), idx) {
		return fmt.Errorf("%w: %.6fs", ErrDuplicateTime, time)
	}

	kf := t.keys[idx]
	t.keys = slices.Delete(t.keys, idx, idx+1)
	kf.Time = time
	t.keys = slices.Insert(t.keys, t.search(time), kf)
	t.notify(time)
	return nil
}

// UpdateValue replaces a keyframe's value, keeping its id and time.
func (t *Track) UpdateValue(id string, value []float64) error {
	idx := t.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	v, err := VecFrom(value)
	if err != nil {
		return err
	}
	t.keys[idx].Value = v
	t.notify(t.keys[idx].Time)
	return nil
}

// SetInterpolation changes how the segment after the keyframe is evaluated.
func (t *Track) SetInterpolation(id string, interp Interpolation) error {
	idx := t.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !interp.Valid() {
		return fmt.Errorf("%w: unknown interpolation %d", ErrInvalidValue, int(interp))
	}
	t.keys[idx].Interpolation = interp
	t.notify(t.keys[idx].Time)
	return nil
}

// SetHandles attaches Bézier control points to a keyframe. A nil h clears them.
func (t *Track) SetHandles(id string, h *Handles) error {
	idx := t.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if h != nil {
		for _, v := range []Vec3{h.In, h.Out} {
			if _, err := VecFrom(v.Slice()); err != nil {
				return err
			}
		}
		cp := *h
		h = &cp
	}
	t.keys[idx].Handles = h
	t.notify(t.keys[idx].Time)
	return nil
}

// Sample evaluates the track at time. ok is false for an empty track.
func (t *Track) Sample(time float64) (Vec3, bool) {
	n := len(t.keys)
	if n == 0 {
		return Vec3{}, false
	}
	if n == 1 || time <= t.keys[0].Time {
		return t.keys[0].Value, true
	}
	if time >= t.keys[n-1].Time {
		return t.keys[n-1].Value, true
	}

	next := sort.Search(n, func(i int) bool { return t.keys[i].Time > time })
	prev := t.keys[next-1]
	span := t.keys[next].Time - prev.Time
	u := (time - prev.Time) / span
	return segment(prev, t.keys[next], u), true
}

// search returns the index of the first keyframe at or after time.
func (t *Track) search(time float64) int {
	return sort.Search(len(t.keys), func(i int) bool { return t.keys[i].Time >= time })
}

// conflicts reports whether time lies within epsilon of a keyframe near pos,
// ignoring the keyframe at skip.
func (t *Track) conflicts(time float64, pos, skip int) bool {
	limit := t.epsilon - timeSlack
	for i := pos - 2; i <= pos+1; i++ {
		if i < 0 || i >= len(t.keys) || i == skip {
			continue
		}
		if math.Abs(t.keys[i].Time-time) < limit {
			return true
		}
	}
	return false
}

// Has reports whether a keyframe with the given id exists.
func (t *Track) Has(id string) bool {
	_, ok := t.byID[id]
	return ok
}

// nextID draws from the generator until it yields an id not already held.
func (t *Track) nextID() (string, error) {
	for range maxIDAttempts {
		if id := t.ids.Next(); id != "" && !t.Has(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: generator produced no unused id in %d attempts", ErrDuplicateID, maxIDAttempts)
}

func (t *Track) indexOf(id string) int {
	if _, ok := t.byID[id]; !ok {
		return -1
	}
	return slices.IndexFunc(t.keys, func(k Keyframe) bool { return k.ID == id })
}

func (t *Track) notify(time float64) {
	if t.observer != nil {
		t.observer(time)
	}
}

func checkTime(time float64) error {
	if math.IsNaN(time) || math.IsInf(time, 0) || time < 0 {
		return fmt.Errorf("%w: time %v must be a non-negative number", ErrInvalidValue, time)
	}
	return nil
}
