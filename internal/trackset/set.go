package trackset

import (
	"fmt"
	"sort"
	"strings"

	"animstore/internal/ids"
	"animstore/internal/keyframe"
)

// DefaultFrameRate is used when a set is created without an explicit rate.
const DefaultFrameRate = 30

// Key addresses one track.
type Key struct {
	ObjectID string
	Property string
}

func (k Key) String() string {
	return k.ObjectID + "." + k.Property
}

// Option configures a Set.
type Option func(*Set)

// WithFrameRate sets the playback frame rate.
func WithFrameRate(fps int) Option {
	return func(s *Set) {
		if fps > 0 {
			s.frameRate = fps
		}
	}
}

// WithIDGenerator sets the id generator shared by every track in the set.
func WithIDGenerator(gen ids.Generator) Option {
	return func(s *Set) {
		if gen != nil {
			s.ids = gen
		}
	}
}

// WithTrackOptions forwards options to every track the set creates.
func WithTrackOptions(opts ...keyframe.Option) Option {
	return func(s *Set) {
		s.trackOpts = append(s.trackOpts, opts...)
	}
}

// Set maps (object, property) pairs to keyframe tracks and tracks the
// timeline extent. Not safe for concurrent mutation.
type Set struct {
	tracks    map[string]map[string]*keyframe.Track
	maxTime   float64
	frameRate int
	revision  uint64
	ids       ids.Generator
	trackOpts []keyframe.Option
}

// New returns an empty set.
func New(opts ...Option) *Set {
	s := &Set{
		tracks:    make(map[string]map[string]*keyframe.Track),
		frameRate: DefaultFrameRate,
		ids:       ids.UUID{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxTime returns the largest keyframe time ever recorded since the last Reset.
func (s *Set) MaxTime() float64 { return s.maxTime }

// FrameRate returns frames per second.
func (s *Set) FrameRate() int { return s.frameRate }

// SetFrameRate changes the frame rate and invalidates precomputed frames.
func (s *Set) SetFrameRate(fps int) error {
	if fps <= 0 {
		return fmt.Errorf("frame rate must be positive, got %d", fps)
	}
	if fps != s.frameRate {
		s.frameRate = fps
		s.revision++
	}
	return nil
}

// Revision increases on every mutation. Derived caches compare it to decide
// whether they are stale.
func (s *Set) Revision() uint64 { return s.revision }

// RecordTime raises MaxTime to t if larger and marks the set dirty.
func (s *Set) RecordTime(t float64) {
	if t > s.maxTime {
		s.maxTime = t
	}
	s.revision++
}

// Reset clears every track and sets MaxTime back to zero.
func (s *Set) Reset() {
	s.tracks = make(map[string]map[string]*keyframe.Track)
	s.maxTime = 0
	s.revision++
}

// Track returns the track for (objectID, property) if it exists.
func (s *Set) Track(objectID, property string) (*keyframe.Track, bool) {
	props, ok := s.tracks[objectID]
	if !ok {
		return nil, false
	}
	tr, ok := props[property]
	return tr, ok
}

// GetOrCreateTrack returns the track for (objectID, property), creating it
// on first use. Mutations made through the returned track update MaxTime and
// the revision.
func (s *Set) GetOrCreateTrack(objectID, property string) *keyframe.Track {
	if tr, ok := s.Track(objectID, property); ok {
		return tr
	}
	props, ok := s.tracks[objectID]
	if !ok {
		props = make(map[string]*keyframe.Track)
		s.tracks[objectID] = props
	}
	opts := make([]keyframe.Option, 0, len(s.trackOpts)+2)
	opts = append(opts, keyframe.WithIDGenerator(setIDs{s}))
	opts = append(opts, s.trackOpts...)
	opts = append(opts, keyframe.WithObserver(s.RecordTime))
	tr := keyframe.NewTrack(opts...)
	props[property] = tr
	s.revision++
	return tr
}

// maxIDAttempts bounds the redraws setIDs makes before handing back a
// candidate that the track will reject.
const maxIDAttempts = 64

// setIDs draws ids from the set's generator, skipping any already held by a
// track in the set. Imported documents keep their stored ids while a fresh
// counter restarts from one, so collisions are expected.
type setIDs struct {
	s *Set
}

func (g setIDs) Next() string {
	var id string
	for range maxIDAttempts {
		id = g.s.ids.Next()
		if !g.s.HasKeyframe(id) {
			return id
		}
	}
	return id
}

// HasKeyframe reports whether any track in the set holds a keyframe with id.
func (s *Set) HasKeyframe(id string) bool {
	for _, props := range s.tracks {
		for _, tr := range props {
			if tr.Has(id) {
				return true
			}
		}
	}
	return false
}

// RemoveTrack deletes a track. The object entry goes with its last property.
func (s *Set) RemoveTrack(objectID, property string) bool {
	props, ok := s.tracks[objectID]
	if !ok {
		return false
	}
	if _, ok := props[property]; !ok {
		return false
	}
	delete(props, property)
	if len(props) == 0 {
		delete(s.tracks, objectID)
	}
	s.revision++
	return true
}

// AddKeyframe inserts a keyframe into (objectID, property), creating the
// track when needed.
func (s *Set) AddKeyframe(objectID, property string, time float64, value []float64, interp keyframe.Interpolation) (string, error) {
	if strings.TrimSpace(objectID) == "" || strings.TrimSpace(property) == "" {
		return "", fmt.Errorf("%w: object id and property are required", keyframe.ErrInvalidValue)
	}
	_, existed := s.Track(objectID, property)
	tr := s.GetOrCreateTrack(objectID, property)
	id, err := tr.Add(time, value, interp)
	if err != nil && !existed && tr.Len() == 0 {
		s.RemoveTrack(objectID, property)
	}
	return id, err
}

// Objects returns object ids in sorted order.
func (s *Set) Objects() []string {
	out := make([]string, 0, len(s.tracks))
	for id := range s.tracks {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Keys returns every track key sorted by object then property.
func (s *Set) Keys() []Key {
	var keys []Key
	for obj, props := range s.tracks {
		for prop := range props {
			keys = append(keys, Key{ObjectID: obj, Property: prop})
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ObjectID != keys[j].ObjectID {
			return keys[i].ObjectID < keys[j].ObjectID
		}
		return keys[i].Property < keys[j].Property
	})
	return keys
}

// Len returns the number of tracks.
func (s *Set) Len() int {
	n := 0
	for _, props := range s.tracks {
		n += len(props)
	}
	return n
}

// KeyframeCount returns the number of keyframes across all tracks.
func (s *Set) KeyframeCount() int {
	n := 0
	for _, props := range s.tracks {
		for _, tr := range props {
			n += tr.Len()
		}
	}
	return n
}
