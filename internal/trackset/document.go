package trackset

import (
	"fmt"
	"sort"

	"animstore/internal/keyframe"
)

// Document is the persisted form of a Set. It is produced on save and
// consumed on load; it is never the live representation.
type Document struct {
	MaxTime   float64                             `json:"maxTime" yaml:"maxTime"`
	FrameRate int                                 `json:"frameRate" yaml:"frameRate"`
	Tracks    map[string]map[string]TrackDocument `json:"tracks" yaml:"tracks"`
}

// TrackDocument holds one track as parallel arrays. Values is flattened 3×N.
type TrackDocument struct {
	Times          []float64        `json:"times" yaml:"times"`
	Values         []float64        `json:"values" yaml:"values"`
	Interpolations []int            `json:"interpolations" yaml:"interpolations"`
	IDs            []string         `json:"ids,omitempty" yaml:"ids,omitempty"`
	Handles        []HandleDocument `json:"handles,omitempty" yaml:"handles,omitempty"`
}

// HandleDocument carries the Bézier handles of the keyframe at Index.
type HandleDocument struct {
	Index int       `json:"index" yaml:"index"`
	In    []float64 `json:"in" yaml:"in"`
	Out   []float64 `json:"out" yaml:"out"`
}

// Len returns the number of keyframes described.
func (d TrackDocument) Len() int { return len(d.Times) }

// TrackError reports a problem confined to one track, or to one keyframe of
// it when Index is non-negative. Sibling tracks are unaffected.
type TrackError struct {
	Key   Key
	Index int
	Err   error
}

func (e TrackError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("track %s keyframe %d: %v", e.Key, e.Index, e.Err)
	}
	return fmt.Sprintf("track %s: %v", e.Key, e.Err)
}

func (e TrackError) Unwrap() error { return e.Err }

// ToDocument exports every track, including ids and handles.
func (s *Set) ToDocument() Document {
	doc := Document{
		MaxTime:   s.maxTime,
		FrameRate: s.frameRate,
		Tracks:    make(map[string]map[string]TrackDocument, len(s.tracks)),
	}
	for obj, props := range s.tracks {
		out := make(map[string]TrackDocument, len(props))
		for prop, tr := range props {
			out[prop] = exportTrack(tr)
		}
		doc.Tracks[obj] = out
	}
	return doc
}

func exportTrack(tr *keyframe.Track) TrackDocument {
	keys := tr.Keyframes()
	td := TrackDocument{
		Times:          make([]float64, 0, len(keys)),
		Values:         make([]float64, 0, len(keys)*3),
		Interpolations: make([]int, 0, len(keys)),
		IDs:            make([]string, 0, len(keys)),
	}
	for i, k := range keys {
		td.Times = append(td.Times, k.Time)
		td.Values = append(td.Values, k.Value[:]...)
		td.Interpolations = append(td.Interpolations, int(k.Interpolation))
		td.IDs = append(td.IDs, k.ID)
		if k.Handles != nil {
			td.Handles = append(td.Handles, HandleDocument{
				Index: i,
				In:    k.Handles.In.Slice(),
				Out:   k.Handles.Out.Slice(),
			})
		}
	}
	return td
}

// FromDocument rebuilds a Set. Ids are kept when the document carries one per
// keyframe and regenerated otherwise. Problems with individual tracks or
// keyframes are returned as TrackErrors while the rest of the document loads;
// the error result is reserved for document-level failures.
func FromDocument(doc Document, opts ...Option) (*Set, []TrackError, error) {
	if doc.FrameRate < 0 {
		return nil, nil, fmt.Errorf("frame rate must be positive, got %d", doc.FrameRate)
	}
	if doc.FrameRate > 0 {
		opts = append(opts, WithFrameRate(doc.FrameRate))
	}
	s := New(opts...)

	var problems []TrackError
	for _, obj := range sortedKeys(doc.Tracks) {
		props := doc.Tracks[obj]
		for _, prop := range sortedKeys(props) {
			key := Key{ObjectID: obj, Property: prop}
			problems = append(problems, s.importTrack(key, props[prop])...)
		}
	}
	s.RecordTime(doc.MaxTime)
	return s, problems, nil
}

func (s *Set) importTrack(key Key, td TrackDocument) []TrackError {
	n := len(td.Times)
	if len(td.Values) != n*3 {
		return []TrackError{{Key: key, Index: -1, Err: fmt.Errorf("%w: %d values for %d keyframes", keyframe.ErrInvalidValue, len(td.Values), n)}}
	}
	if len(td.Interpolations) != n {
		return []TrackError{{Key: key, Index: -1, Err: fmt.Errorf("%w: %d interpolations for %d keyframes", keyframe.ErrInvalidValue, len(td.Interpolations), n)}}
	}
	keepIDs := len(td.IDs) == n

	tr := s.GetOrCreateTrack(key.ObjectID, key.Property)
	var problems []TrackError
	assigned := make([]string, n)
	for i := 0; i < n; i++ {
		id := ""
		if keepIDs {
			id = td.IDs[i]
		}
		got, err := tr.AddWithID(id, td.Times[i], td.Values[i*3:i*3+3], keyframe.Interpolation(td.Interpolations[i]))
		if err != nil {
			problems = append(problems, TrackError{Key: key, Index: i, Err: err})
			continue
		}
		assigned[i] = got
	}

	for _, h := range td.Handles {
		if h.Index < 0 || h.Index >= n || assigned[h.Index] == "" {
			continue
		}
		in, err := keyframe.VecFrom(h.In)
		if err == nil {
			var out keyframe.Vec3
			if out, err = keyframe.VecFrom(h.Out); err == nil {
				err = tr.SetHandles(assigned[h.Index], &keyframe.Handles{In: in, Out: out})
			}
		}
		if err != nil {
			problems = append(problems, TrackError{Key: key, Index: h.Index, Err: err})
		}
	}
	return problems
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
