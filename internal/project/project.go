// Package project models the composite editor document persisted by animstore.
//
// A project is an arbitrary JSON object. A few well-known keys carry meaning:
// "timeline", "music", and "history" hold sub-documents that may be split into
// side files, "scene" holds a "children" array of scene objects, and
// timeline "animation" holds the keyframe track document in either long or
// compressed form. Everything else is carried through untouched.
//
// Numbers are decoded as json.Number so that a load and save round trip
// preserves their textual form exactly.
package project

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"animstore/internal/codec"
	"animstore/internal/trackset"
)

const (
	KeyTimeline  = "timeline"
	KeyMusic     = "music"
	KeyHistory   = "history"
	KeyScene     = "scene"
	KeyChildren  = "children"
	KeyAnimation = "animation"
)

// ErrNoAnimation reports a project without a timeline animation entry.
var ErrNoAnimation = errors.New("project has no animation")

// Document is a decoded project.
type Document map[string]any

// Decode reads a single JSON object.
func Decode(r io.Reader) (Document, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode project: %w", err)
	}
	if doc == nil {
		return nil, errors.New("decode project: document is null")
	}
	return doc, nil
}

// Parse decodes data as a project document.
func Parse(data []byte) (Document, error) {
	return Decode(bytes.NewReader(data))
}

// DecodeValue decodes any JSON value with the same number handling as Decode.
func DecodeValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Marshal encodes v as JSON.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Clone returns a deep copy of the document's maps and slices.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return cloneValue(map[string]any(d)).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case Document:
		return Document(cloneValue(map[string]any(t)).(map[string]any))
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

// Object returns the JSON object stored under key.
func (d Document) Object(key string) (map[string]any, bool) {
	m, ok := d[key].(map[string]any)
	return m, ok
}

// SceneChildren returns the scene children array.
func (d Document) SceneChildren() ([]any, bool) {
	scene, ok := d.Object(KeyScene)
	if !ok {
		return nil, false
	}
	children, ok := scene[KeyChildren].([]any)
	return children, ok
}

// SetAnimation stores the track set under timeline.animation, compressed
// when c is non-nil.
func (d Document) SetAnimation(set *trackset.Set, c *codec.Codec) error {
	doc := set.ToDocument()
	var (
		m   map[string]any
		err error
	)
	if c != nil {
		m, err = codec.ToMap(c.Compress(doc))
	} else {
		m, err = codec.ToMap(doc)
	}
	if err != nil {
		return err
	}
	timeline, ok := d.Object(KeyTimeline)
	if !ok {
		timeline = make(map[string]any)
		d[KeyTimeline] = timeline
	}
	timeline[KeyAnimation] = m
	return nil
}

// Animation rebuilds the track set stored under timeline.animation,
// decompressing it when needed. Track-level problems are returned alongside
// the set.
func (d Document) Animation(opts ...trackset.Option) (*trackset.Set, []trackset.TrackError, error) {
	timeline, ok := d.Object(KeyTimeline)
	if !ok {
		return nil, nil, ErrNoAnimation
	}
	raw, ok := timeline[KeyAnimation].(map[string]any)
	if !ok {
		return nil, nil, ErrNoAnimation
	}
	if codec.IsCompressed(raw) {
		c, err := codec.FromMap(raw)
		if err != nil {
			return nil, nil, err
		}
		return codec.Restore(c, opts...)
	}
	doc, err := codec.DocumentFromMap(raw)
	if err != nil {
		return nil, nil, err
	}
	return trackset.FromDocument(doc, opts...)
}
