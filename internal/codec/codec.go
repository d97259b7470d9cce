package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"animstore/internal/trackset"
)

const (
	DefaultTimeDecimals  = 3
	DefaultValueDecimals = 2

	handleFields = 7
)

// Compressed is the compact project envelope.
type Compressed struct {
	MaxTime   float64                               `json:"t" yaml:"t"`
	FrameRate int                                   `json:"f" yaml:"f"`
	Tracks    map[string]map[string]CompressedTrack `json:"k" yaml:"k"`
}

// CompressedTrack is one track with every numeric array comma-joined.
// Handles holds 7-tuples of index, in xyz, out xyz.
type CompressedTrack struct {
	Times          string   `json:"t" yaml:"t"`
	Values         string   `json:"v" yaml:"v"`
	Interpolations string   `json:"i" yaml:"i"`
	IDs            []string `json:"n,omitempty" yaml:"n,omitempty"`
	Handles        string   `json:"h,omitempty" yaml:"h,omitempty"`
}

// DecodeError reports a compressed field of one track that could not be parsed.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode field %q: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var errMissingField = errors.New("field missing")

// Option configures a Codec.
type Option func(*Codec)

// WithPrecision sets the decimals kept for times and values. Negative values
// are ignored.
func WithPrecision(timeDecimals, valueDecimals int) Option {
	return func(c *Codec) {
		if timeDecimals >= 0 {
			c.timeDecimals = timeDecimals
		}
		if valueDecimals >= 0 {
			c.valueDecimals = valueDecimals
		}
	}
}

// Codec compresses documents at a fixed precision.
type Codec struct {
	timeDecimals  int
	valueDecimals int
}

// New returns a codec with three time decimals and two value decimals unless
// overridden.
func New(opts ...Option) *Codec {
	c := &Codec{timeDecimals: DefaultTimeDecimals, valueDecimals: DefaultValueDecimals}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compress encodes doc. Tracks with no keyframes are omitted, and objects
// left with no tracks are omitted too.
func (c *Codec) Compress(doc trackset.Document) Compressed {
	out := Compressed{
		MaxTime:   doc.MaxTime,
		FrameRate: doc.FrameRate,
		Tracks:    make(map[string]map[string]CompressedTrack, len(doc.Tracks)),
	}
	for obj, props := range doc.Tracks {
		for prop, td := range props {
			if td.Len() == 0 {
				continue
			}
			if out.Tracks[obj] == nil {
				out.Tracks[obj] = make(map[string]CompressedTrack, len(props))
			}
			out.Tracks[obj][prop] = c.compressTrack(td)
		}
	}
	return out
}

func (c *Codec) compressTrack(td trackset.TrackDocument) CompressedTrack {
	ct := CompressedTrack{
		Times:          joinFloats(td.Times, c.timeDecimals),
		Values:         joinFloats(td.Values, c.valueDecimals),
		Interpolations: joinInts(td.Interpolations),
	}
	if len(td.IDs) == td.Len() {
		ct.IDs = append([]string(nil), td.IDs...)
	}
	if len(td.Handles) > 0 {
		parts := make([]string, 0, len(td.Handles))
		for _, h := range td.Handles {
			if len(h.In) != 3 || len(h.Out) != 3 {
				continue
			}
			parts = append(parts, strconv.Itoa(h.Index),
				joinFloats(h.In, c.valueDecimals), joinFloats(h.Out, c.valueDecimals))
		}
		ct.Handles = strings.Join(parts, ",")
	}
	return ct
}

// Decompress parses every track back into document form. Tracks whose fields
// fail to parse are skipped and reported; the rest are returned.
func Decompress(c Compressed) (trackset.Document, []trackset.TrackError) {
	doc := trackset.Document{
		MaxTime:   c.MaxTime,
		FrameRate: c.FrameRate,
		Tracks:    make(map[string]map[string]trackset.TrackDocument, len(c.Tracks)),
	}
	var problems []trackset.TrackError
	for _, obj := range sortedKeys(c.Tracks) {
		props := c.Tracks[obj]
		for _, prop := range sortedKeys(props) {
			td, err := decompressTrack(props[prop])
			if err != nil {
				problems = append(problems, trackset.TrackError{
					Key:   trackset.Key{ObjectID: obj, Property: prop},
					Index: -1,
					Err:   err,
				})
				continue
			}
			if doc.Tracks[obj] == nil {
				doc.Tracks[obj] = make(map[string]trackset.TrackDocument, len(props))
			}
			doc.Tracks[obj][prop] = td
		}
	}
	return doc, problems
}

func decompressTrack(ct CompressedTrack) (trackset.TrackDocument, error) {
	if strings.TrimSpace(ct.Times) == "" {
		return trackset.TrackDocument{}, &DecodeError{Field: "t", Err: errMissingField}
	}
	times, err := splitFloats(ct.Times)
	if err != nil {
		return trackset.TrackDocument{}, &DecodeError{Field: "t", Err: err}
	}
	n := len(times)

	values, err := splitFloats(ct.Values)
	if err != nil {
		return trackset.TrackDocument{}, &DecodeError{Field: "v", Err: err}
	}
	if len(values) != n*3 {
		return trackset.TrackDocument{}, &DecodeError{Field: "v", Err: fmt.Errorf("%d values for %d keyframes", len(values), n)}
	}

	interps, err := splitInts(ct.Interpolations)
	if err != nil {
		return trackset.TrackDocument{}, &DecodeError{Field: "i", Err: err}
	}
	if len(interps) != n {
		return trackset.TrackDocument{}, &DecodeError{Field: "i", Err: fmt.Errorf("%d interpolations for %d keyframes", len(interps), n)}
	}

	td := trackset.TrackDocument{Times: times, Values: values, Interpolations: interps}
	if len(ct.IDs) == n {
		td.IDs = append([]string(nil), ct.IDs...)
	}
	if ct.Handles != "" {
		raw, err := splitFloats(ct.Handles)
		if err != nil || len(raw)%handleFields != 0 {
			if err == nil {
				err = fmt.Errorf("%d handle fields is not a multiple of %d", len(raw), handleFields)
			}
			return trackset.TrackDocument{}, &DecodeError{Field: "h", Err: err}
		}
		for off := 0; off < len(raw); off += handleFields {
			td.Handles = append(td.Handles, trackset.HandleDocument{
				Index: int(raw[off]),
				In:    raw[off+1 : off+4 : off+4],
				Out:   raw[off+4 : off+7 : off+7],
			})
		}
	}
	return td, nil
}

// Restore decompresses c and rebuilds a live set from it. Per-track problems
// from both steps are returned together.
func Restore(c Compressed, opts ...trackset.Option) (*trackset.Set, []trackset.TrackError, error) {
	doc, problems := Decompress(c)
	set, importProblems, err := trackset.FromDocument(doc, opts...)
	if err != nil {
		return nil, problems, err
	}
	return set, append(problems, importProblems...), nil
}

// IsCompressed reports whether m has the compact envelope shape: a "k" track
// map alongside the short "t" and "f" keys, with no long-form "tracks".
func IsCompressed(m map[string]any) bool {
	if _, long := m["tracks"]; long {
		return false
	}
	if _, ok := m["k"].(map[string]any); !ok {
		return false
	}
	_, hasT := m["t"]
	_, hasF := m["f"]
	return hasT && hasF
}

// FromMap converts a generic JSON object into a Compressed envelope.
func FromMap(m map[string]any) (Compressed, error) {
	var c Compressed
	if err := remarshal(m, &c); err != nil {
		return Compressed{}, fmt.Errorf("decode compressed document: %w", err)
	}
	return c, nil
}

// ToMap converts v, a Compressed or trackset.Document, into a generic JSON
// object.
func ToMap(v any) (map[string]any, error) {
	var m map[string]any
	if err := remarshal(v, &m); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return m, nil
}

// DocumentFromMap converts a generic JSON object in long form into a document.
func DocumentFromMap(m map[string]any) (trackset.Document, error) {
	var doc trackset.Document
	if err := remarshal(m, &doc); err != nil {
		return trackset.Document{}, fmt.Errorf("decode track document: %w", err)
	}
	return doc, nil
}

func remarshal(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func round(v float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	r := math.Round(v*scale) / scale
	if r == 0 {
		return 0
	}
	return r
}

func joinFloats(values []float64, decimals int) string {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(round(v, decimals), 'f', -1, 64))
	}
	return b.String()
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func splitFloats(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("element %d: non-finite value %q", i, p)
		}
		out[i] = v
	}
	return out, nil
}

func splitInts(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
