package keyframe

import (
	"fmt"
	"math"
)

// Vec3 is a 3-component value (position, rotation, scale, color...).
type Vec3 [3]float64

// VecFrom converts a loosely-typed slice into a Vec3. The slice must hold
// exactly three finite numbers.
func VecFrom(values []float64) (Vec3, error) {
	if len(values) != 3 {
		return Vec3{}, fmt.Errorf("%w: value has %d components, want 3", ErrInvalidValue, len(values))
	}
	var v Vec3
	for i, c := range values {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return Vec3{}, fmt.Errorf("%w: component %d is not finite", ErrInvalidValue, i)
		}
		v[i] = c
	}
	return v, nil
}

// Slice returns the components as a new slice.
func (v Vec3) Slice() []float64 {
	return []float64{v[0], v[1], v[2]}
}

func lerp(a, b Vec3, t float64) Vec3 {
	var out Vec3
	for i := range out {
		out[i] = a[i] + (b[i]-a[i])*t
	}
	return out
}

func cubicBezier(p0, p1, p2, p3 Vec3, t float64) Vec3 {
	mt := 1 - t
	b0 := mt * mt * mt
	b1 := 3 * mt * mt * t
	b2 := 3 * mt * t * t
	b3 := t * t * t
	var out Vec3
	for i := range out {
		out[i] = b0*p0[i] + b1*p1[i] + b2*p2[i] + b3*p3[i]
	}
	return out
}

// Interpolation selects how a segment is evaluated between a keyframe and
// its successor. The numeric values are part of the persisted format.
type Interpolation int

const (
	Linear Interpolation = iota
	Step
	Bezier
)

// Valid reports whether i is a known interpolation kind.
func (i Interpolation) Valid() bool {
	return i >= Linear && i <= Bezier
}

func (i Interpolation) String() string {
	switch i {
	case Linear:
		return "linear"
	case Step:
		return "step"
	case Bezier:
		return "bezier"
	default:
		return fmt.Sprintf("interpolation(%d)", int(i))
	}
}

// Handles are the explicit Bézier control points of a keyframe. In shapes the
// segment arriving at the keyframe, Out the segment leaving it.
type Handles struct {
	In  Vec3 `json:"in"`
	Out Vec3 `json:"out"`
}

// Keyframe is a timestamped value.
type Keyframe struct {
	ID            string
	Time          float64
	Value         Vec3
	Interpolation Interpolation
	Handles       *Handles
}

func (k Keyframe) clone() Keyframe {
	if k.Handles != nil {
		h := *k.Handles
		k.Handles = &h
	}
	return k
}

// segment evaluates the curve between prev and next at normalized t in [0,1].
func segment(prev, next Keyframe, t float64) Vec3 {
	switch prev.Interpolation {
	case Step:
		return prev.Value
	case Bezier:
		if prev.Handles == nil || next.Handles == nil {
			return lerp(prev.Value, next.Value, t)
		}
		return cubicBezier(prev.Value, prev.Handles.Out, next.Handles.In, next.Value, t)
	default:
		return lerp(prev.Value, next.Value, t)
	}
}
