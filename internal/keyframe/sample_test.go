package keyframe

import (
	"testing"
)

func TestSampleEmptyTrack(t *testing.T) {
	if _, ok := newTestTrack().Sample(1); ok {
		t.Fatal("empty track should not produce a sample")
	}
}

func TestSampleSingleKeyframe(t *testing.T) {
	tr := newTestTrack()
	mustAdd(t, tr, 2, []float64{1, 2, 3}, Linear)
	for _, tm := range []float64{0, 2, 10} {
		got, ok := tr.Sample(tm)
		if !ok || got != (Vec3{1, 2, 3}) {
			t.Fatalf("Sample(%v) = %v, %v", tm, got, ok)
		}
	}
}

func TestSampleLinearScenario(t *testing.T) {
	tr := newTestTrack()
	mustAdd(t, tr, 0, []float64{0, 0, 0}, Linear)
	mustAdd(t, tr, 2, []float64{10, 0, 0}, Linear)

	tests := []struct {
		time float64
		want Vec3
	}{
		{1, Vec3{5, 0, 0}},
		{3, Vec3{10, 0, 0}},
		{0, Vec3{0, 0, 0}},
		{0.5, Vec3{2.5, 0, 0}},
	}
	for _, tc := range tests {
		got, _ := tr.Sample(tc.time)
		assertVec(t, got, tc.want, 1e-12)
	}
}

func TestSampleHitsEveryKeyframeExactly(t *testing.T) {
	for _, interp := range []Interpolation{Linear, Step, Bezier} {
		tr := newTestTrack()
		values := [][]float64{{0, 1, 2}, {3.5, -1, 8}, {7, 7, 7}, {-4, 0.25, 1e3}}
		for i, v := range values {
			mustAdd(t, tr, float64(i)*0.75, v, interp)
		}
		for i, v := range values {
			got, _ := tr.Sample(float64(i) * 0.75)
			want, _ := VecFrom(v)
			assertVec(t, got, want, 1e-9)
		}
	}
}

func TestSampleClampsOutsideRange(t *testing.T) {
	tr := newTestTrack()
	mustAdd(t, tr, 1, []float64{1, 1, 1}, Linear)
	mustAdd(t, tr, 3, []float64{3, 3, 3}, Linear)

	before, _ := tr.Sample(0)
	after, _ := tr.Sample(100)
	if before != (Vec3{1, 1, 1}) || after != (Vec3{3, 3, 3}) {
		t.Fatalf("clamp failed: before=%v after=%v", before, after)
	}
}

func TestSampleLinearMidpointIsAverage(t *testing.T) {
	tr := newTestTrack()
	mustAdd(t, tr, 1.5, []float64{-2, 4, 10}, Linear)
	mustAdd(t, tr, 4.5, []float64{6, 0, 11}, Linear)
	got, _ := tr.Sample(3)
	assertVec(t, got, Vec3{2, 2, 10.5}, 1e-12)
}

func TestSampleStepHoldsPrevious(t *testing.T) {
	tr := newTestTrack()
	mustAdd(t, tr, 0, []float64{1, 2, 3}, Step)
	mustAdd(t, tr, 1, []float64{9, 9, 9}, Step)
	for _, tm := range []float64{0, 0.25, 0.5, 0.999} {
		got, _ := tr.Sample(tm)
		if got != (Vec3{1, 2, 3}) {
			t.Fatalf("Sample(%v) = %v, want held value", tm, got)
		}
	}
	if got, _ := tr.Sample(1); got != (Vec3{9, 9, 9}) {
		t.Fatalf("Sample at next key = %v", got)
	}
}

func TestSampleBezierWithoutHandlesFallsBackToLinear(t *testing.T) {
	tr := newTestTrack()
	mustAdd(t, tr, 0, []float64{0, 0, 0}, Bezier)
	mustAdd(t, tr, 2, []float64{10, 0, 0}, Linear)
	got, _ := tr.Sample(1)
	assertVec(t, got, Vec3{5, 0, 0}, 1e-12)
}

func TestSampleBezierUsesExplicitHandles(t *testing.T) {
	tr := newTestTrack()
	a := mustAdd(t, tr, 0, []float64{0, 0, 0}, Bezier)
	b := mustAdd(t, tr, 1, []float64{10, 0, 0}, Linear)
	if err := tr.SetHandles(a, &Handles{Out: Vec3{0, 10, 0}}); err != nil {
		t.Fatal(err)
	}
	if err := tr.SetHandles(b, &Handles{In: Vec3{10, 10, 0}}); err != nil {
		t.Fatal(err)
	}

	// B(0.5) = 0.125*P0 + 0.375*P1 + 0.375*P2 + 0.125*P3
	got, _ := tr.Sample(0.5)
	assertVec(t, got, Vec3{5, 7.5, 0}, 1e-12)

	// Only one side with handles degrades to linear.
	if err := tr.SetHandles(b, nil); err != nil {
		t.Fatal(err)
	}
	got, _ = tr.Sample(0.5)
	assertVec(t, got, Vec3{5, 0, 0}, 1e-12)
}
