package keyframe

import (
	"errors"
	"math"
	"testing"

	"animstore/internal/ids"
)

func newTestTrack(opts ...Option) *Track {
	opts = append([]Option{WithIDGenerator(ids.NewCounter("k"))}, opts...)
	return NewTrack(opts...)
}

func mustAdd(t *testing.T, tr *Track, time float64, value []float64, interp Interpolation) string {
	t.Helper()
	id, err := tr.Add(time, value, interp)
	if err != nil {
		t.Fatalf("Add(%v): %v", time, err)
	}
	return id
}

func assertVec(t *testing.T, got, want Vec3, tol float64) {
	t.Helper()
	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestAddAssignsDeterministicIDs(t *testing.T) {
	tr := newTestTrack()
	if id := mustAdd(t, tr, 0, []float64{0, 0, 0}, Linear); id != "k1" {
		t.Fatalf("first id = %q", id)
	}
	if id := mustAdd(t, tr, 1, []float64{0, 0, 0}, Linear); id != "k2" {
		t.Fatalf("second id = %q", id)
	}
}

func TestAddKeepsTimeOrder(t *testing.T) {
	tr := newTestTrack()
	for _, tm := range []float64{3, 1, 2, 0, 5, 4} {
		mustAdd(t, tr, tm, []float64{tm, 0, 0}, Linear)
	}
	for i := 0; i < tr.Len(); i++ {
		if tr.At(i).Time != float64(i) {
			t.Fatalf("keyframe %d has time %v", i, tr.At(i).Time)
		}
	}
}

func TestAddRejectsInvalidValue(t *testing.T) {
	tr := newTestTrack()
	cases := []struct {
		name  string
		time  float64
		value []float64
	}{
		{"two components", 0, []float64{1, 2}},
		{"nil value", 0, nil},
		{"nan component", 0, []float64{1, math.NaN(), 0}},
		{"negative time", -1, []float64{1, 2, 3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tr.Add(tc.time, tc.value, Linear)
			if !errors.Is(err, ErrInvalidValue) {
				t.Fatalf("expected ErrInvalidValue, got %v", err)
			}
		})
	}
	if _, err := tr.Add(0, []float64{0, 0, 0}, Interpolation(9)); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue for unknown interpolation, got %v", err)
	}
	if tr.Len() != 0 {
		t.Fatalf("rejected inserts changed the track: %d", tr.Len())
	}
}

func TestAddRejectsDuplicateTime(t *testing.T) {
	tr := newTestTrack()
	mustAdd(t, tr, 1.0, []float64{0, 0, 0}, Linear)

	for _, tm := range []float64{1.0, 1.0005, 0.9995} {
		if _, err := tr.Add(tm, []float64{1, 1, 1}, Linear); !errors.Is(err, ErrDuplicateTime) {
			t.Fatalf("Add(%v) expected ErrDuplicateTime, got %v", tm, err)
		}
	}
	if tr.Len() != 1 {
		t.Fatalf("keyframe count changed: %d", tr.Len())
	}
	mustAdd(t, tr, 1.001, []float64{0, 0, 0}, Linear)
	mustAdd(t, tr, 0.003, []float64{0, 0, 0}, Linear)
	mustAdd(t, tr, 0.002, []float64{0, 0, 0}, Linear)
}

func TestAddRespectsCapacity(t *testing.T) {
	tr := newTestTrack(WithCapacity(2))
	mustAdd(t, tr, 0, []float64{0, 0, 0}, Linear)
	mustAdd(t, tr, 1, []float64{0, 0, 0}, Linear)
	if _, err := tr.Add(2, []float64{0, 0, 0}, Linear); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if tr.Len() != 2 {
		t.Fatalf("unexpected length %d", tr.Len())
	}
}

func TestAddWithIDKeepsIDAndRejectsReuse(t *testing.T) {
	tr := newTestTrack()
	id, err := tr.AddWithID("fixed", 0, []float64{0, 0, 0}, Step)
	if err != nil || id != "fixed" {
		t.Fatalf("AddWithID = %q, %v", id, err)
	}
	if _, err := tr.AddWithID("fixed", 1, []float64{0, 0, 0}, Step); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	generated, err := tr.AddWithID("", 2, []float64{0, 0, 0}, Step)
	if err != nil || generated != "k1" {
		t.Fatalf("empty id should be generated, got %q, %v", generated, err)
	}
}

type constantIDs string

func (c constantIDs) Next() string { return string(c) }

func TestAddSkipsGeneratedIDsAlreadyHeld(t *testing.T) {
	tr := newTestTrack()
	if _, err := tr.AddWithID("k1", 0, []float64{0, 0, 0}, Linear); err != nil {
		t.Fatal(err)
	}
	id := mustAdd(t, tr, 1, []float64{1, 1, 1}, Linear)
	if id != "k2" {
		t.Fatalf("generated id = %q, want k2", id)
	}
	if !tr.Remove(id) {
		t.Fatal("Remove of generated id failed")
	}
	if _, ok := tr.Find("k1"); !ok || tr.Len() != 1 {
		t.Fatal("imported keyframe must stay findable after removing its neighbour")
	}

	stuck := NewTrack(WithIDGenerator(constantIDs("same")))
	mustAdd(t, stuck, 0, []float64{0, 0, 0}, Linear)
	if _, err := stuck.Add(1, []float64{0, 0, 0}, Linear); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID from exhausted generator, got %v", err)
	}
	if stuck.Len() != 1 {
		t.Fatalf("failed add must not insert, len=%d", stuck.Len())
	}
}

func TestRemove(t *testing.T) {
	tr := newTestTrack()
	a := mustAdd(t, tr, 0, []float64{0, 0, 0}, Linear)
	b := mustAdd(t, tr, 1, []float64{1, 0, 0}, Linear)
	c := mustAdd(t, tr, 2, []float64{2, 0, 0}, Linear)

	if !tr.Remove(b) {
		t.Fatal("expected Remove to find keyframe")
	}
	if tr.Remove(b) {
		t.Fatal("second Remove should report false")
	}
	if tr.Len() != 2 || tr.At(0).ID != a || tr.At(1).ID != c {
		t.Fatalf("unexpected keyframes after remove: %+v", tr.Keyframes())
	}
	mustAdd(t, tr, 1, []float64{5, 0, 0}, Linear)
}

func TestUpdateTimeReordersAndKeepsID(t *testing.T) {
	tr := newTestTrack()
	a := mustAdd(t, tr, 0, []float64{0, 0, 0}, Linear)
	b := mustAdd(t, tr, 1, []float64{1, 0, 0}, Linear)
	mustAdd(t, tr, 2, []float64{2, 0, 0}, Linear)

	if err := tr.UpdateTime(a, 3); err != nil {
		t.Fatalf("UpdateTime: %v", err)
	}
	if last := tr.At(tr.Len() - 1); last.ID != a || last.Time != 3 {
		t.Fatalf("expected %s last at 3s, got %+v", a, last)
	}
	if err := tr.UpdateTime(b, 2.0004); !errors.Is(err, ErrDuplicateTime) {
		t.Fatalf("expected ErrDuplicateTime, got %v", err)
	}
	if err := tr.UpdateTime(b, 1.0002); err != nil {
		t.Fatalf("moving a keyframe near its own time should succeed: %v", err)
	}
	if err := tr.UpdateTime("missing", 9); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := tr.UpdateTime(b, -2); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}

func TestUpdateValue(t *testing.T) {
	tr := newTestTrack()
	id := mustAdd(t, tr, 0, []float64{0, 0, 0}, Linear)
	if err := tr.UpdateValue(id, []float64{1, 2, 3}); err != nil {
		t.Fatalf("UpdateValue: %v", err)
	}
	kf, _ := tr.Find(id)
	if kf.Value != (Vec3{1, 2, 3}) {
		t.Fatalf("value not updated: %v", kf.Value)
	}
	if err := tr.UpdateValue(id, []float64{1}); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
	if err := tr.UpdateValue("nope", []float64{1, 2, 3}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestObserverSeesMutations(t *testing.T) {
	var touched []float64
	tr := newTestTrack(WithObserver(func(tm float64) { touched = append(touched, tm) }))
	id := mustAdd(t, tr, 1, []float64{0, 0, 0}, Linear)
	_ = tr.UpdateTime(id, 4)
	_ = tr.UpdateValue(id, []float64{1, 1, 1})
	tr.Remove(id)
	_, _ = tr.Add(2, []float64{1}, Linear)

	want := []float64{1, 4, 4, 4}
	if len(touched) != len(want) {
		t.Fatalf("observer calls = %v, want %v", touched, want)
	}
	for i := range want {
		if touched[i] != want[i] {
			t.Fatalf("observer calls = %v, want %v", touched, want)
		}
	}
}

func TestKeyframesReturnsCopies(t *testing.T) {
	tr := newTestTrack()
	id := mustAdd(t, tr, 0, []float64{0, 0, 0}, Bezier)
	if err := tr.SetHandles(id, &Handles{In: Vec3{1, 1, 1}, Out: Vec3{2, 2, 2}}); err != nil {
		t.Fatalf("SetHandles: %v", err)
	}
	keys := tr.Keyframes()
	keys[0].Value[0] = 99
	keys[0].Handles.Out[0] = 99
	kf, _ := tr.Find(id)
	if kf.Value[0] != 0 || kf.Handles.Out[0] != 2 {
		t.Fatalf("track state leaked through Keyframes: %+v", kf)
	}
}
