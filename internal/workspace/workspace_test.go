package workspace

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"animstore/internal/catalog"
	"animstore/internal/config"
	"animstore/internal/fileutil"
	"animstore/internal/keyframe"
	"animstore/internal/project"
	"animstore/internal/testsupport"
)

func newWorkspace(t *testing.T, cfg *config.Config, opts ...Option) *Workspace {
	t.Helper()
	w, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func animate(t *testing.T, w *Workspace) string {
	t.Helper()
	if _, err := w.Set().AddKeyframe("cube", "position", 0, []float64{0, 0, 0}, keyframe.Linear); err != nil {
		t.Fatal(err)
	}
	id, err := w.Set().AddKeyframe("cube", "position", 2, []float64{10, 0, 0}, keyframe.Linear)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Set().AddKeyframe("cube", "scale", 1, []float64{1, 1, 1}, keyframe.Step); err != nil {
		t.Fatal(err)
	}
	return id
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, compress := range []bool{true, false} {
		cfg := testsupport.NewConfig(t,
			testsupport.WithCompression(compress),
			testsupport.WithChildThresholds(5, 1<<20))
		store := testsupport.MustOpenCatalog(t, cfg)
		archive := filepath.Join(cfg.Paths.DataDir, "scene.zip")

		w := newWorkspace(t, cfg, WithCatalog(store))
		if _, err := w.Replace(testsupport.SampleProject(3, 10)); err != nil {
			t.Fatalf("Replace: %v", err)
		}
		lastID := animate(t, w)

		saved, err := w.Save(context.Background(), archive)
		if err != nil {
			t.Fatalf("Save(compress=%v): %v", compress, err)
		}
		// timeline, music, history, three children, one shared geometry
		if saved.SideFiles != 7 {
			t.Fatalf("SideFiles = %d, want 7", saved.SideFiles)
		}
		if saved.Bytes <= 0 || saved.Tracks != 2 || saved.Keyframes != 3 {
			t.Fatalf("unexpected save result: %+v", saved)
		}

		loaded := newWorkspace(t, cfg, WithCatalog(store))
		result, err := loaded.Load(context.Background(), archive)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if !result.Report.Clean() || result.Problems() != 0 {
			t.Fatalf("load problems: %v", result.Report.Err())
		}
		if loaded.Path() != archive {
			t.Fatalf("Path = %q", loaded.Path())
		}

		set := loaded.Set()
		if set.Len() != 2 || set.KeyframeCount() != 3 || set.MaxTime() != 2 {
			t.Fatalf("set shape: len=%d keys=%d max=%v", set.Len(), set.KeyframeCount(), set.MaxTime())
		}
		tr, ok := set.Track("cube", "position")
		if !ok {
			t.Fatal("position track missing after load")
		}
		if _, ok := tr.Find(lastID); !ok {
			t.Fatalf("keyframe id %q not preserved", lastID)
		}
		v, _ := tr.Sample(1)
		if math.Abs(v[0]-5) > 1e-9 {
			t.Fatalf("Sample(1) = %v, want x=5", v)
		}

		children, ok := loaded.Document().SceneChildren()
		if !ok || len(children) != 3 {
			t.Fatalf("scene children = %d", len(children))
		}
		for i, child := range children {
			obj, _ := child.(map[string]any)
			if _, ok := obj["geometry"].(map[string]any); !ok {
				t.Fatalf("child %d lost its geometry: %v", i, obj)
			}
		}
		for _, key := range []string{project.KeyMusic, project.KeyHistory} {
			if _, ok := loaded.Document().Object(key); !ok {
				t.Fatalf("%s missing after load", key)
			}
		}

		events, err := store.List(context.Background(), archive, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 2 || events[0].Operation != catalog.OperationLoad || events[1].Operation != catalog.OperationSave {
			t.Fatalf("catalog events = %+v", events)
		}
	}
}

func TestLoadFailureKeepsState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	w := newWorkspace(t, cfg)
	animate(t, w)
	before := w.Set()

	bogus := filepath.Join(cfg.Paths.DataDir, "bogus.zip")
	testsupport.WriteFile(t, bogus, []byte("not a zip"))

	if _, err := w.Load(context.Background(), bogus); err == nil {
		t.Fatal("expected error loading a non-archive")
	}
	if _, err := w.Load(context.Background(), filepath.Join(cfg.Paths.DataDir, "missing.zip")); err == nil {
		t.Fatal("expected error loading a missing file")
	}
	if w.Set() != before || w.Set().KeyframeCount() != 3 || w.Path() != "" {
		t.Fatal("failed load must leave the workspace untouched")
	}
}

func TestLoadReportsTrackProblems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	archive := filepath.Join(cfg.Paths.DataDir, "broken.zip")

	doc, err := project.Parse([]byte(`{
		"timeline": {"animation": {"maxTime": 1, "frameRate": 24, "tracks": {
			"cube": {
				"position": {"times": [0, 1], "values": [0, 0, 0, 1, 1, 1], "interpolations": [0, 0]},
				"scale": {"times": [0, 1], "values": [1, 1], "interpolations": [0, 0]}
			}
		}}}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	w := newWorkspace(t, cfg)
	split, err := w.Packager().Split(doc, w.Policy())
	if err != nil {
		t.Fatal(err)
	}
	err = fileutil.WriteAtomic(archive, 0o644, func(out io.Writer) error {
		return w.Packager().Pack(context.Background(), out, split)
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := w.Load(context.Background(), archive)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(result.TrackProblems) != 1 || result.TrackProblems[0].Key.Property != "scale" {
		t.Fatalf("track problems = %v", result.TrackProblems)
	}
	if w.Set().Len() != 1 || w.Set().FrameRate() != 24 {
		t.Fatalf("set after partial load: len=%d fps=%d", w.Set().Len(), w.Set().FrameRate())
	}
}

func TestSaveRespectsLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	w := newWorkspace(t, cfg)
	archive := filepath.Join(cfg.Paths.DataDir, "scene.zip")

	unlock, err := fileutil.Lock(archive)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = unlock() }()

	if _, err := w.Save(context.Background(), archive); !errors.Is(err, fileutil.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if _, err := os.Stat(archive); !os.IsNotExist(err) {
		t.Fatal("locked save must not write the archive")
	}
}

func TestSaveKeepsBackup(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	w := newWorkspace(t, cfg, WithBackup(true))
	archive := filepath.Join(cfg.Paths.DataDir, "scene.zip")

	first, err := w.Save(context.Background(), archive)
	if err != nil {
		t.Fatal(err)
	}
	if first.Backup != "" {
		t.Fatalf("first save should not back up, got %q", first.Backup)
	}
	animate(t, w)
	second, err := w.Save(context.Background(), archive)
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(second.Backup)
	if err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	if info.Size() != first.Bytes {
		t.Fatalf("backup size = %d, want %d", info.Size(), first.Bytes)
	}
}

func TestPrecomputeTracksRevision(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	w := newWorkspace(t, cfg)
	animate(t, w)

	ctx := context.Background()
	if recomputed, err := w.Precompute(ctx); err != nil || !recomputed {
		t.Fatalf("first Precompute = %v, %v", recomputed, err)
	}
	if recomputed, err := w.Precompute(ctx); err != nil || recomputed {
		t.Fatalf("second Precompute = %v, %v", recomputed, err)
	}
	if w.Cache().TotalFrames() != 66 {
		t.Fatalf("TotalFrames = %d, want 66", w.Cache().TotalFrames())
	}

	if _, err := w.Replace(project.Document{}); err != nil {
		t.Fatal(err)
	}
	if !w.Cache().Dirty(w.Set()) {
		t.Fatal("Replace must invalidate the frame cache")
	}
}

func TestNewRejectsUnknownIDFormat(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Tracks.IDFormat = "snowflake"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for unknown id format")
	}
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}
