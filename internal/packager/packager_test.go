package packager

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"animstore/internal/codec"
	"animstore/internal/ids"
	"animstore/internal/keyframe"
	"animstore/internal/project"
	"animstore/internal/trackset"
)

const testStamp = 1700000000000

func newTestPackager() *Packager {
	return New(WithClock(func() time.Time { return time.UnixMilli(testStamp) }), WithWorkers(2))
}

func mustParse(t *testing.T, text string) project.Document {
	t.Helper()
	doc, err := project.Parse([]byte(text))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func positions(n int) string {
	parts := make([]string, n*3)
	for i := range parts {
		parts[i] = fmt.Sprintf("%d.5", i)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func sceneDocument(t *testing.T) project.Document {
	t.Helper()
	shared := `{"uuid":"geo-1","type":"BufferGeometry","data":{"attributes":{"position":{"itemSize":3,"array":` + positions(20) + `}}}}`
	text := `{
		"version": 3,
		"title": "demo",
		"timeline": {"duration": 12.5, "tracks": [{"id": 1}, {"id": 2}]},
		"music": {"src": "song.mp3", "offset": 0.25},
		"history": {"undo": [1, 2, 3], "redo": []},
		"scene": {
			"name": "root",
			"children": [
				{"name": "small", "visible": true},
				{"name": "big-a", "position": [1, 2, 3], "geometry": ` + shared + `},
				{"name": "tiny", "vertexCount": 3},
				{"name": "big-b", "geometry": ` + shared + `},
				{"name": "big-c", "vertexCount": 50, "geometry": {"uuid": "geo-2", "vertexCount": 50}}
			]
		}
	}`
	return mustParse(t, text)
}

func smallChildPolicy() Policy {
	policy := DefaultPolicy()
	policy.ChildVertexThreshold = 10
	return policy
}

func sideFileNames(split *SplitResult) []string {
	names := make([]string, len(split.Files))
	for i, f := range split.Files {
		names[i] = f.Name
	}
	return names
}

func TestSplitExtractsSubDocuments(t *testing.T) {
	doc := sceneDocument(t)
	original := doc.Clone()

	split, err := newTestPackager().Split(doc, smallChildPolicy())
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if !reflect.DeepEqual(doc, original) {
		t.Fatal("Split modified its input")
	}

	for key, name := range map[string]string{
		"timelineFile": "timeline_data.json",
		"musicFile":    "music_data.json",
		"historyFile":  "history_data.json",
	} {
		if split.Base[key] != name {
			t.Fatalf("%s = %v, want %s", key, split.Base[key], name)
		}
	}
	for _, key := range []string{"timeline", "music", "history"} {
		if _, ok := split.Base[key]; ok {
			t.Fatalf("%s should be removed from base", key)
		}
	}

	want := []string{
		"timeline_data.json",
		"music_data.json",
		"history_data.json",
		"geometry_geo-1.json",
		fmt.Sprintf("scene_child_%d_1.json", testStamp),
		fmt.Sprintf("scene_child_%d_3.json", testStamp),
		fmt.Sprintf("scene_child_%d_4.json", testStamp),
	}
	if got := sideFileNames(split); !reflect.DeepEqual(got, want) {
		t.Fatalf("side files = %v, want %v", got, want)
	}

	children, _ := split.Base.SceneChildren()
	stub := children[1].(map[string]any)
	if stub["childFile"] != want[4] || stub["name"] != "big-a" {
		t.Fatalf("unexpected stub %v", stub)
	}
	if _, ok := stub["geometry"]; ok {
		t.Fatal("stub must not carry geometry")
	}
	if _, ok := children[0].(map[string]any)["childFile"]; ok {
		t.Fatal("small child should stay inline")
	}

	var childA map[string]any
	for _, f := range split.Files {
		if f.Name == want[4] {
			if err := json.Unmarshal(f.Data, &childA); err != nil {
				t.Fatal(err)
			}
		}
	}
	if childA["geometryFile"] != "geometry_geo-1.json" {
		t.Fatalf("shared geometry should be referenced, got %v", childA)
	}
}

func TestSplitDisabledSubDocumentsStayInline(t *testing.T) {
	policy := DefaultPolicy()
	policy.SplitMusic = false
	policy.SplitHistory = false
	policy.TimelineFileName = "tl.json"

	split, err := newTestPackager().Split(sceneDocument(t), policy)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if split.Base["timelineFile"] != "tl.json" {
		t.Fatalf("timelineFile = %v", split.Base["timelineFile"])
	}
	if _, ok := split.Base["music"]; !ok {
		t.Fatal("music should stay inline")
	}
	if _, ok := split.Base["historyFile"]; ok {
		t.Fatal("history should not be split")
	}
}

func TestSplitWholeCollectionTakesPrecedence(t *testing.T) {
	policy := smallChildPolicy()
	policy.ForceSplit = true

	split, err := newTestPackager().Split(sceneDocument(t), policy)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	scene, _ := split.Base.Object("scene")
	name := fmt.Sprintf("scene_children_%d.json", testStamp)
	if scene["childrenFile"] != name {
		t.Fatalf("childrenFile = %v", scene["childrenFile"])
	}
	if _, ok := scene["children"]; ok {
		t.Fatal("children should be removed")
	}
	for _, f := range split.Files {
		if f.Kind == KindChild || f.Kind == KindGeometry {
			t.Fatalf("per-child extraction ran alongside collection extraction: %s", f.Name)
		}
	}

	policy = DefaultPolicy()
	policy.ChildrenSizeThreshold = 10
	split, err = newTestPackager().Split(sceneDocument(t), policy)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	scene, _ = split.Base.Object("scene")
	if scene["childrenFile"] != name {
		t.Fatal("size threshold should trigger collection extraction")
	}
}

func TestSplitRejectsBadPolicy(t *testing.T) {
	p := newTestPackager()
	for _, policy := range []Policy{
		{MusicFileName: "project.json"},
		{TimelineFileName: "../x.json"},
		{TimelineFileName: "same.json", HistoryFileName: "same.json"},
	} {
		if _, err := p.Split(sceneDocument(t), policy); err == nil {
			t.Fatalf("expected error for policy %+v", policy)
		}
	}
}

func packBytes(t *testing.T, p *Packager, split *SplitResult) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := p.Pack(context.Background(), &buf, split); err != nil {
		t.Fatalf("Pack: %v", err)
	}
	return buf.Bytes()
}

func unpackBytes(t *testing.T, p *Packager, data []byte) (project.Document, *MergeReport) {
	t.Helper()
	doc, report, err := p.Unpack(context.Background(), bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	return doc, report
}

func TestRoundTripReproducesDocument(t *testing.T) {
	policies := map[string]Policy{
		"per-child":  smallChildPolicy(),
		"collection": {SplitTimeline: true, ForceSplit: true},
		"nothing":    {},
	}
	for name, policy := range policies {
		t.Run(name, func(t *testing.T) {
			p := newTestPackager()
			doc := sceneDocument(t)
			split, err := p.Split(doc, policy)
			if err != nil {
				t.Fatalf("Split: %v", err)
			}
			got, report := unpackBytes(t, p, packBytes(t, p, split))
			if !report.Clean() {
				t.Fatalf("unexpected report: %v", report.Err())
			}
			if !reflect.DeepEqual(got, doc) {
				a, _ := json.Marshal(got)
				b, _ := json.Marshal(doc)
				t.Fatalf("round trip mismatch:\n got %s\nwant %s", a, b)
			}
		})
	}
}

func TestPackWritesManifest(t *testing.T) {
	p := newTestPackager()
	split, err := p.Split(sceneDocument(t), smallChildPolicy())
	if err != nil {
		t.Fatal(err)
	}
	data := packBytes(t, p, split)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	var manifest Manifest
	for _, f := range zr.File {
		if f.Name != ManifestName {
			continue
		}
		raw, err := p.readEntry(f)
		if err != nil {
			t.Fatal(err)
		}
		if err := json.Unmarshal(raw, &manifest); err != nil {
			t.Fatal(err)
		}
	}
	if manifest.Version != ManifestVersion {
		t.Fatalf("manifest version = %d", manifest.Version)
	}
	if manifest.FileCount != len(split.Files)+1 || manifest.SideFileCount != len(split.Files) {
		t.Fatalf("manifest counts = %d/%d", manifest.FileCount, manifest.SideFileCount)
	}
	if manifest.Files[0] != BaseDocumentName {
		t.Fatalf("first manifest file = %s", manifest.Files[0])
	}
	if !manifest.CreatedAt.Equal(time.UnixMilli(testStamp)) {
		t.Fatalf("createdAt = %v", manifest.CreatedAt)
	}
	if len(zr.File) != manifest.FileCount+1 {
		t.Fatalf("archive has %d entries, manifest lists %d", len(zr.File), manifest.FileCount)
	}
}

func rawArchive(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestUnpackStructuralErrors(t *testing.T) {
	p := newTestPackager()
	tests := []struct {
		name    string
		entries map[string]string
		want    error
	}{
		{"no manifest", map[string]string{BaseDocumentName: `{}`}, ErrMissingManifest},
		{"no base", map[string]string{ManifestName: `{"version":1,"files":[]}`}, ErrMissingBaseDocument},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data := rawArchive(t, tc.entries)
			_, _, err := p.Unpack(context.Background(), bytes.NewReader(data), int64(len(data)))
			if !errors.Is(err, tc.want) {
				t.Fatalf("Unpack error = %v, want %v", err, tc.want)
			}
		})
	}

	if _, _, err := p.Unpack(context.Background(), bytes.NewReader([]byte("not a zip")), 9); err == nil {
		t.Fatal("expected error for non-zip input")
	}
}

func TestUnpackEnforcesEntryLimit(t *testing.T) {
	data := rawArchive(t, map[string]string{
		ManifestName:     `{"version":1,"files":["project.json"]}`,
		BaseDocumentName: `{"title":"` + strings.Repeat("x", 256) + `"}`,
	})
	limited := New(WithMaxEntryBytes(128))
	if _, _, err := limited.Unpack(context.Background(), bytes.NewReader(data), int64(len(data))); err == nil {
		t.Fatal("expected oversized entry to be rejected")
	}
	if _, _, err := newTestPackager().Unpack(context.Background(), bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("default limit should accept the entry: %v", err)
	}
}

func TestUnpackHonoursCancellation(t *testing.T) {
	p := newTestPackager()
	split, err := p.Split(sceneDocument(t), smallChildPolicy())
	if err != nil {
		t.Fatal(err)
	}
	data := packBytes(t, p, split)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := p.Unpack(ctx, bytes.NewReader(data), int64(len(data))); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := p.Pack(ctx, &bytes.Buffer{}, split); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled from Pack, got %v", err)
	}
}

func TestMergeReportsUnmatched(t *testing.T) {
	base := mustParse(t, `{
		"timelineFile": "missing.json",
		"avatarFile": "avatar.png",
		"scene": {"children": [
			{"name": "lost", "childFile": "scene_child_1_0.json"},
			{"name": "inline"},
			{"name": "ok", "childFile": "scene_child_1_2.json"}
		]}
	}`)
	files := map[string][]byte{
		"scene_child_1_1.json": []byte(`{"name": "collides"}`),
		"scene_child_1_2.json": []byte(`{"name": "ok", "mesh": true, "geometryFile": "geometry_gone.json"}`),
		"scene_child_1_4.json": []byte(`{"name": "late"}`),
		"stray.json":           []byte(`{}`),
	}

	doc, report, err := newTestPackager().Merge(base, files)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if _, ok := doc["timelineFile"]; ok {
		t.Fatal("unmatched reference field should be removed")
	}
	if _, ok := doc["timeline"]; ok {
		t.Fatal("unmatched slot should stay empty")
	}
	if doc["avatarFile"] != "avatar.png" {
		t.Fatal("unrelated File field must be left alone")
	}

	children, _ := doc.SceneChildren()
	var names []string
	for _, c := range children {
		names = append(names, c.(map[string]any)["name"].(string))
	}
	if !reflect.DeepEqual(names, []string{"inline", "ok", "late"}) {
		t.Fatalf("children = %v", names)
	}
	if _, ok := children[1].(map[string]any)["geometryFile"]; ok {
		t.Fatal("dangling geometryFile should be removed")
	}

	paths := map[string]string{}
	for _, u := range report.UnmatchedReferences {
		paths[u.Path] = u.File
	}
	want := map[string]string{
		"timelineFile":                   "missing.json",
		"scene.children[0].childFile":    "scene_child_1_0.json",
		"scene.children[2].geometryFile": "geometry_gone.json",
	}
	if !reflect.DeepEqual(paths, want) {
		t.Fatalf("unmatched references = %v", paths)
	}
	if !reflect.DeepEqual(report.UnmatchedFiles, []string{"scene_child_1_1.json", "stray.json"}) {
		t.Fatalf("unmatched files = %v", report.UnmatchedFiles)
	}
	if !errors.Is(report.Err(), ErrUnmatchedFileReference) {
		t.Fatalf("report error = %v", report.Err())
	}
	if report.Clean() {
		t.Fatal("report should not be clean")
	}
}

func TestMergeExpandsCompressedSideFiles(t *testing.T) {
	set := trackset.New(trackset.WithIDGenerator(ids.NewCounter("k")))
	if _, err := set.AddKeyframe("cube", "position", 0, []float64{0, 0, 0}, keyframe.Linear); err != nil {
		t.Fatal(err)
	}
	if _, err := set.AddKeyframe("cube", "position", 2, []float64{10, 0, 0}, keyframe.Step); err != nil {
		t.Fatal(err)
	}
	doc := project.Document{"timeline": map[string]any{"duration": 2.0}}
	if err := doc.SetAnimation(set, codec.New()); err != nil {
		t.Fatal(err)
	}

	p := newTestPackager()
	split, err := p.Split(doc, Policy{SplitTimeline: true})
	if err != nil {
		t.Fatal(err)
	}
	merged, report := unpackBytes(t, p, packBytes(t, p, split))
	if !report.Clean() {
		t.Fatalf("unexpected report: %v", report.Err())
	}

	timeline, _ := merged.Object("timeline")
	animation, _ := timeline["animation"].(map[string]any)
	if _, ok := animation["tracks"]; !ok || codec.IsCompressed(animation) {
		t.Fatalf("animation not expanded: %v", animation)
	}
	restored, problems, err := merged.Animation()
	if err != nil || len(problems) != 0 {
		t.Fatalf("Animation = %v, %v", problems, err)
	}
	tr, _ := restored.Track("cube", "position")
	if tr.Len() != 2 || tr.At(1).Interpolation != keyframe.Step || tr.At(1).ID != "k2" {
		t.Fatalf("restored track mismatch: %+v", tr.Keyframes())
	}
}

func TestMergeReportsCompressedTrackProblems(t *testing.T) {
	base := project.Document{"timelineFile": "timeline_data.json"}
	files := map[string][]byte{
		"timeline_data.json": []byte(`{"animation": {"t": 1, "f": 30, "k": {"cube": {
			"position": {"t": "0,1", "v": "0,0,0,1,1,1", "i": "0,0"},
			"scale": {"t": "0", "v": "oops", "i": "0"}
		}}}}`),
	}
	doc, report, err := newTestPackager().Merge(base, files)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(report.TrackProblems) != 1 || report.TrackProblems[0].Key.Property != "scale" {
		t.Fatalf("track problems = %v", report.TrackProblems)
	}
	set, _, err := doc.Animation()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := set.Track("cube", "position"); !ok {
		t.Fatal("healthy track should survive")
	}
}

func TestVertexCount(t *testing.T) {
	tests := []struct {
		child string
		want  int
	}{
		{`{"vertexCount": 7}`, 7},
		{`{"geometry": {"vertexCount": 12}}`, 12},
		{`{"geometry": {"data": {"attributes": {"position": {"array": [1,2,3,4,5,6]}}}}}`, 2},
		{`{"geometry": "ref"}`, 0},
		{`{}`, 0},
	}
	for _, tc := range tests {
		v, err := project.DecodeValue([]byte(tc.child))
		if err != nil {
			t.Fatal(err)
		}
		child := v.(map[string]any)
		if got := vertexCount(child); got != tc.want {
			t.Fatalf("vertexCount(%s) = %d, want %d", tc.child, got, tc.want)
		}
	}
}

func TestChildIndex(t *testing.T) {
	if idx, ok := childIndex("scene_child_1700000000000_12.json"); !ok || idx != 12 {
		t.Fatalf("childIndex = %d, %v", idx, ok)
	}
	for _, name := range []string{"scene_children_1.json", "scene_child_1_x.json", "geometry_a.json"} {
		if _, ok := childIndex(name); ok {
			t.Fatalf("childIndex(%s) should not match", name)
		}
	}
}
