package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"animstore/internal/project"
)

// WriteFile writes data to path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteProject writes doc as JSON to path.
func WriteProject(t testing.TB, path string, doc project.Document) {
	t.Helper()

	data, err := project.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal project: %v", err)
	}
	WriteFile(t, path, data)
}

// SampleProject builds a project with timeline, music, and history entries
// and children scene children. Every child carries the same geometry uuid
// with vertices position vertices.
func SampleProject(children, vertices int) project.Document {
	positions := make([]any, 0, vertices*3)
	for i := 0; i < vertices*3; i++ {
		positions = append(positions, float64(i%17))
	}
	kids := make([]any, 0, children)
	for i := 0; i < children; i++ {
		kids = append(kids, map[string]any{
			"name": "child",
			"geometry": map[string]any{
				"uuid": "geo-shared",
				"data": map[string]any{
					"attributes": map[string]any{
						"position": map[string]any{
							"itemSize": float64(3),
							"array":    append([]any(nil), positions...),
						},
					},
				},
			},
		})
	}
	return project.Document{
		project.KeyTimeline: map[string]any{"duration": float64(10)},
		project.KeyMusic:    map[string]any{"tracks": []any{"intro.mp3"}},
		project.KeyHistory:  map[string]any{"undo": []any{"add cube"}},
		project.KeyScene: map[string]any{
			"name":              "scene",
			project.KeyChildren: kids,
		},
	}
}
