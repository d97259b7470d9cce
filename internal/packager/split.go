package packager

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"animstore/internal/logging"
	"animstore/internal/metrics"
	"animstore/internal/project"
)

// Side-file kinds.
const (
	KindTimeline = "timeline"
	KindMusic    = "music"
	KindHistory  = "history"
	KindChildren = "children"
	KindChild    = "child"
	KindGeometry = "geometry"
)

// Reference field names.
const (
	fieldChildrenFile = "childrenFile"
	fieldChildFile    = "childFile"
	fieldGeometryFile = "geometryFile"
	fieldGeometry     = "geometry"
	fileSuffix        = "File"
)

var (
	childFilePattern = regexp.MustCompile(`^scene_child_(\d+)_(\d+)\.json$`)
	safeUUIDPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// SideFile is one extracted sub-document, already serialized.
type SideFile struct {
	Name string
	Kind string
	Data []byte
}

// SplitResult is a base document plus the side files it references.
type SplitResult struct {
	Base  project.Document
	Files []SideFile
}

// Size returns the serialized size of every side file.
func (r *SplitResult) Size() int64 {
	var total int64
	for _, f := range r.Files {
		total += int64(len(f.Data))
	}
	return total
}

// Split partitions doc according to policy. doc is not modified.
func (p *Packager) Split(doc project.Document, policy Policy) (*SplitResult, error) {
	policy = policy.withDefaults()
	if err := policy.validate(); err != nil {
		return nil, err
	}
	result := &SplitResult{Base: doc.Clone()}
	if result.Base == nil {
		result.Base = project.Document{}
	}

	subDocs := []struct {
		enabled bool
		key     string
		name    string
	}{
		{policy.SplitTimeline, project.KeyTimeline, policy.TimelineFileName},
		{policy.SplitMusic, project.KeyMusic, policy.MusicFileName},
		{policy.SplitHistory, project.KeyHistory, policy.HistoryFileName},
	}
	for _, sub := range subDocs {
		value, ok := result.Base[sub.key]
		if !sub.enabled || !ok || value == nil {
			continue
		}
		if err := result.add(sub.name, sub.key, value); err != nil {
			return nil, err
		}
		delete(result.Base, sub.key)
		result.Base[sub.key+fileSuffix] = sub.name
	}

	if err := p.splitChildren(result, policy); err != nil {
		return nil, err
	}

	for _, f := range result.Files {
		metrics.SideFiles.WithLabelValues(f.Kind).Inc()
	}
	p.logger.Debug("project split",
		logging.Int("side_files", len(result.Files)),
		logging.Int64(logging.FieldBytes, result.Size()))
	return result, nil
}

func (r *SplitResult) add(name, kind string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s side file: %w", kind, err)
	}
	r.Files = append(r.Files, SideFile{Name: name, Kind: kind, Data: data})
	return nil
}

func (p *Packager) splitChildren(result *SplitResult, policy Policy) error {
	scene, ok := result.Base.Object(project.KeyScene)
	if !ok {
		return nil
	}
	children, ok := scene[project.KeyChildren].([]any)
	if !ok || len(children) == 0 {
		return nil
	}
	stamp := p.now().UnixMilli()

	collection, err := json.Marshal(children)
	if err != nil {
		return fmt.Errorf("encode scene children: %w", err)
	}
	if policy.ForceSplit || len(collection) > policy.ChildrenSizeThreshold {
		name := fmt.Sprintf("scene_children_%d.json", stamp)
		result.Files = append(result.Files, SideFile{Name: name, Kind: KindChildren, Data: collection})
		delete(scene, project.KeyChildren)
		scene[fieldChildrenFile] = name
		return nil
	}

	large := make([]bool, len(children))
	geometryUsers := map[string]int{}
	for i, child := range children {
		obj, ok := child.(map[string]any)
		if !ok {
			continue
		}
		size, err := jsonSize(obj)
		if err != nil {
			return fmt.Errorf("encode scene child %d: %w", i, err)
		}
		if vertexCount(obj) > policy.ChildVertexThreshold || size > policy.ChildSizeThreshold {
			large[i] = true
			if uuid := geometryUUID(obj); uuid != "" {
				geometryUsers[uuid]++
			}
		}
	}

	written := map[string]string{}
	for i, child := range children {
		if !large[i] {
			continue
		}
		obj := child.(map[string]any)
		content := make(map[string]any, len(obj))
		stub := make(map[string]any, len(obj))
		for k, v := range obj {
			content[k] = v
			if k != fieldGeometry {
				stub[k] = v
			}
		}

		if uuid := geometryUUID(obj); uuid != "" && geometryUsers[uuid] > 1 {
			name, ok := written[uuid]
			if !ok {
				name = "geometry_" + uuid + ".json"
				if err := result.add(name, KindGeometry, obj[fieldGeometry]); err != nil {
					return err
				}
				written[uuid] = name
			}
			delete(content, fieldGeometry)
			content[fieldGeometryFile] = name
		}

		name := fmt.Sprintf("scene_child_%d_%d.json", stamp, i)
		if err := result.add(name, KindChild, content); err != nil {
			return err
		}
		stub[fieldChildFile] = name
		children[i] = stub
	}
	return nil
}

func jsonSize(v any) (int, error) {
	data, err := json.Marshal(v)
	return len(data), err
}

func geometryUUID(child map[string]any) string {
	geom, ok := child[fieldGeometry].(map[string]any)
	if !ok {
		return ""
	}
	uuid, _ := geom["uuid"].(string)
	if !safeUUIDPattern.MatchString(uuid) {
		return ""
	}
	return uuid
}

// vertexCount reads an explicit vertexCount from the child or its geometry,
// falling back to a three.js style data.attributes.position.array.
func vertexCount(child map[string]any) int {
	if n, ok := toInt(child["vertexCount"]); ok {
		return n
	}
	geom, ok := child[fieldGeometry].(map[string]any)
	if !ok {
		return 0
	}
	if n, ok := toInt(geom["vertexCount"]); ok {
		return n
	}
	data, _ := geom["data"].(map[string]any)
	attrs, _ := data["attributes"].(map[string]any)
	position, _ := attrs["position"].(map[string]any)
	array, _ := position["array"].([]any)
	return len(array) / 3
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		if f, err := n.Float64(); err == nil {
			return int(f), true
		}
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

// childIndex extracts the original position from a per-child file name.
func childIndex(name string) (int, bool) {
	m := childFilePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	idx, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	return idx, true
}
