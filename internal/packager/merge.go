package packager

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"animstore/internal/codec"
	"animstore/internal/logging"
	"animstore/internal/project"
	"animstore/internal/trackset"
)

// MergeReport lists what Merge could not reconcile. A report with problems
// still accompanies a usable document.
type MergeReport struct {
	// Merged lists side files whose content was placed.
	Merged []string
	// UnmatchedReferences lists reference fields without a side file. Their
	// slots are left empty.
	UnmatchedReferences []UnmatchedReference
	// UnmatchedFiles lists side files that nothing referenced or whose
	// index could not be placed.
	UnmatchedFiles []string
	// TrackProblems holds per-track failures from expanding compressed
	// track documents.
	TrackProblems []trackset.TrackError
}

// Clean reports whether every reference and file was reconciled.
func (r *MergeReport) Clean() bool {
	return len(r.UnmatchedReferences) == 0 && len(r.UnmatchedFiles) == 0 && len(r.TrackProblems) == 0
}

// Err joins every problem in the report, or returns nil when clean.
func (r *MergeReport) Err() error {
	var errs []error
	for _, u := range r.UnmatchedReferences {
		errs = append(errs, u)
	}
	for _, name := range r.UnmatchedFiles {
		errs = append(errs, fmt.Errorf("side file %s: %w", name, ErrUnmatchedFileReference))
	}
	for _, problem := range r.TrackProblems {
		errs = append(errs, problem)
	}
	return errors.Join(errs...)
}

type placeholder struct{}

type merger struct {
	files  map[string][]byte
	used   map[string]bool
	report *MergeReport
}

// Merge reverses Split: every reference in base is replaced by the decoded
// content of its side file. base is modified and returned.
func (p *Packager) Merge(base project.Document, files map[string][]byte) (project.Document, *MergeReport, error) {
	if base == nil {
		return nil, nil, ErrMissingBaseDocument
	}
	m := &merger{files: files, used: map[string]bool{}, report: &MergeReport{}}

	if err := m.mergeTopLevel(base); err != nil {
		return nil, nil, err
	}
	if scene, ok := base.Object(project.KeyScene); ok {
		if err := m.mergeScene(scene); err != nil {
			return nil, nil, err
		}
	}

	for _, name := range sortedNames(files) {
		if !m.used[name] && !slices.Contains(m.report.UnmatchedFiles, name) {
			m.report.UnmatchedFiles = append(m.report.UnmatchedFiles, name)
		}
	}
	sort.Strings(m.report.Merged)

	for _, u := range m.report.UnmatchedReferences {
		logging.WarnWithContext(p.logger, "side file reference unmatched", "packager_unmatched_reference",
			logging.String("field", u.Path),
			logging.String(logging.FieldSideFile, u.File),
			logging.String(logging.FieldImpact, "referenced content left empty"))
	}
	for _, name := range m.report.UnmatchedFiles {
		logging.WarnWithContext(p.logger, "side file not placed", "packager_unmatched_file",
			logging.String(logging.FieldSideFile, name),
			logging.String(logging.FieldImpact, "side file content not restored"))
	}
	return base, m.report, nil
}

// mergeTopLevel resolves timelineFile, musicFile, historyFile, and any other
// top-level "<name>File" string field naming an available side file.
func (m *merger) mergeTopLevel(base project.Document) error {
	known := map[string]bool{
		project.KeyTimeline + fileSuffix: true,
		project.KeyMusic + fileSuffix:    true,
		project.KeyHistory + fileSuffix:  true,
	}
	for _, key := range sortedNames(base) {
		name, ok := base[key].(string)
		slot := strings.TrimSuffix(key, fileSuffix)
		if !ok || slot == key || slot == "" {
			continue
		}
		if _, exists := m.files[name]; !exists && !known[key] {
			continue
		}
		value, found, err := m.load(name)
		if err != nil {
			return err
		}
		delete(base, key)
		if !found {
			m.report.UnmatchedReferences = append(m.report.UnmatchedReferences, UnmatchedReference{Path: key, File: name})
			continue
		}
		base[slot] = value
	}
	return nil
}

func (m *merger) mergeScene(scene map[string]any) error {
	if name, ok := scene[fieldChildrenFile].(string); ok {
		value, found, err := m.load(name)
		if err != nil {
			return err
		}
		delete(scene, fieldChildrenFile)
		if !found {
			m.report.UnmatchedReferences = append(m.report.UnmatchedReferences,
				UnmatchedReference{Path: "scene." + fieldChildrenFile, File: name})
		} else if children, ok := value.([]any); ok {
			scene[project.KeyChildren] = children
		} else {
			m.report.UnmatchedFiles = append(m.report.UnmatchedFiles, name)
		}
	}

	children, _ := scene[project.KeyChildren].([]any)
	children, err := m.mergeChildren(children)
	if err != nil {
		return err
	}
	if children != nil {
		scene[project.KeyChildren] = children
	}
	return nil
}

// mergeChildren places per-child files by the index embedded in their names.
// Slots are padded with placeholders so files can land past the end of the
// array; placeholders left at the end are dropped.
func (m *merger) mergeChildren(children []any) ([]any, error) {
	type childFile struct {
		name  string
		index int
	}
	var pending []childFile
	for _, name := range sortedNames(m.files) {
		if idx, ok := childIndex(name); ok {
			pending = append(pending, childFile{name: name, index: idx})
		}
	}
	if len(pending) == 0 && !hasStubs(children) {
		return children, nil
	}

	slots := append([]any(nil), children...)
	for _, f := range pending {
		for len(slots) <= f.index {
			slots = append(slots, placeholder{})
		}
		switch current := slots[f.index].(type) {
		case placeholder:
		case map[string]any:
			if ref, _ := current[fieldChildFile].(string); ref != f.name {
				m.report.UnmatchedFiles = append(m.report.UnmatchedFiles, f.name)
				continue
			}
		default:
			m.report.UnmatchedFiles = append(m.report.UnmatchedFiles, f.name)
			continue
		}
		value, _, err := m.load(f.name)
		if err != nil {
			return nil, err
		}
		slots[f.index] = value
	}

	out := slots[:0]
	for i, slot := range slots {
		switch v := slot.(type) {
		case placeholder:
			continue
		case map[string]any:
			if ref, ok := v[fieldChildFile].(string); ok {
				m.report.UnmatchedReferences = append(m.report.UnmatchedReferences,
					UnmatchedReference{Path: fmt.Sprintf("scene.children[%d].%s", i, fieldChildFile), File: ref})
				continue
			}
			if err := m.mergeGeometry(v, i); err != nil {
				return nil, err
			}
		}
		out = append(out, slot)
	}
	return out, nil
}

func (m *merger) mergeGeometry(child map[string]any, index int) error {
	name, ok := child[fieldGeometryFile].(string)
	if !ok {
		return nil
	}
	value, found, err := m.load(name)
	if err != nil {
		return err
	}
	delete(child, fieldGeometryFile)
	if !found {
		m.report.UnmatchedReferences = append(m.report.UnmatchedReferences,
			UnmatchedReference{Path: fmt.Sprintf("scene.children[%d].%s", index, fieldGeometryFile), File: name})
		return nil
	}
	child[fieldGeometry] = value
	return nil
}

// load decodes a side file. Each call decodes afresh so shared files never
// alias between slots.
func (m *merger) load(name string) (any, bool, error) {
	data, ok := m.files[name]
	if !ok {
		return nil, false, nil
	}
	value, err := project.DecodeValue(data)
	if err != nil {
		return nil, false, fmt.Errorf("decode side file %s: %w", name, err)
	}
	value, err = m.expandCompressed(value)
	if err != nil {
		return nil, false, fmt.Errorf("expand side file %s: %w", name, err)
	}
	if !m.used[name] {
		m.used[name] = true
		m.report.Merged = append(m.report.Merged, name)
	}
	return value, true, nil
}

// expandCompressed replaces every compressed track envelope inside v with its
// long form.
func (m *merger) expandCompressed(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if codec.IsCompressed(t) {
			c, err := codec.FromMap(t)
			if err != nil {
				return nil, err
			}
			doc, problems := codec.Decompress(c)
			m.report.TrackProblems = append(m.report.TrackProblems, problems...)
			return codec.ToMap(doc)
		}
		for k, child := range t {
			expanded, err := m.expandCompressed(child)
			if err != nil {
				return nil, err
			}
			t[k] = expanded
		}
		return t, nil
	case []any:
		for i, child := range t {
			switch child.(type) {
			case map[string]any, []any:
			default:
				continue
			}
			expanded, err := m.expandCompressed(child)
			if err != nil {
				return nil, err
			}
			t[i] = expanded
		}
		return t, nil
	default:
		return v, nil
	}
}

func hasStubs(children []any) bool {
	for _, child := range children {
		if obj, ok := child.(map[string]any); ok {
			if _, ok := obj[fieldChildFile]; ok {
				return true
			}
			if _, ok := obj[fieldGeometryFile]; ok {
				return true
			}
		}
	}
	return false
}

func sortedNames[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
