package packager

import (
	"fmt"
	"path"
	"strings"

	"animstore/internal/config"
)

const (
	ManifestName     = "project_info.json"
	BaseDocumentName = "project.json"

	DefaultTimelineFileName      = "timeline_data.json"
	DefaultMusicFileName         = "music_data.json"
	DefaultHistoryFileName       = "history_data.json"
	DefaultChildrenSizeThreshold = 4 << 20
	DefaultChildVertexThreshold  = 10000
	DefaultChildSizeThreshold    = 512 << 10
)

// Policy controls which parts of a project are extracted into side files.
// Zero thresholds and empty names fall back to the defaults.
type Policy struct {
	SplitTimeline         bool   `json:"splitTimeline"`
	SplitMusic            bool   `json:"splitMusic"`
	SplitHistory          bool   `json:"splitHistory"`
	ForceSplit            bool   `json:"forceSplit"`
	TimelineFileName      string `json:"timelineFileName,omitempty"`
	MusicFileName         string `json:"musicFileName,omitempty"`
	HistoryFileName       string `json:"historyFileName,omitempty"`
	ChildrenSizeThreshold int    `json:"childrenSizeThreshold,omitempty"`
	ChildVertexThreshold  int    `json:"childVertexThreshold,omitempty"`
	ChildSizeThreshold    int    `json:"childSizeThreshold,omitempty"`
}

// DefaultPolicy extracts every sub-document and uses default thresholds.
func DefaultPolicy() Policy {
	return Policy{SplitTimeline: true, SplitMusic: true, SplitHistory: true}.withDefaults()
}

// PolicyFromConfig maps the [packager] config section onto a Policy.
func PolicyFromConfig(cfg config.Packager) Policy {
	return Policy{
		SplitTimeline:         cfg.SplitTimeline,
		SplitMusic:            cfg.SplitMusic,
		SplitHistory:          cfg.SplitHistory,
		ForceSplit:            cfg.ForceSplit,
		TimelineFileName:      cfg.TimelineFileName,
		MusicFileName:         cfg.MusicFileName,
		HistoryFileName:       cfg.HistoryFileName,
		ChildrenSizeThreshold: cfg.ChildrenSizeThreshold,
		ChildVertexThreshold:  cfg.ChildVertexThreshold,
		ChildSizeThreshold:    cfg.ChildSizeThreshold,
	}.withDefaults()
}

func (p Policy) withDefaults() Policy {
	p.TimelineFileName = defaultString(p.TimelineFileName, DefaultTimelineFileName)
	p.MusicFileName = defaultString(p.MusicFileName, DefaultMusicFileName)
	p.HistoryFileName = defaultString(p.HistoryFileName, DefaultHistoryFileName)
	if p.ChildrenSizeThreshold <= 0 {
		p.ChildrenSizeThreshold = DefaultChildrenSizeThreshold
	}
	if p.ChildVertexThreshold <= 0 {
		p.ChildVertexThreshold = DefaultChildVertexThreshold
	}
	if p.ChildSizeThreshold <= 0 {
		p.ChildSizeThreshold = DefaultChildSizeThreshold
	}
	return p
}

func (p Policy) validate() error {
	seen := map[string]string{}
	for _, entry := range []struct{ field, name string }{
		{"timelineFileName", p.TimelineFileName},
		{"musicFileName", p.MusicFileName},
		{"historyFileName", p.HistoryFileName},
	} {
		if entry.name != path.Base(entry.name) || strings.ContainsAny(entry.name, `\`) {
			return fmt.Errorf("policy %s: %q is not a plain file name", entry.field, entry.name)
		}
		if entry.name == ManifestName || entry.name == BaseDocumentName {
			return fmt.Errorf("policy %s: %q is reserved", entry.field, entry.name)
		}
		if other, ok := seen[entry.name]; ok {
			return fmt.Errorf("policy %s: %q already used by %s", entry.field, entry.name, other)
		}
		seen[entry.name] = entry.field
	}
	return nil
}

func defaultString(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
