package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"animstore/internal/catalog"
	"animstore/internal/fileutil"
	"animstore/internal/logging"
	"animstore/internal/metrics"
	"animstore/internal/packager"
	"animstore/internal/trackset"
)

// SaveResult describes a written archive.
type SaveResult struct {
	Path      string
	Bytes     int64
	SideFiles int
	Tracks    int
	Keyframes int
	Backup    string
}

// LoadResult describes a loaded archive. Report and TrackProblems list what
// could not be reconciled; the load still succeeded.
type LoadResult struct {
	Path          string
	Bytes         int64
	Tracks        int
	Keyframes     int
	Report        *packager.MergeReport
	TrackProblems []trackset.TrackError
}

// Problems returns the total number of reconciliation problems.
func (r *LoadResult) Problems() int {
	n := len(r.TrackProblems)
	if r.Report != nil {
		n += len(r.Report.UnmatchedReferences) + len(r.Report.UnmatchedFiles)
	}
	return n
}

// Save writes the live state to path as an archive.
func (w *Workspace) Save(ctx context.Context, path string) (*SaveResult, error) {
	if path == "" {
		return nil, fmt.Errorf("save: archive path is required")
	}
	dir := filepath.Dir(path)
	if err := fileutil.CheckWritableDir(dir); err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}
	unlock, err := fileutil.Lock(path)
	if err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}
	defer func() { _ = unlock() }()

	doc := w.doc.Clone()
	if err := doc.SetAnimation(w.set, w.codec); err != nil {
		return nil, fmt.Errorf("save: embed animation: %w", err)
	}
	split, err := w.packager.Split(doc, w.policy)
	if err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}
	need := uint64(split.Size()) + uint64(max(w.cfg.Packager.MinFreeBytes, 0))
	if err := fileutil.EnsureFreeSpace(dir, need); err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}

	result := &SaveResult{
		Path:      path,
		SideFiles: len(split.Files),
		Tracks:    w.set.Len(),
		Keyframes: w.set.KeyframeCount(),
	}
	if w.backup {
		if _, statErr := os.Stat(path); statErr == nil {
			result.Backup = path + ".bak"
			if err := fileutil.CopyFileVerified(path, result.Backup); err != nil {
				return nil, fmt.Errorf("save: backup: %w", err)
			}
		}
	}

	err = fileutil.WriteAtomic(path, 0o644, func(out io.Writer) error {
		return w.packager.Pack(ctx, out, split)
	})
	if err != nil {
		logging.ErrorWithContext(w.logger, "archive write failed", "save_failed",
			logging.String(logging.FieldArchive, path),
			logging.String(logging.FieldErrorHint, "previous archive left in place"),
			logging.Error(err))
		return nil, fmt.Errorf("save: %w", err)
	}
	if info, statErr := os.Stat(path); statErr == nil {
		result.Bytes = info.Size()
	}

	w.path = path
	w.logger.Info("project saved",
		logging.String(logging.FieldArchive, path),
		logging.Int64(logging.FieldBytes, result.Bytes),
		logging.Int("side_files", result.SideFiles),
		logging.Int(logging.FieldTrackCount, result.Tracks),
		logging.Int(logging.FieldKeyframes, result.Keyframes))

	w.record(ctx, catalog.Event{
		Path:      path,
		Operation: catalog.OperationSave,
		Bytes:     result.Bytes,
		SideFiles: result.SideFiles,
		Tracks:    result.Tracks,
		Keyframes: result.Keyframes,
		MaxTime:   w.set.MaxTime(),
		FrameRate: w.set.FrameRate(),
	})
	return result, nil
}

// Load reads the archive at path and replaces the live state with it. On
// error the previous state is kept.
func (w *Workspace) Load(ctx context.Context, path string) (*LoadResult, error) {
	unlock, err := fileutil.Lock(path)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	defer func() { _ = unlock() }()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}

	doc, report, err := w.packager.Unpack(ctx, f, info.Size())
	if err != nil {
		logging.ErrorWithContext(w.logger, "archive read failed", "load_failed",
			logging.String(logging.FieldArchive, path),
			logging.String(logging.FieldErrorHint, "workspace state unchanged"),
			logging.Error(err))
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	set, problems, err := w.rehydrate(doc)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &LoadResult{
		Path:          path,
		Bytes:         info.Size(),
		Tracks:        set.Len(),
		Keyframes:     set.KeyframeCount(),
		Report:        report,
		TrackProblems: append(append([]trackset.TrackError(nil), report.TrackProblems...), problems...),
	}
	w.install(doc, set, path)

	if n := len(result.TrackProblems); n > 0 {
		metrics.TrackProblems.Add(float64(n))
	}
	for _, problem := range result.TrackProblems {
		w.logger.Debug("track problem",
			logging.String(logging.FieldObjectID, problem.Key.ObjectID),
			logging.String(logging.FieldProperty, problem.Key.Property),
			logging.Int("index", problem.Index),
			logging.Error(problem.Err))
	}
	if report != nil && !report.Clean() {
		logging.WarnWithContext(w.logger, "archive loaded with problems", "load_problems",
			logging.String(logging.FieldArchive, path),
			logging.Int("unmatched_references", len(report.UnmatchedReferences)),
			logging.Int("unmatched_files", len(report.UnmatchedFiles)),
			logging.Int("track_problems", len(result.TrackProblems)),
			logging.String(logging.FieldErrorHint, "run animstore inspect to list the affected entries"))
	}
	w.logger.Info("project loaded",
		logging.String(logging.FieldArchive, path),
		logging.Int64(logging.FieldBytes, result.Bytes),
		logging.Int(logging.FieldTrackCount, result.Tracks),
		logging.Int(logging.FieldKeyframes, result.Keyframes))

	w.record(ctx, catalog.Event{
		Path:      path,
		Operation: catalog.OperationLoad,
		Bytes:     result.Bytes,
		SideFiles: len(report.Merged),
		Tracks:    result.Tracks,
		Keyframes: result.Keyframes,
		MaxTime:   set.MaxTime(),
		FrameRate: set.FrameRate(),
		Problems:  result.Problems(),
	})
	return result, nil
}

// record appends to the catalog. A catalog failure never fails the pipeline
// that already touched disk.
func (w *Workspace) record(ctx context.Context, event catalog.Event) {
	if w.catalog == nil {
		return
	}
	if _, err := w.catalog.Record(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
		logging.WarnWithContext(w.logger, "catalog record failed", "catalog_record",
			logging.String(logging.FieldArchive, event.Path),
			logging.String(logging.FieldOperation, event.Operation),
			logging.Error(err))
	}
}
