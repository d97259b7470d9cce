package packager

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/errgroup"

	"animstore/internal/logging"
	"animstore/internal/metrics"
	"animstore/internal/project"
)

// ManifestVersion is written to every new archive.
const ManifestVersion = 1

// Manifest is the project_info.json entry.
type Manifest struct {
	Version       int       `json:"version"`
	Files         []string  `json:"files"`
	FileCount     int       `json:"fileCount"`
	SideFileCount int       `json:"sideFileCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Pack writes split as a zip archive: the base document, every side file,
// and the manifest.
func (p *Packager) Pack(ctx context.Context, w io.Writer, split *SplitResult) (err error) {
	cw := &countingWriter{w: w}
	defer func() {
		metrics.RecordArchive("pack", err, cw.n)
	}()
	if split == nil || split.Base == nil {
		return ErrMissingBaseDocument
	}

	base, err := json.Marshal(split.Base)
	if err != nil {
		return fmt.Errorf("encode base document: %w", err)
	}

	manifest := Manifest{
		Version:       ManifestVersion,
		Files:         make([]string, 0, len(split.Files)+1),
		SideFileCount: len(split.Files),
		CreatedAt:     p.now().UTC(),
	}
	manifest.Files = append(manifest.Files, BaseDocumentName)
	seen := map[string]bool{BaseDocumentName: true, ManifestName: true}
	for _, f := range split.Files {
		if seen[f.Name] {
			return fmt.Errorf("duplicate archive entry %q", f.Name)
		}
		seen[f.Name] = true
		manifest.Files = append(manifest.Files, f.Name)
	}
	manifest.FileCount = len(manifest.Files)
	manifestData, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	zw := zip.NewWriter(cw)
	if err := p.writeEntry(ctx, zw, BaseDocumentName, base); err != nil {
		_ = zw.Close()
		return err
	}
	for _, f := range split.Files {
		if err := p.writeEntry(ctx, zw, f.Name, f.Data); err != nil {
			_ = zw.Close()
			return err
		}
	}
	if err := p.writeEntry(ctx, zw, ManifestName, manifestData); err != nil {
		_ = zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}

	p.logger.Info("archive packed",
		logging.Int("entries", manifest.FileCount),
		logging.Int64(logging.FieldBytes, cw.n))
	return nil
}

func (p *Packager) writeEntry(ctx context.Context, zw *zip.Writer, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	header := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: p.now()}
	entry, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", name, err)
	}
	if _, err := entry.Write(data); err != nil {
		return fmt.Errorf("write entry %s: %w", name, err)
	}
	return nil
}

// Unpack reads an archive and merges its side files back into the base
// document. A missing manifest or base document fails the load; reference
// problems are returned in the report. Nothing outside the returned document
// is modified, so a caller that discards it on error keeps its prior state.
func (p *Packager) Unpack(ctx context.Context, r io.ReaderAt, size int64) (doc project.Document, report *MergeReport, err error) {
	defer func() {
		metrics.RecordArchive("unpack", err, size)
	}()

	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, nil, fmt.Errorf("open archive: %w", err)
	}
	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		entries[f.Name] = f
	}

	manifestEntry, ok := entries[ManifestName]
	if !ok {
		return nil, nil, ErrMissingManifest
	}
	manifestData, err := p.readEntry(manifestEntry)
	if err != nil {
		return nil, nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return nil, nil, fmt.Errorf("decode manifest: %w", err)
	}

	baseEntry, ok := entries[BaseDocumentName]
	if !ok {
		return nil, nil, ErrMissingBaseDocument
	}
	baseData, err := p.readEntry(baseEntry)
	if err != nil {
		return nil, nil, err
	}
	base, err := project.Parse(baseData)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", BaseDocumentName, err)
	}

	files, err := p.readSideFiles(ctx, manifest, entries)
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return p.Merge(base, files)
}

func (p *Packager) readSideFiles(ctx context.Context, manifest Manifest, entries map[string]*zip.File) (map[string][]byte, error) {
	var (
		mu    sync.Mutex
		files = make(map[string][]byte, len(manifest.Files))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, name := range manifest.Files {
		if name == BaseDocumentName || name == ManifestName {
			continue
		}
		if !isPlainName(name) {
			logging.WarnWithContext(p.logger, "manifest entry ignored", "packager_unsafe_entry",
				logging.String(logging.FieldSideFile, name),
				logging.String(logging.FieldImpact, "entry not loaded"))
			continue
		}
		entry, ok := entries[name]
		if !ok {
			p.logger.Debug("manifest lists missing entry", logging.String(logging.FieldSideFile, name))
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := p.readEntry(entry)
			if err != nil {
				return err
			}
			mu.Lock()
			files[name] = data
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

func (p *Packager) readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, p.maxEntryBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read entry %s: %w", f.Name, err)
	}
	if int64(len(data)) > p.maxEntryBytes {
		return nil, fmt.Errorf("entry %s exceeds %d bytes", f.Name, p.maxEntryBytes)
	}
	return data, nil
}

func isPlainName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.n += int64(n)
	return n, err
}
