package packager

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingManifest reports an archive without project_info.json.
	ErrMissingManifest = errors.New("archive has no manifest")
	// ErrMissingBaseDocument reports an archive without project.json.
	ErrMissingBaseDocument = errors.New("archive has no base document")
	// ErrUnmatchedFileReference reports a reference field with no side file,
	// or a side file that could not be placed.
	ErrUnmatchedFileReference = errors.New("unmatched file reference")
)

// UnmatchedReference is a reference field whose side file is absent.
type UnmatchedReference struct {
	// Path locates the field, e.g. "timelineFile" or "scene.children[3].childFile".
	Path string
	File string
}

func (u UnmatchedReference) Error() string {
	return fmt.Sprintf("%s -> %s: %v", u.Path, u.File, ErrUnmatchedFileReference)
}

func (u UnmatchedReference) Unwrap() error { return ErrUnmatchedFileReference }
