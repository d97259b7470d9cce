// Package packager splits oversized project documents into a base document
// plus named side files, writes them as a zip archive, and reverses the
// process on load.
//
// Split extracts the timeline, music, and history sub-documents when the
// policy asks for them, leaving a "<name>File" reference in their place. Scene
// children are extracted either as one collection file, when the serialized
// collection is over its threshold or ForceSplit is set, or one file per large
// child with a stub left at the child's index. The collection strategy wins
// whenever its threshold trips. Geometries shared by uuid across extracted
// children are written once to geometry_<uuid>.json.
//
// Unpack requires project_info.json and project.json; without either the load
// fails. Side files are decoded concurrently, then Merge reverses every
// reference. References without a file and files that cannot be placed are
// reported in the MergeReport rather than failing the load, and compressed
// track documents found in side files are expanded back to long form.
//
// # Key Types
//
//   - Policy: which sub-documents to extract and the size thresholds.
//   - Packager: Split, Pack, Unpack, and Merge.
//   - SplitResult, SideFile: the base document and its side files.
//   - Manifest: the project_info.json entry.
//   - MergeReport: references and files that could not be reconciled.
package packager
