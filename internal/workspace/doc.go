// Package workspace owns the live animation state of one project and moves
// it to and from archives on disk.
//
// A Workspace holds the project document, the track set rebuilt from its
// timeline.animation entry, and the frame cache derived from that set. Save
// embeds the set into a copy of the document (compressed when the codec is
// enabled), splits it by the configured policy, and writes the archive with a
// tmp+rename under an advisory lock. Load reads, merges, and rehydrates into
// fresh values and installs them only when every step succeeded, so a failed
// load leaves the previous state untouched.
//
// Saves and loads are recorded in the catalog when one is attached.
//
// # Key Types
//
//   - Workspace: live state plus the save and load pipeline
//   - SaveResult, LoadResult: what a pipeline run produced
package workspace
