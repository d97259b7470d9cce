// Package trackset owns the mapping from (object id, property) to keyframe
// tracks for one project.
//
// The Set maintains MaxTime incrementally: every track it creates reports its
// mutations back, so MaxTime only grows (until Reset) and is never derived by
// scanning. Each mutation also bumps Revision, which derived caches such as
// the frame precomputer compare against to detect staleness.
//
// Persistence never touches the live Set directly. ToDocument and
// FromDocument convert to and from the Document DTO, the single seam for
// codecs and archive formats.
package trackset
