// Package codec converts track documents to and from their compact wire form.
//
// The compact form keeps the document's nesting but replaces each track's
// arrays with comma-joined decimal strings: times rounded to three decimals,
// values to two, interpolation kinds as integers. The envelope renames
// maxTime and frameRate to "t" and "f" and holds tracks under "k". Tracks
// without keyframes are omitted.
//
// Compression is lossy at the declared precision. A malformed string fails
// only the track that carries it; Decompress reports a DecodeError for that
// track and returns every other track intact.
//
// # Key Types
//
//   - Codec: compresses a trackset.Document at a configured precision.
//   - Compressed, CompressedTrack: the compact envelope and leaf.
//   - DecodeError: a per-track parse failure.
package codec
