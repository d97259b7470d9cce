// Package main hosts the animstore CLI entrypoint and command graph.
//
// The Cobra-based command tree packs JSON project documents into archives,
// unpacks and inspects them, samples and precomputes their animation tracks,
// exports track documents as JSON or YAML, and lists the save history kept
// in the catalog. It centralizes configuration resolution, logger setup, and
// workspace construction so subcommands only describe their own output.
//
// Keep this package lean: new behaviour belongs in the internal packages
// first and is surfaced here through dedicated commands or flags.
package main
