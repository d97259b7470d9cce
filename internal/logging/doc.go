// Package logging assembles the slog loggers used by animstore.
//
// New builds either a console handler (one human-readable line per record,
// component first) or a JSON handler; the "auto" format picks the console
// handler when stderr is a terminal. The attribute helpers and Field*
// constants keep keys consistent across packages, and NewComponentLogger
// tags a logger with the owning package so library code can accept a nil
// logger without special cases.
package logging
