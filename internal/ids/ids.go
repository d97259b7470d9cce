// Package ids mints opaque keyframe identifiers.
//
// Tracks never call a global random source directly; they receive a
// Generator so tests can swap in a deterministic Counter while production
// code uses UUIDs.
package ids

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique identifiers.
type Generator interface {
	Next() string
}

// UUID generates random RFC 4122 identifiers.
type UUID struct{}

// Next returns a new UUID string.
func (UUID) Next() string {
	return uuid.NewString()
}

// Counter generates monotonically increasing identifiers with a prefix.
// Safe for concurrent use.
type Counter struct {
	prefix string
	n      atomic.Uint64
}

// NewCounter returns a counter whose first id is "<prefix>1".
func NewCounter(prefix string) *Counter {
	return &Counter{prefix: prefix}
}

// Next returns the next identifier in sequence.
func (c *Counter) Next() string {
	return c.prefix + strconv.FormatUint(c.n.Add(1), 10)
}

// New returns the generator named by format: "uuid" (default) or "counter".
func New(format string) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "uuid":
		return UUID{}, nil
	case "counter":
		return NewCounter("kf-"), nil
	default:
		return nil, fmt.Errorf("unknown id format %q", format)
	}
}
