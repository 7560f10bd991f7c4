// Package manifest defines the single interface every format-specific
// parser implements, so the Monitor state machine (C5) can stay
// format-agnostic. This generalizes the "three format branches in one
// giant function" pattern the design document flags for re-architecture.
package manifest

import "github.com/ericcug/streamcanary/internal/canon"

// Parser turns raw manifest bytes into the canonical ManifestView. It is
// pure: no I/O, no logging, errors propagate as a ParseError.
type Parser interface {
	Parse(data []byte, baseURL string) (*canon.ManifestView, error)
}

// ParseError wraps a parser failure with the byte offset or tag where it
// occurred, when known.
type ParseError struct {
	Format string
	Reason string
}

func (e *ParseError) Error() string { return e.Format + " parse error: " + e.Reason }
