// Package tags holds the fault kinds shared across packages, so callers at
// the edges (TUI status line, HTTP handlers) can react to a failure class
// without matching on messages.
package tags

import "github.com/Southclaws/fault/ftag"

const (
	Precondition    ftag.Kind = "precondition"
	InvalidArgument ftag.Kind = "invalid_argument"
	Parse           ftag.Kind = "parse"
	Trigger         ftag.Kind = "trigger"
	NotFound        ftag.Kind = "not_found"
	IO              ftag.Kind = "io"
)

// Is reports whether err carries the given kind
func Is(err error, kind ftag.Kind) bool {
	return err != nil && ftag.Get(err) == kind
}
