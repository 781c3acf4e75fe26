package model

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// anonymousMarker prefixes synthesized names of anonymous definitions.
const anonymousMarker = "~anonymous~"

// NewID generates a new ULID string.
func NewID() string {
	return ulid.Make().String()
}

// NewAnonymousName synthesizes a unique resource name for an anonymous module
// definition, placed in the package of near (if any).
func NewAnonymousName(near string) string {
	dir := ""
	if i := strings.LastIndexByte(near, '/'); i >= 0 {
		dir = near[:i+1]
	}
	return dir + anonymousMarker + NewID() + ".js"
}

// IsAnonymousName reports whether name was produced by NewAnonymousName.
func IsAnonymousName(name string) bool {
	return strings.Contains(name, anonymousMarker)
}
