package taste

import (
	"regexp"

	"github.com/google/uuid"
)

// The service accepts signal identifiers in exactly three shapes. Anything
// else is dropped before the request is built, never sent upstream.
var (
	urnRe       = regexp.MustCompile(`^urn:[a-z0-9_]+(?::[A-Za-z0-9._-]+)+$`)
	shortCodeRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{1,63}$`)
)

// IsURNID reports whether id is a namespaced URN identifier.
func IsURNID(id string) bool {
	return urnRe.MatchString(id)
}

// IsUUIDID reports whether id is an opaque UUID identifier.
func IsUUIDID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// IsShortCodeID reports whether id is a bare short-code identifier.
func IsShortCodeID(id string) bool {
	return shortCodeRe.MatchString(id)
}

// IsAcceptedSignalID reports whether id matches one of the accepted shapes.
func IsAcceptedSignalID(id string) bool {
	return IsURNID(id) || IsUUIDID(id) || IsShortCodeID(id)
}

// FilterSignalIDs drops every candidate that does not match an accepted
// shape, preserving order and removing duplicates.
func FilterSignalIDs(candidates []string) []string {
	seen := make(map[string]bool, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if id == "" || seen[id] || !IsAcceptedSignalID(id) {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
