package specifier

import "strings"

// Alias pairs the normalized (lowercase) form of a dependency alias
// used as map/graph-path key with the original casing the user wrote,
// preserved for display. Nothing outside this file constructs an Alias:
// graph paths, manifest dependency maps and lockfile edges all key
// aliases exactly as written, so alias lookups are case-sensitive.
type Alias struct {
	Normalized string
	Display    string
}

// NewAlias lowercases raw for the key while remembering its original
// casing.
func NewAlias(raw string) Alias {
	return Alias{Normalized: strings.ToLower(raw), Display: raw}
}
