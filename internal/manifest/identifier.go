package manifest

import "fmt"

// Identifier is the unique key of a graph node: (source-kind,
// canonical-name, resolved-version, target). Uniqueness is per
// (source-kind, canonical-name, version, target), which is why the
// graph may hold multiple targets of the same name (spec.md §3).
type Identifier struct {
	Source  SourceKind
	Name    string // canonical name, already sanitized for the source kind
	Version string // resolved, exact version
	Target  TargetKind
}

// String renders the canonical, sortable serialization used as both
// the graph's map key and the lockfile's on-disk key. Component order
// matches spec.md §6's "alphabetical by identifier components" rule.
func (id Identifier) String() string {
	return fmt.Sprintf("%s:%s@%s:%s", id.Source, id.Name, id.Version, id.Target)
}

// ManifestSummary is the slice of a resolved package's manifest the
// graph needs: enough to expand its dependencies and to materialize it
// later, without carrying the full Manifest (descriptions, authors,
// etc.) into the lockfile.
type ManifestSummary struct {
	Identifier   Identifier
	Lib          string
	Bin          string
	Scripts      map[string]string
	BuildFiles   []string
	Dependencies []TaggedDependency
	Deprecated   bool
	Yanked       bool
}
