// Package manifest is the typed representation of a project declaration
// (pesde.toml) and its lockfile (pesde.lock), per spec.md §3/§6. Field
// order on every exported struct is the wire contract: BurntSushi/toml
// encodes struct fields in declaration order, so reordering a field
// here reorders the written TOML.
package manifest

import (
	"fmt"
	"regexp"

	"github.com/pesde-pkg/pesde-go/internal/errdefs"
)

// TargetKind is the closed set of runtime targets a package can declare
// (spec.md §3).
type TargetKind string

const (
	TargetLuau         TargetKind = "luau"
	TargetLune         TargetKind = "lune"
	TargetRoblox       TargetKind = "roblox"
	TargetRobloxServer TargetKind = "roblox_server"
)

// Valid reports whether t is one of the four closed target kinds.
func (t TargetKind) Valid() bool {
	switch t {
	case TargetLuau, TargetLune, TargetRoblox, TargetRobloxServer:
		return true
	}
	return false
}

// IsRoblox reports whether t is either Roblox variant, which gate the
// build_files/place/sync-tool machinery.
func (t TargetKind) IsRoblox() bool {
	return t == TargetRoblox || t == TargetRobloxServer
}

// Compatible reports whether a consumer declaring want may depend on a
// package declaring have, per the invariant in spec.md §3: game-client
// accepts game-server code, but not vice versa; every other pair must
// match exactly.
func (want TargetKind) Compatible(have TargetKind) bool {
	if want == have {
		return true
	}
	return want == TargetRoblox && have == TargetRobloxServer
}

// Target is the `[target]` table: library/binary entry points, exported
// scripts, and (roblox* only) files to surface to a sync tool.
type Target struct {
	Environment TargetKind        `toml:"environment"`
	Lib         string            `toml:"lib,omitempty"`
	Bin         string            `toml:"bin,omitempty"`
	Scripts     map[string]string `toml:"scripts,omitempty"`
	BuildFiles  []string          `toml:"build_files,omitempty"`
}

// HasLib/HasBin report whether the target exports a library or binary
// entry point; a Target may legally declare either, both, or (for a
// scripts-only package) neither.
func (t Target) HasLib() bool { return t.Lib != "" }
func (t Target) HasBin() bool { return t.Bin != "" }

// ScopeName is the `scope/name` pair identifying a package, each half
// restricted to lowercase ASCII, digits, and underscores (spec.md §3).
type ScopeName struct {
	Scope string
	Name  string
}

var scopeNameComponent = regexp.MustCompile(`^[a-z0-9_]+$`)

// ParseScopeName validates and splits a "scope/name" string.
func ParseScopeName(s string) (ScopeName, error) {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			scope, name := s[:i], s[i+1:]
			if scopeNameComponent.MatchString(scope) && scopeNameComponent.MatchString(name) && name != "" {
				return ScopeName{Scope: scope, Name: name}, nil
			}
			break
		}
	}
	return ScopeName{}, errdefs.New(errdefs.InvalidName, fmt.Sprintf("%q is not a valid scope/name", s))
}

func (sn ScopeName) String() string { return sn.Scope + "/" + sn.Name }

// DependencySpec is the tagged-sum dependency specifier of spec.md §3.
// Exactly one of Name, Wally, Repo, Workspace, Path identifies the
// source kind; the remaining fields are interpreted according to which
// one is set. This mirrors the inline-table shapes a hand-written
// pesde.toml actually uses, e.g.:
//
//	dep = { name = "scope/pkg", version = "^1.0.0" }
//	dep = { wally = "scope/pkg", version = "^1.0.0", index = "wally" }
//	dep = { repo = "https://github.com/a/b", rev = "main", sub_path = "lib" }
//	dep = { workspace = "scope/pkg", version = "~" }
//	dep = { path = "../local-pkg" }
type DependencySpec struct {
	Name      string `toml:"name,omitempty"`
	Wally     string `toml:"wally,omitempty"`
	Repo      string `toml:"repo,omitempty"`
	Workspace string `toml:"workspace,omitempty"`
	Path      string `toml:"path,omitempty"`

	Version string `toml:"version,omitempty"`
	Index   string `toml:"index,omitempty"`
	Target  string `toml:"target,omitempty"`
	Rev     string `toml:"rev,omitempty"`
	SubPath string `toml:"sub_path,omitempty"`
}

// SourceKind enumerates the five dependency sources of spec.md §4.2.
type SourceKind string

const (
	SourceRegistry  SourceKind = "registry"
	SourceForeign   SourceKind = "foreign"
	SourceGit       SourceKind = "git"
	SourceWorkspace SourceKind = "workspace"
	SourcePath      SourceKind = "path"
)

// Kind infers the source kind from which fields are populated.
func (d DependencySpec) Kind() (SourceKind, error) {
	set := 0
	var kind SourceKind
	if d.Wally != "" {
		set++
		kind = SourceForeign
	}
	if d.Repo != "" {
		set++
		kind = SourceGit
	}
	if d.Workspace != "" {
		set++
		kind = SourceWorkspace
	}
	if d.Path != "" {
		set++
		kind = SourcePath
	}
	if d.Name != "" {
		set++
		kind = SourceRegistry
	}
	if set == 0 {
		return "", errdefs.New(errdefs.MalformedManifest, "dependency specifies no source")
	}
	if set > 1 {
		return "", errdefs.New(errdefs.MalformedManifest, "dependency specifies more than one source")
	}
	return kind, nil
}

// DependencyKind is where in the manifest a dependency was declared,
// which governs install/publish semantics (spec.md §3).
type DependencyKind string

const (
	DepStandard DependencyKind = "standard"
	DepPeer     DependencyKind = "peer"
	DepDev      DependencyKind = "dev"
)

// Override is an `[overrides]` entry. A literal replacement specifier is
// given directly; AliasOf instead names one of the root's own
// dependencies, whose spec is substituted in its place (spec.md §4.1).
type Override struct {
	AliasOf string `toml:"alias_of,omitempty"`
	DependencySpec
}

func (o Override) IsAliasRef() bool { return o.AliasOf != "" }

// PatchTarget locates the (package, version, target) triple a patch
// applies to.
type PatchTarget struct {
	Name    string
	Version string
	Target  TargetKind
}

// Manifest is the full `pesde.toml` model (spec.md §3/§6).
type Manifest struct {
	Name        ScopeName `toml:"name"`
	Version     string    `toml:"version"`
	Description string    `toml:"description,omitempty"`
	License     string    `toml:"license,omitempty"`
	Authors     []string  `toml:"authors,omitempty"`
	Repository  string    `toml:"repository,omitempty"`
	Private     bool      `toml:"private,omitempty"`

	Includes        []string `toml:"includes,omitempty"`
	WorkspaceMembers []string `toml:"workspace_members,omitempty"`

	Target Target `toml:"target"`

	// Scripts holds the `[scripts]` table of named script paths, e.g.
	// the roblox_sync_config_generator entry (spec.md §4.6).
	Scripts map[string]string `toml:"scripts,omitempty"`

	Indices      map[string]string `toml:"indices,omitempty"`
	WallyIndices map[string]string `toml:"wally_indices,omitempty"`

	Overrides map[string]Override        `toml:"overrides,omitempty"`
	Patches   map[string][]string        `toml:"patches,omitempty"` // "name@version/target" -> patch file paths
	Place     map[string]string          `toml:"place,omitempty"`
	Engines   map[string]string          `toml:"engines,omitempty"`

	Dependencies     map[string]DependencySpec `toml:"dependencies,omitempty"`
	PeerDependencies map[string]DependencySpec `toml:"peer_dependencies,omitempty"`
	DevDependencies  map[string]DependencySpec `toml:"dev_dependencies,omitempty"`

	// EnableScriptsPackages gates the scripts-package mechanism, which
	// spec.md §9 flags as slated for removal; kept isolated so the
	// whole feature can be deleted in one piece later.
	EnableScriptsPackages bool `toml:"enable_scripts_packages,omitempty"`
}

// IsWorkspaceRoot reports whether this manifest declares workspace
// members, i.e. is a multi-member workspace root (spec.md §3, §4.2).
func (m Manifest) IsWorkspaceRoot() bool { return len(m.WorkspaceMembers) > 0 }

// AllDependencies returns every declared dependency across the three
// kind-tables, tagged with its DependencyKind.
type TaggedDependency struct {
	Alias string
	Kind  DependencyKind
	Spec  DependencySpec
}

func (m Manifest) AllDependencies() []TaggedDependency {
	out := make([]TaggedDependency, 0, len(m.Dependencies)+len(m.PeerDependencies)+len(m.DevDependencies))
	for alias, spec := range m.Dependencies {
		out = append(out, TaggedDependency{Alias: alias, Kind: DepStandard, Spec: spec})
	}
	for alias, spec := range m.PeerDependencies {
		out = append(out, TaggedDependency{Alias: alias, Kind: DepPeer, Spec: spec})
	}
	for alias, spec := range m.DevDependencies {
		out = append(out, TaggedDependency{Alias: alias, Kind: DepDev, Spec: spec})
	}
	return out
}
