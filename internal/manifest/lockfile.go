package manifest

import (
	"bytes"
	"os"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/pesde-pkg/pesde-go/internal/errdefs"
)

// ResolverVersion is stamped into every lockfile this engine writes.
// spec.md §9's Open Question ("whether `*` matches prereleases has
// changed historically") is why the lockfile must record which
// resolver semantics produced it, so a future resolver version can
// detect a stale lockfile and re-validate rather than silently trusting
// it.
const ResolverVersion = 1

// GraphNode is one entry of the flat dependency graph (spec.md §3).
// Edges map an alias at this node to the identifier it resolved to;
// self-loops are permitted and are broken (not re-expanded) by the
// resolver, but retained here for the linker.
type GraphNode struct {
	Identifier          Identifier
	Summary             ManifestSummary
	Edges               map[string]Identifier
	// IndexURL is the resolved registry/foreign index this node came
	// from, carried so the download pipeline can reconstruct the same
	// source.Adapter without re-normalizing the original specifier.
	IndexURL            string
	SourceArtifactFingerprint string
	PatchFingerprint    string // empty if unpatched
	IsPeer              bool
	IsDev               bool
}

// PublishedMember describes one name+target a workspace member
// publishes, for the lockfile's workspace layout table.
type PublishedMember struct {
	Name   ScopeName
	Target TargetKind
}

// Lockfile is the durable expression of the resolved graph (spec.md
// §3/§6).
type Lockfile struct {
	ResolverVersion     int                          `toml:"resolver_version"`
	ManifestFingerprint string                       `toml:"manifest_fingerprint"`
	Workspace           map[string]map[string][]PublishedMember `toml:"workspace,omitempty"` // workspace root name -> member relative path -> published name+target
	// RootEdges is the primary root manifest's own alias -> identifier
	// table. Roots are never graph nodes (they carry no Edges map), so
	// the linker's top-level packages-folder shims need this recorded
	// separately to relink without a re-resolve on the locked,
	// graph-unchanged fast path (spec.md §4.6).
	RootEdges map[string]Identifier `toml:"root_edges"`
	// MemberRootEdges carries the same table for every other workspace
	// member, keyed by its path relative to the primary root, so the
	// locked fast path can relink each member's own packages folder too
	// (spec.md §4.6's "for each root's chosen packages folder").
	MemberRootEdges map[string]map[string]Identifier `toml:"member_root_edges,omitempty"`
	Graph           map[string]GraphNode             `toml:"graph"` // keyed by Identifier.String()
}

// NewLockfile starts an empty lockfile stamped with the current
// resolver version.
func NewLockfile(manifestFingerprint string) *Lockfile {
	return &Lockfile{
		ResolverVersion:     ResolverVersion,
		ManifestFingerprint: manifestFingerprint,
		Workspace:           map[string]map[string][]PublishedMember{},
		RootEdges:           map[string]Identifier{},
		MemberRootEdges:     map[string]map[string]Identifier{},
		Graph:               map[string]GraphNode{},
	}
}

// IsStale reports whether this lockfile was produced by a different
// resolver version than the one currently running, per the Open
// Question recorded in spec.md §9. A stale lockfile is not rejected
// outright; callers should log a warning and re-resolve rather than
// trust the pinned versions (see spec.md §8 property 2's "respected"
// guarantee, which only holds for a lockfile of the current version).
func (l *Lockfile) IsStale() bool {
	return l.ResolverVersion != ResolverVersion
}

// SortedIdentifiers returns the graph's keys sorted for deterministic
// iteration (spec.md §4.3 point 7, §8 property 1).
func (l *Lockfile) SortedIdentifiers() []string {
	keys := make([]string, 0, len(l.Graph))
	for k := range l.Graph {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LoadLockfile reads pesde.lock from path. A missing file is not an
// error; callers should treat a nil, nil result as "no previous
// lockfile".
func LoadLockfile(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var lf Lockfile
	if _, err := toml.Decode(string(data), &lf); err != nil {
		return nil, errdefs.Wrap(err, errdefs.MalformedManifest, "decoding lockfile TOML")
	}
	return &lf, nil
}

// Encode serializes the lockfile canonically: TOML with stable
// declaration-order fields, and the Graph map's keys sorted by Go's
// map iteration through the encoder's deterministic marshaling pass
// (BurntSushi/toml sorts map keys internally for encoding maps of
// structs, so two runs over the same graph produce byte-identical
// output, which is exactly the invariant spec.md §8 property 1 tests).
func (l *Lockfile) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(l); err != nil {
		return nil, errdefs.Wrap(err, errdefs.MalformedManifest, "encoding lockfile TOML")
	}
	return buf.Bytes(), nil
}

// Save writes the encoded lockfile to path.
func (l *Lockfile) Save(path string) error {
	data, err := l.Encode()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
