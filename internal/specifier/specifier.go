// Package specifier normalizes the heterogeneous ways a project can
// name a dependency into a single canonical, source-qualified
// identifier plus version constraint (spec.md §4.1).
package specifier

import (
	"strings"

	"github.com/pesde-pkg/pesde-go/internal/errdefs"
	"github.com/pesde-pkg/pesde-go/internal/manifest"
)

// CanonicalSpec is the output of Normalize: a fully resolved dependency
// statement ready to be handed to a source.Adapter.
type CanonicalSpec struct {
	Source SourceKind
	// CanonicalName is scope/name for registry/workspace, the sanitized
	// foreign name for foreign, the repo URL (plus "#<sub-path>" when one
	// is given) for git, and the directory for path.
	CanonicalName string
	Constraint    string // version-range string, semantics per Source
	IndexURL      string // resolved index URL (registry/foreign only)
	TargetOverride *manifest.TargetKind
	GitRev        string
	GitSubPath    string
	Path          string
}

type SourceKind = manifest.SourceKind

const (
	SourceRegistry  = manifest.SourceRegistry
	SourceForeign   = manifest.SourceForeign
	SourceGit       = manifest.SourceGit
	SourceWorkspace = manifest.SourceWorkspace
	SourcePath      = manifest.SourcePath
)

// IndexPolicy restricts which source kinds a registry allows in
// packages published to it (spec.md §4.1 DisallowedSourceKind,
// §4.2's native-registry "policy" fields).
type IndexPolicy struct {
	AllowGit     bool
	AllowForeign bool
	AllowPath    bool
}

// ProjectContext supplies the alias tables a manifest declares, needed
// to resolve an index alias to a URL.
type ProjectContext struct {
	Indices      map[string]string
	WallyIndices map[string]string
	// Policy is the publishing registry's policy, when known (nil when
	// normalizing for a plain install, where any source kind is fine).
	Policy *IndexPolicy
}

// Normalize resolves index aliases to URLs, validates an explicit
// target override (defaultTarget is not consulted; the caller applies
// the default when TargetOverride is nil), validates name syntax, and enforces a publishing registry's
// disallowed-source-kind policy when one is supplied.
func Normalize(spec manifest.DependencySpec, defaultTarget manifest.TargetKind, ctx ProjectContext) (CanonicalSpec, error) {
	kind, err := spec.Kind()
	if err != nil {
		return CanonicalSpec{}, err
	}

	var targetOverride *manifest.TargetKind
	if spec.Target != "" {
		tk := manifest.TargetKind(spec.Target)
		if !tk.Valid() {
			return CanonicalSpec{}, errdefs.New(errdefs.UnknownTarget, spec.Target)
		}
		targetOverride = &tk
	}

	switch kind {
	case SourceRegistry:
		sn, err := manifest.ParseScopeName(spec.Name)
		if err != nil {
			return CanonicalSpec{}, err
		}
		idxURL, err := resolveIndex(spec.Index, ctx.Indices, "default")
		if err != nil {
			return CanonicalSpec{}, err
		}
		return CanonicalSpec{
			Source:         SourceRegistry,
			CanonicalName:  sn.String(),
			Constraint:     spec.Version,
			IndexURL:       idxURL,
			TargetOverride: targetOverride,
		}, nil

	case SourceForeign:
		if ctx.Policy != nil && !ctx.Policy.AllowForeign {
			return CanonicalSpec{}, errdefs.New(errdefs.DisallowedSourceKind, "foreign-registry dependencies are disallowed by the publishing index")
		}
		idxURL, err := resolveIndex(spec.Index, ctx.WallyIndices, "wally")
		if err != nil {
			return CanonicalSpec{}, err
		}
		return CanonicalSpec{
			Source:        SourceForeign,
			CanonicalName: SanitizeForeignName(spec.Wally),
			Constraint:    spec.Version,
			IndexURL:      idxURL,
		}, nil

	case SourceGit:
		if ctx.Policy != nil && !ctx.Policy.AllowGit {
			return CanonicalSpec{}, errdefs.New(errdefs.DisallowedSourceKind, "git dependencies are disallowed by the publishing index")
		}
		gitName := spec.Repo
		if spec.SubPath != "" {
			gitName += "#" + spec.SubPath
		}
		return CanonicalSpec{
			Source:        SourceGit,
			CanonicalName: gitName,
			GitRev:        spec.Rev,
			GitSubPath:    spec.SubPath,
		}, nil

	case SourceWorkspace:
		sn, err := manifest.ParseScopeName(spec.Workspace)
		if err != nil {
			return CanonicalSpec{}, err
		}
		return CanonicalSpec{
			Source:         SourceWorkspace,
			CanonicalName:  sn.String(),
			Constraint:     spec.Version,
			TargetOverride: targetOverride,
		}, nil

	case SourcePath:
		if ctx.Policy != nil && !ctx.Policy.AllowPath {
			return CanonicalSpec{}, errdefs.New(errdefs.DisallowedSourceKind, "path dependencies are disallowed by the publishing index")
		}
		return CanonicalSpec{
			Source:        SourcePath,
			CanonicalName: spec.Path,
			Path:          spec.Path,
		}, nil
	}

	return CanonicalSpec{}, errdefs.New(errdefs.MalformedManifest, "unreachable dependency kind")
}

func resolveIndex(alias string, table map[string]string, fallback string) (string, error) {
	if alias == "" {
		alias = fallback
	}
	url, ok := table[alias]
	if !ok {
		return "", errdefs.New(errdefs.UnknownIndex, alias)
	}
	return url, nil
}

// SanitizeForeignName applies the foreign registry's distinct naming
// sanitization (spec.md §4.2): lowercase, and characters outside
// [a-z0-9-_/] collapsed to '-' (the scope separator is kept).
func SanitizeForeignName(name string) string {
	name = strings.ToLower(name)
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '/' {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}
	return b.String()
}
