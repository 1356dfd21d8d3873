package source

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/pesde-pkg/pesde-go/internal/errdefs"
	"github.com/pesde-pkg/pesde-go/internal/manifest"
)

// Workspace resolves dependencies locally against sibling members of
// the same workspace (spec.md §4.2): walk workspace_members globs
// relative to the workspace root, read each member's manifest, match by
// (name, target).
type Workspace struct {
	Root    string
	Members []string // member directories (globs joined with Root), one per workspace_members glob match
}

// NewWorkspace expands the workspace's workspace_members globs once.
func NewWorkspace(root string, globs []string) (*Workspace, error) {
	var members []string
	for _, g := range globs {
		matches, err := filepath.Glob(filepath.Join(root, g))
		if err != nil {
			return nil, errdefs.Wrap(err, errdefs.MalformedManifest, "workspace_members glob "+g)
		}
		members = append(members, matches...)
	}
	return &Workspace{Root: root, Members: members}, nil
}

func (w *Workspace) findMember(canonicalName string, target manifest.TargetKind) (*manifest.Manifest, string, error) {
	for _, dir := range w.Members {
		path := filepath.Join(dir, "pesde.toml")
		m, err := manifest.Load(path)
		if err != nil {
			continue
		}
		if m.Name.String() == canonicalName && m.Target.Environment == target {
			return m, dir, nil
		}
	}
	return nil, "", errdefs.New(errdefs.VersionNotFound, canonicalName+" is not a workspace member for target "+string(target))
}

// findMemberByName looks up a member by canonical name alone, regardless
// of its target, for callers (ListVersions) that don't know the
// consuming root's target yet.
func (w *Workspace) findMemberByName(canonicalName string) (*manifest.Manifest, string, error) {
	for _, dir := range w.Members {
		path := filepath.Join(dir, "pesde.toml")
		m, err := manifest.Load(path)
		if err != nil {
			continue
		}
		if m.Name.String() == canonicalName {
			return m, dir, nil
		}
	}
	return nil, "", errdefs.New(errdefs.VersionNotFound, canonicalName+" is not a workspace member")
}

// ListVersions returns just the member's current version: workspace
// resolution is local, there is only ever one version in play. Lookup
// is by canonical name alone (spec.md §4.2's list-versions(canonical-name)
// signature takes no target), so this matches a member regardless of
// which target it declares.
func (w *Workspace) ListVersions(ctx context.Context, canonicalName string) ([]string, error) {
	m, _, err := w.findMemberByName(canonicalName)
	if err != nil {
		return nil, err
	}
	return []string{m.Version}, nil
}

// Resolve returns the member matching (name, target) at its current
// version. Constraints are not checked here: the caller binds bare
// `^`/`~`/`=` with BindWorkspaceVersion and matches the result against
// the member's version before Resolve is invoked.
func (w *Workspace) Resolve(ctx context.Context, canonicalName, version string, target manifest.TargetKind) (ResolvedVersion, error) {
	m, dir, err := w.findMember(canonicalName, target)
	if err != nil {
		return ResolvedVersion{}, err
	}
	deps := m.AllDependencies()
	id := manifest.Identifier{Source: manifest.SourceWorkspace, Name: canonicalName, Version: m.Version, Target: target}
	summary := manifest.ManifestSummary{
		Identifier:   id,
		Lib:          m.Target.Lib,
		Bin:          m.Target.Bin,
		Scripts:      m.Target.Scripts,
		BuildFiles:   m.Target.BuildFiles,
		Dependencies: deps,
	}
	artifact := ArtifactHandle{Source: manifest.SourceWorkspace, URL: dir}
	return ResolvedVersion{Summary: summary, Artifact: artifact}, nil
}

// BindWorkspaceVersion implements the "`^`/`~`/`=` with no explicit version binds
// to the member's current version" rule, returning the concrete
// constraint string the generic matcher should use.
func BindWorkspaceVersion(constraint string, memberVersion string) string {
	trimmed := strings.TrimSpace(constraint)
	switch trimmed {
	case "^", "~", "=":
		return trimmed + memberVersion
	case "", "*":
		return "*"
	default:
		return constraint
	}
}

func (w *Workspace) Download(ctx context.Context, artifact ArtifactHandle) (io.ReadCloser, int64, error) {
	return nil, -1, errdefs.New(errdefs.ArtifactCorrupt, "workspace members are materialized from their directory, not streamed; use artifact.URL directly")
}

func (w *Workspace) Fingerprint(ctx context.Context, artifact ArtifactHandle) (string, error) {
	return "workspace:" + artifact.URL, nil
}
