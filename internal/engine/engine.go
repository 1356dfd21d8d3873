// Package engine wires manifest, resolver, download, and linker
// together into the install/update/publish state machine of spec.md
// §4.6. It is a new component: no teacher file owns a full pipeline
// run end to end, but its shape — one struct that owns one run of a
// multi-stage pipeline behind a single exported entry point — is
// grounded on entrypoint/ocp/builder.go's Builder.
package engine

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pesde-pkg/pesde-go/internal/cas"
	"github.com/pesde-pkg/pesde-go/internal/config"
	"github.com/pesde-pkg/pesde-go/internal/download"
	"github.com/pesde-pkg/pesde-go/internal/errdefs"
	"github.com/pesde-pkg/pesde-go/internal/linker"
	"github.com/pesde-pkg/pesde-go/internal/logging"
	"github.com/pesde-pkg/pesde-go/internal/manifest"
	"github.com/pesde-pkg/pesde-go/internal/resolver"
	"github.com/pesde-pkg/pesde-go/internal/source"
)

var log = logging.For("engine")

// Engine runs one project's install/update operations against a
// shared CAS and source adapter set.
type Engine struct {
	Store    *cas.Store
	Adapters *source.Set
	Config   config.Config
}

// Open discovers (or opens) the CAS for workspaceDir and builds the
// source adapter set, per spec.md §5's CAS-finder and §4.2's adapter
// contract.
func Open(cfg config.Config, userDataDir, workspaceDir string) (*Engine, error) {
	casRoot := cfg.CASRoot
	if casRoot == "" {
		var err error
		casRoot, err = cas.FindRoot(userDataDir, workspaceDir)
		if err != nil {
			return nil, err
		}
	}
	store, err := cas.Open(casRoot)
	if err != nil {
		return nil, err
	}

	gitCacheDir := filepath.Join(casRoot, "git-cache")
	if err := os.MkdirAll(gitCacheDir, 0o755); err != nil {
		return nil, errdefs.Wrap(err, errdefs.PermissionDenied, gitCacheDir)
	}

	return &Engine{
		Store:  store,
		Config: cfg,
		Adapters: source.NewSet(http.DefaultClient, cfg.RegistryToken,
			source.NewGit(gitCacheDir), nil),
	}, nil
}

// Project is one root manifest plus the paths its operations are
// scoped to: the directory it lives in, and where its lockfile and
// packages folder are written.
type Project struct {
	Dir      string
	Manifest *manifest.Manifest
}

// LoadProject reads dir/pesde.toml and, if it declares workspace
// members, every member's manifest too — all of them become resolver
// roots, since a workspace-wide install resolves and links every
// member in one pass (spec.md §3, §4.2 Workspace source).
func LoadProject(dir string) ([]*Project, error) {
	m, err := manifest.Load(filepath.Join(dir, "pesde.toml"))
	if err != nil {
		return nil, err
	}
	projects := []*Project{{Dir: dir, Manifest: m}}

	for _, glob := range m.WorkspaceMembers {
		matches, err := filepath.Glob(filepath.Join(dir, glob))
		if err != nil {
			return nil, errdefs.Wrap(err, errdefs.MalformedManifest, "workspace_members glob "+glob)
		}
		for _, memberDir := range matches {
			mm, err := manifest.Load(filepath.Join(memberDir, "pesde.toml"))
			if err != nil {
				continue
			}
			projects = append(projects, &Project{Dir: memberDir, Manifest: mm})
		}
	}
	return projects, nil
}

// Install runs the full state machine of spec.md §4.6 for one project
// (and, if it is a workspace root, every member) against rootDir's
// lockfile: Plan, then either the locked-and-unchanged fast path
// straight to Link, or Resolve → Download → Link → WriteLockfile.
func (e *Engine) Install(ctx context.Context, rootDir string, flags resolver.Flags) (*manifest.Lockfile, error) {
	projects, err := LoadProject(rootDir)
	if err != nil {
		return nil, err
	}
	root := projects[0].Manifest

	// The workspace source adapter needs the member list up front, so
	// it is rebuilt per-install rather than once in Open.
	if root.IsWorkspaceRoot() {
		ws, err := source.NewWorkspace(rootDir, root.WorkspaceMembers)
		if err != nil {
			return nil, err
		}
		e.Adapters.Workspace = ws
	}

	lockfilePath := filepath.Join(rootDir, "pesde.lock")
	previous, err := manifest.LoadLockfile(lockfilePath)
	if err != nil {
		return nil, err
	}
	if previous != nil && previous.IsStale() {
		log.Warn("lockfile was written by a different resolver version; re-resolving")
		previous = nil
	}

	fingerprint, err := root.Fingerprint()
	if err != nil {
		return nil, err
	}

	// Plan → (locked, graph unchanged) → Link → Done: skip Resolve and
	// Download entirely when the lockfile already matches this manifest
	// and the caller asked for strictly-locked semantics.
	if flags.Locked && previous != nil && !previous.IsStale() && previous.ManifestFingerprint == fingerprint {
		log.Info("lockfile unchanged, linking from existing graph")
		graph := graphFromLockfile(previous)
		rootEdges, err := rootEdgesFromLockfile(previous, root)
		if err != nil {
			return nil, err
		}
		if err := e.link(rootDir, root, rootEdges, graph, flags.Prod); err != nil {
			return nil, err
		}
		for _, member := range projects[1:] {
			memberEdges, err := memberEdgesFromLockfile(previous, projects[0], member)
			if err != nil {
				return nil, err
			}
			if err := e.link(member.Dir, member.Manifest, memberEdges, graph, flags.Prod); err != nil {
				return nil, err
			}
		}
		return previous, nil
	}

	roots := make([]*manifest.Manifest, 0, len(projects))
	for _, p := range projects {
		roots = append(roots, p.Manifest)
	}

	graph, rootEdgeTables, err := resolver.Resolve(ctx, resolver.Input{
		Roots:    roots,
		Previous: previous,
		Flags:    flags,
		Adapters: e.Adapters,
	})
	if err != nil {
		return nil, err
	}

	concurrency := e.Config.DownloadConcurrency
	pipeline := &download.Pipeline{
		Store:           e.Store,
		Adapters:        e.Adapters,
		Concurrency:     concurrency,
		ContinueOnError: e.Config.ContinueOnError,
	}
	readPatchFile := func(relPath string) (string, error) {
		data, err := os.ReadFile(filepath.Join(rootDir, relPath))
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	if err := pipeline.Run(ctx, download.Graph(graph), root.Patches, readPatchFile); err != nil {
		return nil, err
	}

	if err := e.link(rootDir, root, rootEdgeTables[0], graph, flags.Prod); err != nil {
		return nil, err
	}
	for i, member := range projects[1:] {
		if err := e.link(member.Dir, member.Manifest, rootEdgeTables[i+1], graph, flags.Prod); err != nil {
			return nil, err
		}
	}

	lf := buildLockfile(fingerprint, graph, projects, rootEdgeTables)
	if err := lf.Save(lockfilePath); err != nil {
		return nil, err
	}
	return lf, nil
}

// link materializes the packages folder into a sibling scratch
// directory and renames it into place on success, so a failed or
// cancelled link never promotes a half-written tree (spec.md §4.6's
// closing line).
func (e *Engine) link(rootDir string, root *manifest.Manifest, rootEdges map[string]manifest.Identifier, graph map[string]*manifest.GraphNode, prod bool) error {
	scratch, err := os.MkdirTemp(rootDir, ".pesde-link-*")
	if err != nil {
		return errdefs.Wrap(err, errdefs.StorageFull, "creating link scratch directory")
	}
	defer os.RemoveAll(scratch)

	l := &linker.Linker{Store: e.Store}
	if err := l.Install(scratch, root, rootEdges, graph, prod); err != nil {
		return err
	}

	folderName := linker.PackagesFolderName(root.Target.Environment)
	final := filepath.Join(rootDir, folderName)
	if err := os.RemoveAll(final); err != nil {
		return errdefs.Wrap(err, errdefs.PermissionDenied, final)
	}
	if err := os.Rename(filepath.Join(scratch, folderName), final); err != nil {
		return errdefs.Wrap(err, errdefs.AtomicRenameFailed, final)
	}
	return nil
}
