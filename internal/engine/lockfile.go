package engine

import (
	"path/filepath"

	"github.com/pesde-pkg/pesde-go/internal/errdefs"
	"github.com/pesde-pkg/pesde-go/internal/manifest"
)

func relPath(base, target string) (string, error) {
	return filepath.Rel(base, target)
}

// graphFromLockfile reconstructs the in-memory graph shape the linker
// expects from a previously-written lockfile, for the locked,
// graph-unchanged fast path.
func graphFromLockfile(lf *manifest.Lockfile) map[string]*manifest.GraphNode {
	g := make(map[string]*manifest.GraphNode, len(lf.Graph))
	for key, node := range lf.Graph {
		n := node
		g[key] = &n
	}
	return g
}

// rootEdgesFromLockfile returns the primary root's alias -> identifier
// table recorded the last time this lockfile was written, rejecting a
// lockfile that predates RootEdges being recorded at all.
func rootEdgesFromLockfile(lf *manifest.Lockfile, root *manifest.Manifest) (map[string]manifest.Identifier, error) {
	if lf.RootEdges == nil {
		return nil, errdefs.New(errdefs.MalformedManifest, "lockfile has no root_edges table to relink from")
	}
	return lf.RootEdges, nil
}

// memberEdgesFromLockfile returns one workspace member's alias ->
// identifier table, keyed by its path relative to the primary root,
// rejecting a lockfile written before MemberRootEdges existed.
func memberEdgesFromLockfile(lf *manifest.Lockfile, root *Project, member *Project) (map[string]manifest.Identifier, error) {
	rel, err := relPath(root.Dir, member.Dir)
	if err != nil {
		return nil, err
	}
	edges, ok := lf.MemberRootEdges[rel]
	if !ok {
		return nil, errdefs.New(errdefs.MalformedManifest, "lockfile has no member_root_edges entry for "+rel+" to relink from")
	}
	return edges, nil
}

// buildLockfile assembles the lockfile written after a full
// Resolve→Download→Link pass: the primary project's root edges, every
// workspace member's published name+target and own root edges under
// its relative path, and the flat graph keyed by identifier string
// (spec.md §3/§6).
func buildLockfile(fingerprint string, graph map[string]*manifest.GraphNode, projects []*Project, rootEdgeTables []map[string]manifest.Identifier) *manifest.Lockfile {
	lf := manifest.NewLockfile(fingerprint)
	lf.RootEdges = rootEdgeTables[0]

	for key, node := range graph {
		lf.Graph[key] = *node
	}

	if len(projects) > 1 {
		root := projects[0]
		memberTable := map[string][]manifest.PublishedMember{}
		for i, p := range projects[1:] {
			rel, err := relPath(root.Dir, p.Dir)
			if err != nil {
				continue
			}
			memberTable[rel] = []manifest.PublishedMember{{
				Name:   p.Manifest.Name,
				Target: p.Manifest.Target.Environment,
			}}
			lf.MemberRootEdges[rel] = rootEdgeTables[i+1]
		}
		lf.Workspace[root.Manifest.Name.String()] = memberTable
	}

	return lf
}
