// Package resolver implements spec.md §4.3: building a flat dependency
// graph from root manifests by expanding specifiers against source
// adapters, applying overrides, merging peer/dev dependency semantics,
// respecting target compatibility, and detecting cycles. Grounded on
// the worklist/visited-set shape of
// other_examples/fb7d54f0_scripness-ralph__resolve.go.go (a dependency
// resolution worker) and
// other_examples/5a465f58_google-deps.dev__util-resolve-npm-resolve.go.go
// (npm-style resolve with override application).
package resolver

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/pesde-pkg/pesde-go/internal/errdefs"
	"github.com/pesde-pkg/pesde-go/internal/logging"
	"github.com/pesde-pkg/pesde-go/internal/manifest"
	"github.com/pesde-pkg/pesde-go/internal/source"
	"github.com/pesde-pkg/pesde-go/internal/specifier"
)

// Flags mirror spec.md §4.3's install/update flags.
type Flags struct {
	Update  bool
	Locked  bool
	Prod    bool
	DevOnly bool
}

// Input is everything the resolver needs for one resolve pass.
type Input struct {
	Roots    []*manifest.Manifest
	Previous *manifest.Lockfile
	Flags    Flags
	Adapters *source.Set
}

// Graph is the flat map from identifier string to node (spec.md §3).
type Graph map[string]*manifest.GraphNode

type workItem struct {
	alias     string
	depKind   manifest.DependencyKind
	spec      manifest.DependencySpec
	path      specifier.GraphPath
	ancestors []manifest.Identifier
	target    manifest.TargetKind
	rootDeps  map[string]manifest.DependencySpec
	projCtx   specifier.ProjectContext
	overrides map[string]manifest.Override

	// parentKey is the graph key of the node this item was discovered
	// from, or "" for a root-seeded direct dependency (roots are not
	// graph nodes, so they carry no Edges map to populate).
	parentKey string

	// rootIndex identifies which in.Roots entry a root-seeded item
	// (parentKey == "") came from, so Resolve can record the alias's
	// resolved identifier into that root's top-level edge table for the
	// linker (roots have no Edges map of their own, unlike graph nodes).
	rootIndex int
}

// Resolve runs the seven-step algorithm of spec.md §4.3 to fixpoint and
// returns the resulting flat graph, plus each root's own alias → identifier
// table (the linker's top-level packages-folder shims are keyed on these,
// and roots themselves are never graph nodes so they carry no Edges map).
func Resolve(ctx context.Context, in Input) (Graph, []map[string]manifest.Identifier, error) {
	g := Graph{}
	var queue []workItem
	rootEdges := make([]map[string]manifest.Identifier, len(in.Roots))
	for i := range rootEdges {
		rootEdges[i] = map[string]manifest.Identifier{}
	}

	// Step 1: seed with every direct dependency of every root.
	for i, root := range in.Roots {
		rootDeps := root.AllDependenciesStandardOnly()
		projCtx := specifier.ProjectContext{Indices: root.Indices, WallyIndices: root.WallyIndices}
		for _, td := range root.AllDependencies() {
			if in.Flags.DevOnly && td.Kind != manifest.DepDev {
				continue
			}
			queue = append(queue, workItem{
				alias:     td.Alias,
				depKind:   td.Kind,
				spec:      td.Spec,
				path:      specifier.GraphPath{td.Alias},
				target:    root.Target.Environment,
				rootDeps:  rootDeps,
				projCtx:   projCtx,
				overrides: root.Overrides,
				rootIndex: i,
			})
		}
	}

	for len(queue) > 0 {
		// Step 7: deterministic sorted (alias, path) order.
		sort.Slice(queue, func(i, j int) bool {
			if queue[i].alias != queue[j].alias {
				return queue[i].alias < queue[j].alias
			}
			return queue[i].path.Join() < queue[j].path.Join()
		})
		item := queue[0]
		queue = queue[1:]

		next, resultID, err := resolveOne(ctx, in, item, g)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "resolving %s (path %s)", item.alias, item.path.Join())
		}
		if item.parentKey == "" {
			rootEdges[item.rootIndex][item.alias] = resultID
		}
		queue = append(queue, next...)
	}

	if err := postProcess(g, in, rootEdges); err != nil {
		return nil, nil, err
	}
	return g, rootEdges, nil
}

func resolveOne(ctx context.Context, in Input, item workItem, g Graph) ([]workItem, manifest.Identifier, error) {
	// Step 2: normalize + apply overrides.
	effectiveSpec, err := specifier.ApplyOverrides(item.path, item.spec, item.overrides, item.rootDeps)
	if err != nil {
		return nil, manifest.Identifier{}, err
	}
	canon, err := specifier.Normalize(effectiveSpec, item.target, item.projCtx)
	if err != nil {
		return nil, manifest.Identifier{}, err
	}

	targetToResolve := item.target
	if canon.TargetOverride != nil {
		targetToResolve = *canon.TargetOverride
	}

	adapter := in.Adapters.For(canon.Source, canon.IndexURL)
	if adapter == nil {
		return nil, manifest.Identifier{}, errdefs.New(errdefs.DisallowedSourceKind, string(canon.Source))
	}

	version, err := pickVersion(ctx, in, adapter, canon, targetToResolve)
	if err != nil {
		return nil, manifest.Identifier{}, err
	}

	id := manifest.Identifier{Source: canon.Source, Name: canon.CanonicalName, Version: version, Target: targetToResolve}

	if item.parentKey != "" {
		if parent, ok := g[item.parentKey]; ok {
			parent.Edges[item.alias] = id
		}
	}

	// Step 5: cycle handling — the edge above is recorded, but a node
	// already on this path (including the permitted self-loop case) is
	// not re-expanded.
	for _, a := range item.ancestors {
		if a == id {
			return nil, id, nil
		}
	}

	key := id.String()
	if existing, ok := g[key]; ok {
		// Step 4: unify — union peer/dev flags across every path that
		// reaches this identifier.
		existing.IsPeer = existing.IsPeer || item.depKind == manifest.DepPeer
		existing.IsDev = existing.IsDev || item.depKind == manifest.DepDev
		return nil, id, nil
	}

	resolved, err := adapter.Resolve(ctx, canon.CanonicalName, version, targetToResolve)
	if err != nil {
		return nil, manifest.Identifier{}, err
	}

	node := &manifest.GraphNode{
		Identifier: id,
		Summary:    resolved.Summary,
		Edges:      map[string]manifest.Identifier{},
		IndexURL:   canon.IndexURL,
		IsPeer:     item.depKind == manifest.DepPeer,
		IsDev:      item.depKind == manifest.DepDev,
	}
	g[key] = node

	if resolved.Summary.Deprecated {
		logging.Warn("resolver", "depends on deprecated package", map[string]interface{}{"identifier": key})
	}
	if resolved.Summary.Yanked {
		logging.Warn("resolver", "depends on yanked version", map[string]interface{}{"identifier": key})
	}

	newAncestors := append(append([]manifest.Identifier{}, item.ancestors...), id)
	var next []workItem
	for _, dep := range resolved.Summary.Dependencies {
		childPath := append(append(specifier.GraphPath{}, item.path...), dep.Alias)
		next = append(next, workItem{
			alias:     dep.Alias,
			depKind:   dep.Kind,
			spec:      dep.Spec,
			path:      childPath,
			ancestors: newAncestors,
			target:    targetToResolve,
			rootDeps:  item.rootDeps,
			projCtx:   item.projCtx,
			overrides: item.overrides,
			parentKey: key,
		})
	}
	return next, id, nil
}

// pickVersion implements step 3: prefer the previous lockfile's pinned
// version when locked (or when not updating and it still satisfies the
// constraint), otherwise the highest version satisfying the constraint.
func pickVersion(ctx context.Context, in Input, adapter source.Adapter, canon specifier.CanonicalSpec, target manifest.TargetKind) (string, error) {
	switch canon.Source {
	case manifest.SourceWorkspace, manifest.SourcePath:
		versions, err := adapter.ListVersions(ctx, canon.CanonicalName)
		if err != nil || len(versions) == 0 {
			return "", errdefs.New(errdefs.VersionNotFound, canon.CanonicalName)
		}
		if canon.Source == manifest.SourceWorkspace {
			bound := source.BindWorkspaceVersion(canon.Constraint, versions[0])
			if ok, err := specifier.Match(bound, versions[0]); err == nil && !ok {
				return "", errdefs.New(errdefs.VersionNotFound, canon.CanonicalName+" "+canon.Constraint)
			}
		}
		return versions[0], nil
	case manifest.SourceGit:
		if canon.GitRev != "" {
			return canon.GitRev, nil
		}
		versions, err := adapter.ListVersions(ctx, canon.CanonicalName)
		if err != nil || len(versions) == 0 {
			return "", errdefs.New(errdefs.VersionNotFound, canon.CanonicalName)
		}
		return versions[0], nil
	}

	versions, err := adapter.ListVersions(ctx, canon.CanonicalName)
	if err != nil {
		return "", err
	}

	if prev := previousVersion(in.Previous, canon, target); prev != "" && contains(versions, prev) {
		if in.Flags.Locked {
			return prev, nil
		}
		if !in.Flags.Update {
			if ok, _ := specifier.Match(canon.Constraint, prev); ok {
				return prev, nil
			}
		}
	}

	best, ok, err := specifier.HighestMatching(canon.Constraint, versions)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errdefs.New(errdefs.VersionNotFound, canon.CanonicalName+" "+canon.Constraint)
	}
	return best, nil
}

func previousVersion(prev *manifest.Lockfile, canon specifier.CanonicalSpec, target manifest.TargetKind) string {
	if prev == nil {
		return ""
	}
	for _, node := range prev.Graph {
		if node.Identifier.Source == canon.Source && node.Identifier.Name == canon.CanonicalName && node.Identifier.Target == target {
			return node.Identifier.Version
		}
	}
	return ""
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

// postProcess implements spec.md §4.3 point 6: every peer dependency
// must also be declared directly by at least one root, every node's
// target must be compatible with the root(s) that actually consume it,
// and production installs keep dev-only nodes in the graph (the linker,
// not the resolver, is what skips materializing them).
func postProcess(g Graph, in Input, rootEdges []map[string]manifest.Identifier) error {
	consumers := consumerRoots(g, rootEdges, len(in.Roots))
	for key, node := range g {
		if node.IsPeer {
			satisfied := false
			for _, root := range in.Roots {
				for _, spec := range root.Dependencies {
					if sameTarget(spec, node.Identifier.Name) {
						satisfied = true
						break
					}
				}
			}
			if !satisfied {
				return errdefs.New(errdefs.UnsatisfiedPeer, key)
			}
		}
		for _, rootIdx := range consumers[key] {
			if !in.Roots[rootIdx].Target.Environment.Compatible(node.Identifier.Target) {
				return errdefs.New(errdefs.NoCompatibleTarget, key)
			}
		}
	}
	return nil
}

// consumerRoots walks each root's own edges through the graph to find
// which root indices actually reach each node, so a workspace with
// heterogeneous member targets only checks target compatibility against
// the root(s) that truly depend on a given node (spec.md §3, §4.2
// Workspace source) rather than against every root in the resolve.
func consumerRoots(g Graph, rootEdges []map[string]manifest.Identifier, numRoots int) map[string][]int {
	reached := map[string][]int{}
	for i := 0; i < numRoots; i++ {
		visited := map[string]bool{}
		var stack []string
		for _, id := range rootEdges[i] {
			stack = append(stack, id.String())
		}
		for len(stack) > 0 {
			key := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited[key] {
				continue
			}
			visited[key] = true
			reached[key] = append(reached[key], i)

			node, ok := g[key]
			if !ok {
				continue
			}
			for _, edgeID := range node.Edges {
				stack = append(stack, edgeID.String())
			}
		}
	}
	return reached
}

// sameTarget reports whether a root-declared dependency spec's name
// matches a resolved canonical package name, across whichever source
// field happens to carry it.
func sameTarget(spec manifest.DependencySpec, canonicalName string) bool {
	return spec.Name == canonicalName || spec.Wally == canonicalName || spec.Workspace == canonicalName
}
