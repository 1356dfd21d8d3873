package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesde-pkg/pesde-go/internal/manifest"
)

func TestGraphFromLockfileRoundTrips(t *testing.T) {
	id := manifest.Identifier{Source: manifest.SourceRegistry, Name: "acme/dep", Version: "1.0.0", Target: manifest.TargetLuau}
	lf := manifest.NewLockfile("fp")
	lf.Graph[id.String()] = manifest.GraphNode{Identifier: id}

	g := graphFromLockfile(lf)
	require.Contains(t, g, id.String())
	assert.Equal(t, id, g[id.String()].Identifier)
}

func TestRootEdgesFromLockfileRejectsMissingTable(t *testing.T) {
	lf := &manifest.Lockfile{}
	_, err := rootEdgesFromLockfile(lf, &manifest.Manifest{})
	require.Error(t, err)
}

func TestRootEdgesFromLockfileReturnsStoredTable(t *testing.T) {
	id := manifest.Identifier{Source: manifest.SourceRegistry, Name: "acme/dep", Version: "1.0.0", Target: manifest.TargetLuau}
	lf := manifest.NewLockfile("fp")
	lf.RootEdges["dep"] = id

	got, err := rootEdgesFromLockfile(lf, &manifest.Manifest{})
	require.NoError(t, err)
	assert.Equal(t, id, got["dep"])
}

func TestBuildLockfileSingleProjectHasNoWorkspaceTable(t *testing.T) {
	id := manifest.Identifier{Source: manifest.SourceRegistry, Name: "acme/dep", Version: "1.0.0", Target: manifest.TargetLuau}
	graph := map[string]*manifest.GraphNode{id.String(): {Identifier: id}}
	rootEdges := []map[string]manifest.Identifier{{"dep": id}}
	projects := []*Project{{Dir: "/root", Manifest: &manifest.Manifest{Name: manifest.ScopeName{Scope: "me", Name: "app"}}}}

	lf := buildLockfile("fp", graph, projects, rootEdges)

	assert.Equal(t, "fp", lf.ManifestFingerprint)
	assert.Equal(t, rootEdges[0], lf.RootEdges)
	assert.Contains(t, lf.Graph, id.String())
	assert.Empty(t, lf.Workspace)
}

func TestBuildLockfileWorkspaceRecordsMembersByRelativePath(t *testing.T) {
	rootProj := &Project{Dir: "/ws", Manifest: &manifest.Manifest{Name: manifest.ScopeName{Scope: "me", Name: "ws"}}}
	memberProj := &Project{
		Dir: "/ws/packages/lib",
		Manifest: &manifest.Manifest{
			Name:   manifest.ScopeName{Scope: "me", Name: "lib"},
			Target: manifest.Target{Environment: manifest.TargetLuau},
		},
	}
	projects := []*Project{rootProj, memberProj}
	memberID := manifest.Identifier{Source: manifest.SourceRegistry, Name: "acme/dep", Version: "1.0.0", Target: manifest.TargetLuau}
	rootEdges := []map[string]manifest.Identifier{{}, {"dep": memberID}}

	lf := buildLockfile("fp", map[string]*manifest.GraphNode{}, projects, rootEdges)

	members := lf.Workspace["me/ws"]
	require.NotNil(t, members)
	published, ok := members["packages/lib"]
	require.True(t, ok)
	require.Len(t, published, 1)
	assert.Equal(t, manifest.ScopeName{Scope: "me", Name: "lib"}, published[0].Name)
	assert.Equal(t, manifest.TargetLuau, published[0].Target)

	memberEdges, ok := lf.MemberRootEdges["packages/lib"]
	require.True(t, ok, "each workspace member's own root edges must be recorded so it can be relinked on the locked fast path")
	assert.Equal(t, memberID, memberEdges["dep"])
}

func TestMemberEdgesFromLockfileReturnsStoredTable(t *testing.T) {
	rootProj := &Project{Dir: "/ws", Manifest: &manifest.Manifest{Name: manifest.ScopeName{Scope: "me", Name: "ws"}}}
	memberProj := &Project{Dir: "/ws/packages/lib", Manifest: &manifest.Manifest{Name: manifest.ScopeName{Scope: "me", Name: "lib"}}}

	id := manifest.Identifier{Source: manifest.SourceRegistry, Name: "acme/dep", Version: "1.0.0", Target: manifest.TargetLuau}
	lf := manifest.NewLockfile("fp")
	lf.MemberRootEdges["packages/lib"] = map[string]manifest.Identifier{"dep": id}

	got, err := memberEdgesFromLockfile(lf, rootProj, memberProj)
	require.NoError(t, err)
	assert.Equal(t, id, got["dep"])
}

func TestMemberEdgesFromLockfileRejectsMissingEntry(t *testing.T) {
	rootProj := &Project{Dir: "/ws", Manifest: &manifest.Manifest{Name: manifest.ScopeName{Scope: "me", Name: "ws"}}}
	memberProj := &Project{Dir: "/ws/packages/lib", Manifest: &manifest.Manifest{Name: manifest.ScopeName{Scope: "me", Name: "lib"}}}

	lf := manifest.NewLockfile("fp")
	_, err := memberEdgesFromLockfile(lf, rootProj, memberProj)
	require.Error(t, err)
}
