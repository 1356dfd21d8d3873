package manifest

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockfileSaveLoadRoundTrips(t *testing.T) {
	id := Identifier{Source: SourceRegistry, Name: "acme/dep", Version: "1.0.0", Target: TargetLuau}
	lf := NewLockfile("fp123")
	lf.Graph[id.String()] = GraphNode{Identifier: id, Summary: ManifestSummary{Lib: "init.luau"}}
	lf.RootEdges["dep"] = id

	path := filepath.Join(t.TempDir(), "pesde.lock")
	require.NoError(t, lf.Save(path))

	got, err := LoadLockfile(path)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, lf.ManifestFingerprint, got.ManifestFingerprint)
	assert.Equal(t, lf.ResolverVersion, got.ResolverVersion)
	assert.Equal(t, id, got.RootEdges["dep"])
	require.Contains(t, got.Graph, id.String())
	assert.Equal(t, "init.luau", got.Graph[id.String()].Summary.Lib)

	if diff := cmp.Diff(lf.Graph[id.String()], got.Graph[id.String()]); diff != "" {
		t.Errorf("graph node changed shape across a save/load round trip (-want +got):\n%s", diff)
	}
}

func TestLoadLockfileMissingFileIsNilNotError(t *testing.T) {
	lf, err := LoadLockfile(filepath.Join(t.TempDir(), "does-not-exist.lock"))
	require.NoError(t, err)
	assert.Nil(t, lf)
}

func TestIsStaleDetectsOlderResolverVersion(t *testing.T) {
	lf := NewLockfile("fp")
	assert.False(t, lf.IsStale())
	lf.ResolverVersion = ResolverVersion - 1
	assert.True(t, lf.IsStale())
}

func TestSortedIdentifiersIsDeterministic(t *testing.T) {
	lf := NewLockfile("fp")
	idA := Identifier{Source: SourceRegistry, Name: "acme/a", Version: "1.0.0", Target: TargetLuau}
	idB := Identifier{Source: SourceRegistry, Name: "acme/b", Version: "1.0.0", Target: TargetLuau}
	lf.Graph[idB.String()] = GraphNode{Identifier: idB}
	lf.Graph[idA.String()] = GraphNode{Identifier: idA}

	keys := lf.SortedIdentifiers()
	require.Len(t, keys, 2)
	assert.Less(t, keys[0], keys[1])
}
