package linker

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesde-pkg/pesde-go/internal/cas"
	"github.com/pesde-pkg/pesde-go/internal/manifest"
)

// TestInstallProducesLiteralScenarioShim exercises spec.md §8's literal
// end-to-end scenario: a luau target root depending on scope/chain,
// whose library entry point has no exported types, links to exactly
// `return require("./.pesde/scope+chain/1.0.0/luau/m")`.
func TestInstallProducesLiteralScenarioShim(t *testing.T) {
	casDir := t.TempDir()
	store, err := cas.Open(casDir)
	require.NoError(t, err)

	blob, err := store.WriteBlob(bytes.NewReader([]byte("return {}\n")))
	require.NoError(t, err)
	tree, err := store.WriteTree([]cas.TreeEntry{{Path: "m.luau", Blob: blob}})
	require.NoError(t, err)

	depID := manifest.Identifier{
		Source:  manifest.SourceRegistry,
		Name:    "scope/chain",
		Version: "1.0.0",
		Target:  manifest.TargetLuau,
	}
	graph := map[string]*manifest.GraphNode{
		depID.String(): {
			Identifier:                depID,
			Summary:                   manifest.ManifestSummary{Identifier: depID, Lib: "m.luau"},
			SourceArtifactFingerprint: tree.String(),
		},
	}
	rootEdges := map[string]manifest.Identifier{"dep": depID}

	root := &manifest.Manifest{
		Name:    manifest.ScopeName{Scope: "me", Name: "project"},
		Version: "0.1.0",
		Target:  manifest.Target{Environment: manifest.TargetLuau},
	}

	rootDir := t.TempDir()
	l := &Linker{Store: store}
	require.NoError(t, l.Install(rootDir, root, rootEdges, graph, false))

	shimPath := filepath.Join(rootDir, "luau_packages", "dep"+Ext)
	data, err := os.ReadFile(shimPath)
	require.NoError(t, err)
	assert.Equal(t, `return require("./.pesde/scope+chain/1.0.0/luau/m")`, strings.TrimSpace(string(data)))
}

func TestInstallSkipsDevDependenciesInProdMode(t *testing.T) {
	casDir := t.TempDir()
	store, err := cas.Open(casDir)
	require.NoError(t, err)

	blob, err := store.WriteBlob(bytes.NewReader([]byte("return {}\n")))
	require.NoError(t, err)
	tree, err := store.WriteTree([]cas.TreeEntry{{Path: "m.luau", Blob: blob}})
	require.NoError(t, err)

	devID := manifest.Identifier{Source: manifest.SourceRegistry, Name: "scope/devtool", Version: "1.0.0", Target: manifest.TargetLuau}
	graph := map[string]*manifest.GraphNode{
		devID.String(): {
			Identifier:                devID,
			Summary:                   manifest.ManifestSummary{Identifier: devID, Lib: "m.luau"},
			SourceArtifactFingerprint: tree.String(),
			IsDev:                     true,
		},
	}
	rootEdges := map[string]manifest.Identifier{"devtool": devID}

	root := &manifest.Manifest{
		Name:    manifest.ScopeName{Scope: "me", Name: "project"},
		Version: "0.1.0",
		Target:  manifest.Target{Environment: manifest.TargetLuau},
	}

	rootDir := t.TempDir()
	l := &Linker{Store: store}
	require.NoError(t, l.Install(rootDir, root, rootEdges, graph, true))

	_, err = os.Stat(filepath.Join(rootDir, "luau_packages", "devtool"+Ext))
	assert.True(t, os.IsNotExist(err))
}
