package resolver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesde-pkg/pesde-go/internal/errdefs"
	"github.com/pesde-pkg/pesde-go/internal/manifest"
	"github.com/pesde-pkg/pesde-go/internal/source"
)

type fakeTargetRecord struct {
	Lib          string                `json:"lib,omitempty"`
	Dependencies []fakeDependencyRecord `json:"dependencies,omitempty"`
}

type fakeDependencyRecord struct {
	Alias   string `json:"alias"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Kind    string `json:"kind,omitempty"`
}

type fakeVersionRecord struct {
	Targets map[string]fakeTargetRecord `json:"targets"`
}

type fakePackage struct {
	Name     string                       `json:"name"`
	Versions map[string]fakeVersionRecord `json:"versions"`
}

// newFakeRegistry serves a minimal spec.md §6 registry wire protocol
// over the given packages, keyed by canonical "scope/name".
func newFakeRegistry(t *testing.T, packages map[string]fakePackage) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/v1/packages/")
		pkg, ok := packages[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(pkg))
	}))
}

func simpleLib(versions ...string) fakePackage {
	vs := map[string]fakeVersionRecord{}
	for _, v := range versions {
		vs[v] = fakeVersionRecord{Targets: map[string]fakeTargetRecord{"luau": {Lib: "init.luau"}}}
	}
	return fakePackage{Versions: vs}
}

func adaptersFor(srv *httptest.Server) *source.Set {
	return source.NewSet(srv.Client(), "", nil, nil)
}

func TestResolveIsDeterministicAcrossRuns(t *testing.T) {
	srv := newFakeRegistry(t, map[string]fakePackage{
		"acme/dep": simpleLib("1.0.0", "1.1.0"),
	})
	defer srv.Close()

	root := &manifest.Manifest{
		Name:    manifest.ScopeName{Scope: "me", Name: "app"},
		Target:  manifest.Target{Environment: manifest.TargetLuau},
		Indices: map[string]string{"default": srv.URL},
		Dependencies: map[string]manifest.DependencySpec{
			"dep": {Name: "acme/dep", Version: "^1.0.0"},
		},
	}

	in := Input{Roots: []*manifest.Manifest{root}, Adapters: adaptersFor(srv)}

	g1, edges1, err := Resolve(context.Background(), in)
	require.NoError(t, err)
	g2, edges2, err := Resolve(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, g1, 1)
	require.Len(t, g2, 1)
	assert.Equal(t, g1, g2)
	assert.Equal(t, edges1, edges2)
}

func TestResolveRespectsLockedVersionWhenNotUpdating(t *testing.T) {
	srv := newFakeRegistry(t, map[string]fakePackage{
		"acme/dep": simpleLib("1.0.0", "1.1.0"),
	})
	defer srv.Close()

	root := &manifest.Manifest{
		Name:    manifest.ScopeName{Scope: "me", Name: "app"},
		Target:  manifest.Target{Environment: manifest.TargetLuau},
		Indices: map[string]string{"default": srv.URL},
		Dependencies: map[string]manifest.DependencySpec{
			"dep": {Name: "acme/dep", Version: "^1.0.0"},
		},
	}

	pinnedID := manifest.Identifier{Source: manifest.SourceRegistry, Name: "acme/dep", Version: "1.0.0", Target: manifest.TargetLuau}
	previous := manifest.NewLockfile("irrelevant")
	previous.Graph[pinnedID.String()] = manifest.GraphNode{Identifier: pinnedID}

	in := Input{Roots: []*manifest.Manifest{root}, Adapters: adaptersFor(srv), Previous: previous}

	g, _, err := Resolve(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, g, 1)
	for _, node := range g {
		assert.Equal(t, "1.0.0", node.Identifier.Version, "a non-update install must not silently upgrade a locked version")
	}
}

func TestResolveOverrideByPath(t *testing.T) {
	srv := newFakeRegistry(t, map[string]fakePackage{
		"acme/dep": simpleLib("1.0.0", "1.1.0"),
	})
	defer srv.Close()

	root := &manifest.Manifest{
		Name:    manifest.ScopeName{Scope: "me", Name: "app"},
		Target:  manifest.Target{Environment: manifest.TargetLuau},
		Indices: map[string]string{"default": srv.URL},
		Dependencies: map[string]manifest.DependencySpec{
			"dep": {Name: "acme/dep", Version: "^1.1.0"},
		},
		Overrides: map[string]manifest.Override{
			"dep": {DependencySpec: manifest.DependencySpec{Name: "acme/dep", Version: "1.0.0"}},
		},
	}

	in := Input{Roots: []*manifest.Manifest{root}, Adapters: adaptersFor(srv)}

	g, _, err := Resolve(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, g, 1)
	for _, node := range g {
		assert.Equal(t, "1.0.0", node.Identifier.Version, "an override by path must win over the direct constraint")
	}
}

func TestResolveMultiRootHeterogeneousTargetsDoNotCrossCheck(t *testing.T) {
	srv := newFakeRegistry(t, map[string]fakePackage{
		"acme/luau-dep":   simpleLib("1.0.0"),
		"acme/roblox-dep": {Versions: map[string]fakeVersionRecord{"1.0.0": {Targets: map[string]fakeTargetRecord{"roblox": {Lib: "init.luau"}}}}},
	})
	defer srv.Close()

	luauRoot := &manifest.Manifest{
		Name:    manifest.ScopeName{Scope: "me", Name: "luau-app"},
		Target:  manifest.Target{Environment: manifest.TargetLuau},
		Indices: map[string]string{"default": srv.URL},
		Dependencies: map[string]manifest.DependencySpec{
			"dep": {Name: "acme/luau-dep", Version: "^1.0.0"},
		},
	}
	robloxRoot := &manifest.Manifest{
		Name:    manifest.ScopeName{Scope: "me", Name: "roblox-app"},
		Target:  manifest.Target{Environment: manifest.TargetRoblox},
		Indices: map[string]string{"default": srv.URL},
		Dependencies: map[string]manifest.DependencySpec{
			"dep": {Name: "acme/roblox-dep", Version: "^1.0.0"},
		},
	}

	in := Input{Roots: []*manifest.Manifest{luauRoot, robloxRoot}, Adapters: adaptersFor(srv)}

	g, edges, err := Resolve(context.Background(), in)
	require.NoError(t, err, "a luau-only node must not be checked against an unrelated roblox root's target")
	require.Len(t, g, 2)
	require.Len(t, edges, 2)
}

func TestResolveFailsOnUnsatisfiedPeer(t *testing.T) {
	srv := newFakeRegistry(t, map[string]fakePackage{
		"acme/base": {
			Versions: map[string]fakeVersionRecord{
				"1.0.0": {Targets: map[string]fakeTargetRecord{
					"luau": {
						Lib: "init.luau",
						Dependencies: []fakeDependencyRecord{
							{Alias: "peer", Name: "acme/peer", Version: "^1.0.0", Kind: "peer"},
						},
					},
				}},
			},
		},
		"acme/peer": simpleLib("1.0.0"),
	})
	defer srv.Close()

	root := &manifest.Manifest{
		Name:    manifest.ScopeName{Scope: "me", Name: "app"},
		Target:  manifest.Target{Environment: manifest.TargetLuau},
		Indices: map[string]string{"default": srv.URL},
		Dependencies: map[string]manifest.DependencySpec{
			"base": {Name: "acme/base", Version: "^1.0.0"},
		},
	}

	in := Input{Roots: []*manifest.Manifest{root}, Adapters: adaptersFor(srv)}

	_, _, err := Resolve(context.Background(), in)
	require.Error(t, err)
	var taxErr *errdefs.Error
	require.ErrorAs(t, err, &taxErr)
	assert.Equal(t, errdefs.UnsatisfiedPeer, taxErr.Kind)
}
