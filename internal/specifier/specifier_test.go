package specifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesde-pkg/pesde-go/internal/manifest"
)

func TestMatchBareStarAcceptsPrerelease(t *testing.T) {
	ok, err := Match("*", "1.0.0-beta.1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMatchCaretConstraint(t *testing.T) {
	ok, err := Match("^1.0.0", "1.2.3")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Match("^1.0.0", "2.0.0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHighestMatchingPicksHighestSemver(t *testing.T) {
	best, ok, err := HighestMatching("^1.0.0", []string{"1.0.0", "1.2.0", "1.1.0"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1.2.0", best)
}

func TestHighestMatchingNoneSatisfy(t *testing.T) {
	_, ok, err := HighestMatching("^2.0.0", []string{"1.0.0", "1.2.0"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApplyOverridesLiteralReplacement(t *testing.T) {
	overrides := map[string]manifest.Override{
		"dep": {DependencySpec: manifest.DependencySpec{Name: "acme/other", Version: "2.0.0"}},
	}
	spec, err := ApplyOverrides(GraphPath{"dep"}, manifest.DependencySpec{Name: "acme/dep", Version: "1.0.0"}, overrides, nil)
	require.NoError(t, err)
	assert.Equal(t, "acme/other", spec.Name)
	assert.Equal(t, "2.0.0", spec.Version)
}

func TestApplyOverridesAliasRef(t *testing.T) {
	rootDeps := map[string]manifest.DependencySpec{
		"canonical": {Name: "acme/canonical", Version: "3.0.0"},
	}
	overrides := map[string]manifest.Override{
		"dep>nested": {AliasOf: "canonical"},
	}
	spec, err := ApplyOverrides(GraphPath{"dep", "nested"}, manifest.DependencySpec{Name: "acme/dep", Version: "1.0.0"}, overrides, rootDeps)
	require.NoError(t, err)
	assert.Equal(t, "acme/canonical", spec.Name)
}

func TestApplyOverridesNoMatchReturnsOriginal(t *testing.T) {
	spec, err := ApplyOverrides(GraphPath{"dep"}, manifest.DependencySpec{Name: "acme/dep", Version: "1.0.0"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "acme/dep", spec.Name)
}

func TestNormalizeRegistryResolvesDefaultIndex(t *testing.T) {
	ctx := ProjectContext{Indices: map[string]string{"default": "https://registry.example/"}}
	canon, err := Normalize(manifest.DependencySpec{Name: "acme/dep", Version: "^1.0.0"}, manifest.TargetLuau, ctx)
	require.NoError(t, err)
	assert.Equal(t, manifest.SourceRegistry, canon.Source)
	assert.Equal(t, "acme/dep", canon.CanonicalName)
	assert.Equal(t, "https://registry.example/", canon.IndexURL)
}

func TestNormalizeUnknownIndexFails(t *testing.T) {
	ctx := ProjectContext{}
	_, err := Normalize(manifest.DependencySpec{Name: "acme/dep", Version: "^1.0.0"}, manifest.TargetLuau, ctx)
	require.Error(t, err)
}

func TestNormalizeGitSource(t *testing.T) {
	canon, err := Normalize(manifest.DependencySpec{Repo: "https://github.com/acme/dep", Rev: "main"}, manifest.TargetLuau, ProjectContext{})
	require.NoError(t, err)
	assert.Equal(t, manifest.SourceGit, canon.Source)
	assert.Equal(t, "main", canon.GitRev)
}

func TestNormalizeDisallowsForeignUnderPolicy(t *testing.T) {
	ctx := ProjectContext{
		WallyIndices: map[string]string{"wally": "https://wally.example/"},
		Policy:       &IndexPolicy{AllowForeign: false},
	}
	_, err := Normalize(manifest.DependencySpec{Wally: "acme/dep", Version: "^1.0.0"}, manifest.TargetLuau, ctx)
	require.Error(t, err)
}
