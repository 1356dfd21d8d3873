package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTripsThroughEncode(t *testing.T) {
	src := `
name = "acme/app"
version = "1.0.0"

[target]
environment = "luau"
lib = "init.luau"

[dependencies]
dep = { name = "acme/dep", version = "^1.0.0" }
`
	m, err := Parse([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, "acme", m.Name.Scope)
	assert.Equal(t, "app", m.Name.Name)

	encoded, err := m.Encode()
	require.NoError(t, err)

	m2, err := Parse(encoded)
	require.NoError(t, err)
	assert.Equal(t, m.Name, m2.Name)
	assert.Equal(t, m.Dependencies, m2.Dependencies)
}

func TestValidateRejectsMissingScope(t *testing.T) {
	m := &Manifest{Version: "1.0.0", Target: Target{Environment: TargetLuau}}
	err := m.Validate()
	require.Error(t, err)
}

func TestValidateRejectsBuildFilesOnNonRoblox(t *testing.T) {
	m := &Manifest{
		Name:   ScopeName{Scope: "acme", Name: "app"},
		Target: Target{Environment: TargetLuau, BuildFiles: []string{"default.project.json"}},
	}
	err := m.Validate()
	require.Error(t, err)
}

func TestValidateForPublishRejectsPathDependency(t *testing.T) {
	m := &Manifest{
		Name:   ScopeName{Scope: "acme", Name: "app"},
		Target: Target{Environment: TargetLuau},
		Dependencies: map[string]DependencySpec{
			"local": {Path: "../local-pkg"},
		},
	}
	err := m.ValidateForPublish()
	require.Error(t, err)
}

func TestValidateForPublishAllowsRegistryDependency(t *testing.T) {
	m := &Manifest{
		Name:   ScopeName{Scope: "acme", Name: "app"},
		Target: Target{Environment: TargetLuau},
		Dependencies: map[string]DependencySpec{
			"dep": {Name: "acme/dep", Version: "^1.0.0"},
		},
	}
	assert.NoError(t, m.ValidateForPublish())
}

func TestEncodeIsDeterministic(t *testing.T) {
	m := &Manifest{
		Name:    ScopeName{Scope: "acme", Name: "app"},
		Version: "1.0.0",
		Target:  Target{Environment: TargetLuau},
	}
	a, err := m.Encode()
	require.NoError(t, err)
	b, err := m.Encode()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
