package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesde-pkg/pesde-go/internal/manifest"
)

func writeTestManifest(t *testing.T, dir string) {
	t.Helper()
	src := `
name = "acme/local"
version = "0.2.0"

[target]
environment = "luau"
lib = "init.luau"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pesde.toml"), []byte(src), 0o644))
}

func TestPathListVersionsReadsManifestVersion(t *testing.T) {
	dir := t.TempDir()
	writeTestManifest(t, dir)

	p := NewPath()
	versions, err := p.ListVersions(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"0.2.0"}, versions)
}

func TestPathResolveReturnsSummaryFromManifest(t *testing.T) {
	dir := t.TempDir()
	writeTestManifest(t, dir)

	p := NewPath()
	resolved, err := p.Resolve(context.Background(), dir, "0.2.0", manifest.TargetLuau)
	require.NoError(t, err)
	assert.Equal(t, "init.luau", resolved.Summary.Lib)
	assert.Equal(t, manifest.SourcePath, resolved.Artifact.Source)
	assert.Equal(t, dir, resolved.Artifact.URL)
}

func TestPathDownloadIsUnsupported(t *testing.T) {
	p := NewPath()
	_, _, err := p.Download(context.Background(), ArtifactHandle{URL: "/wherever"})
	require.Error(t, err)
}
