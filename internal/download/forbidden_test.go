package download

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesde-pkg/pesde-go/internal/manifest"
)

func TestStripForbiddenRemovesProjectJSONForRobloxGitSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.project.json"), []byte("{}"), 0o644))

	require.NoError(t, stripForbidden(dir, manifest.TargetRoblox, manifest.SourceGit))

	_, err := os.Stat(filepath.Join(dir, "default.project.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestStripForbiddenLeavesOtherSourcesAlone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "default.project.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	require.NoError(t, stripForbidden(dir, manifest.TargetRoblox, manifest.SourceRegistry))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestStripForbiddenLeavesNonRobloxTargetsAlone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "default.project.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	require.NoError(t, stripForbidden(dir, manifest.TargetLuau, manifest.SourceGit))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}
