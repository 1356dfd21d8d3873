package linker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportedTypesOfScansAndDedupes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lib.luau")
	src := `export type Foo = { a: number }
local function helper() end
export type Bar = string
export type Foo = { a: number }
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	names, err := exportedTypesOf(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Foo", "Bar"}, names)
}

func TestExportedTypesOfNoExports(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lib.luau")
	require.NoError(t, os.WriteFile(path, []byte("return {}\n"), 0o644))

	names, err := exportedTypesOf(path)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestExportedTypesOfMissingFile(t *testing.T) {
	_, err := exportedTypesOf(filepath.Join(t.TempDir(), "missing.luau"))
	require.Error(t, err)
}
