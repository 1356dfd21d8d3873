package download

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyUnifiedDiffModifiesExistingFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "lib.luau"), []byte("line1\nline2\nline3\n"), 0o644))

	diff := "--- a/lib.luau\n" +
		"+++ b/lib.luau\n" +
		"@@ -1,3 +1,3 @@\n" +
		" line1\n" +
		"-line2\n" +
		"+patched\n" +
		" line3\n"

	require.NoError(t, ApplyUnifiedDiff(root, diff))

	got, err := os.ReadFile(filepath.Join(root, "lib.luau"))
	require.NoError(t, err)
	assert.Equal(t, "line1\npatched\nline3\n", string(got))
}

func TestApplyUnifiedDiffCreatesNewFile(t *testing.T) {
	root := t.TempDir()

	diff := "--- /dev/null\n" +
		"+++ b/new.luau\n" +
		"@@ -0,0 +1,2 @@\n" +
		"+return {}\n" +
		"+-- generated\n"

	require.NoError(t, ApplyUnifiedDiff(root, diff))

	got, err := os.ReadFile(filepath.Join(root, "new.luau"))
	require.NoError(t, err)
	assert.Equal(t, "return {}\n-- generated\n", string(got))
}

func TestApplyUnifiedDiffRejectsPathEscape(t *testing.T) {
	root := t.TempDir()

	diff := "--- a/../outside.luau\n" +
		"+++ b/../outside.luau\n" +
		"@@ -1 +1 @@\n" +
		"-old\n" +
		"+new\n"

	err := ApplyUnifiedDiff(root, diff)
	require.Error(t, err)
}
