package cas

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteBlobIsContentAddressedAndIdempotent(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	d1, err := store.WriteBlob(bytes.NewReader([]byte("hello")))
	require.NoError(t, err)

	d2, err := store.WriteBlob(bytes.NewReader([]byte("hello")))
	require.NoError(t, err)
	assert.Equal(t, d1, d2, "identical content must hash to the same digest")

	assert.True(t, store.HasBlob(d1))

	rc, err := store.OpenBlob(d1)
	require.NoError(t, err)
	defer rc.Close()
	data := make([]byte, 5)
	_, err = rc.Read(data)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestWriteBlobIsReadOnlyAfterWrite(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	d, err := store.WriteBlob(bytes.NewReader([]byte("immutable")))
	require.NoError(t, err)

	path := store.blobPath(d)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Mode().Perm()&0o222, "a written blob must not be writable")
}

func TestWriteTreeRoundTrips(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	blobA, err := store.WriteBlob(bytes.NewReader([]byte("a")))
	require.NoError(t, err)
	blobB, err := store.WriteBlob(bytes.NewReader([]byte("b")))
	require.NoError(t, err)

	entries := []TreeEntry{
		{Path: "src/b.luau", Blob: blobB, ExecBit: false},
		{Path: "src/a.luau", Blob: blobA, ExecBit: true},
	}
	d, err := store.WriteTree(entries)
	require.NoError(t, err)

	got, err := store.ReadTree(d)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// WriteTree sorts by path before hashing, so a.luau comes first.
	assert.Equal(t, "src/a.luau", got[0].Path)
	assert.True(t, got[0].ExecBit)
	assert.Equal(t, "src/b.luau", got[1].Path)
	assert.False(t, got[1].ExecBit)

	d2, err := store.WriteTree([]TreeEntry{entries[1], entries[0]})
	require.NoError(t, err)
	assert.Equal(t, d, d2, "tree hash must not depend on caller's entry order")
}

func TestIngestAndMaterializeRoundTrip(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "lib.luau"), []byte("return {}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "nested", "bin.luau"), []byte("print(1)"), 0o755))

	entries, err := store.IngestDir(src)
	require.NoError(t, err)
	d, err := store.WriteTree(entries)
	require.NoError(t, err)

	dest := t.TempDir()
	require.NoError(t, store.Materialize(d, filepath.Join(dest, "out")))

	data, err := os.ReadFile(filepath.Join(dest, "out", "lib.luau"))
	require.NoError(t, err)
	assert.Equal(t, "return {}", string(data))

	info, err := os.Stat(filepath.Join(dest, "out", "nested", "bin.luau"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0o111, "exec bit must survive materialization")
}
