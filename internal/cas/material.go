package cas

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	digest "github.com/opencontainers/go-digest"

	"github.com/pesde-pkg/pesde-go/internal/errdefs"
)

// IngestDir walks dir (an unpacked, patched, forbidden-files-stripped
// archive) and stores every regular file as a blob, returning the tree
// manifest entries ready for WriteTree (spec.md §4.4 "package
// materialization inside CAS", §4.5 step 6).
func (s *Store) IngestDir(dir string) ([]TreeEntry, error) {
	var entries []TreeEntry
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return errdefs.New(errdefs.UnsafeArchiveEntry, "symlink not permitted in package tree: "+path)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		bd, err := s.WriteBlob(f)
		f.Close()
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, TreeEntry{
			Path:    filepath.ToSlash(rel),
			Blob:    bd,
			ExecBit: info.Mode()&0o111 != 0,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Materialize recreates a tree's files under destDir, preferring hard
// links from the blob store and falling back to a copy when hard links
// cannot cross the filesystem boundary (spec.md §4.6 "hard-linking from
// CAS"). Windows directory-junction handling for workspace-linked
// siblings is out of scope for this POSIX-oriented implementation.
func (s *Store) Materialize(d digest.Digest, destDir string) error {
	entries, err := s.ReadTree(d)
	if err != nil {
		return err
	}
	for _, e := range entries {
		dest := filepath.Join(destDir, filepath.FromSlash(e.Path))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return errdefs.Wrap(err, errdefs.PermissionDenied, filepath.Dir(dest))
		}
		src := s.blobPath(e.Blob)
		if err := linkOrCopy(src, dest); err != nil {
			return errdefs.Wrap(err, errdefs.CrossDeviceLinkFailed, dest)
		}
		if e.ExecBit && runtime.GOOS != "windows" {
			_ = os.Chmod(dest, 0o755)
		}
	}
	return nil
}

func linkOrCopy(src, dest string) error {
	if err := os.Link(src, dest); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
