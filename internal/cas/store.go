// Package cas implements the content-addressable store of spec.md §4.4:
// a sharded blob/tree layout on disk, a write-once atomic-rename
// protocol, and tree-manifest hashing for package materialization.
// Grounded on the content-addressing pattern of the teacher's vendored
// containers/image and containers/storage (blob digests keyed by
// algorithm-prefixed hex, sharded storage layout) and on
// opencontainers/go-digest, which those packages use directly for the
// same purpose.
package cas

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	digest "github.com/opencontainers/go-digest"
	"github.com/pkg/errors"

	"github.com/pesde-pkg/pesde-go/internal/errdefs"
	"github.com/pesde-pkg/pesde-go/internal/logging"
)

var log = logging.For("cas")

// Store is one CAS root directory, holding the blobs/ and trees/
// sub-namespaces (spec.md §4.4).
type Store struct {
	Root string
}

func Open(root string) (*Store, error) {
	for _, sub := range []string{"blobs", "trees"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, errdefs.Wrap(err, errdefs.PermissionDenied, "creating CAS namespace "+sub)
		}
	}
	return &Store{Root: root}, nil
}

// TreeEntry is one (relative-path, blob-hash, exec-bit) triple of a
// package's tree manifest (spec.md §4.4).
type TreeEntry struct {
	Path    string
	Blob    digest.Digest
	ExecBit bool
}

func shardedPath(root, namespace string, d digest.Digest) string {
	hex := d.Encoded()
	return filepath.Join(root, namespace, hex[:2], hex[2:])
}

func (s *Store) blobPath(d digest.Digest) string { return shardedPath(s.Root, "blobs", d) }
func (s *Store) treePath(d digest.Digest) string { return shardedPath(s.Root, "trees", d) }

// HasBlob/HasTree report whether an entry is already present, so
// callers can skip redundant work (spec.md §8 property 5, CAS
// idempotence).
func (s *Store) HasBlob(d digest.Digest) bool {
	_, err := os.Stat(s.blobPath(d))
	return err == nil
}

func (s *Store) HasTree(d digest.Digest) bool {
	_, err := os.Stat(s.treePath(d))
	return err == nil
}

// WriteBlob implements the write-once atomic-rename protocol: content is
// streamed to a sibling temp file (so the final rename is same-volume),
// fsync'd, then renamed into place. If the final name already exists,
// the temp file is discarded rather than overwriting it — CAS entries
// are write-once (spec.md §4.4, §8 property "writers never overwrite").
func (s *Store) WriteBlob(r io.Reader) (digest.Digest, error) {
	return s.write(filepath.Join(s.Root, "blobs"), r)
}

func (s *Store) write(namespaceDir string, r io.Reader) (digest.Digest, error) {
	tmpName := filepath.Join(namespaceDir, ".tmp-"+uuid.NewString())
	if err := os.MkdirAll(namespaceDir, 0o755); err != nil {
		return "", errdefs.Wrap(err, errdefs.PermissionDenied, namespaceDir)
	}
	f, err := os.OpenFile(tmpName, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", errdefs.Wrap(err, errdefs.PermissionDenied, tmpName)
	}
	defer os.Remove(tmpName) // no-op once successfully renamed away

	digester := digest.Canonical.Digester()
	mw := io.MultiWriter(f, digester.Hash())
	if _, err := io.Copy(mw, r); err != nil {
		f.Close()
		return "", errdefs.Wrap(err, errdefs.StorageFull, "writing CAS temp file")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", errdefs.Wrap(err, errdefs.AtomicRenameFailed, "fsync before rename")
	}
	if err := f.Close(); err != nil {
		return "", errdefs.Wrap(err, errdefs.AtomicRenameFailed, "closing CAS temp file")
	}

	d := digester.Digest()
	finalPath := filepath.Join(namespaceDir, d.Encoded()[:2], d.Encoded()[2:])

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return "", errdefs.Wrap(err, errdefs.PermissionDenied, filepath.Dir(finalPath))
	}
	if _, err := os.Stat(finalPath); err == nil {
		// Already present: another writer got there first. Discard the
		// temp file (deferred Remove) and treat this as success.
		return d, nil
	}
	if err := os.Rename(tmpName, finalPath); err != nil {
		if os.IsExist(err) {
			return d, nil
		}
		return "", errdefs.Wrap(err, errdefs.AtomicRenameFailed, finalPath)
	}

	if err := os.Chmod(finalPath, 0o444); err != nil {
		// Best-effort hardening only; some platforms forbid removing a
		// read-only file later, so a chmod failure here is not fatal
		// (spec.md §4.4).
		log.WithField("path", finalPath).Warn("could not make CAS entry read-only")
	}
	return d, nil
}

// OpenBlob opens a previously-written blob for reading.
func (s *Store) OpenBlob(d digest.Digest) (io.ReadCloser, error) {
	f, err := os.Open(s.blobPath(d))
	if err != nil {
		return nil, errdefs.Wrap(err, errdefs.ArtifactCorrupt, "opening blob "+d.String())
	}
	return f, nil
}

// WriteTree canonically serializes entries (sorted by path, one line
// per entry) and stores the serialization as a CAS tree entry, returning
// the tree's hash — the artifact fingerprint used in the lockfile
// (spec.md §4.4).
func (s *Store) WriteTree(entries []TreeEntry) (digest.Digest, error) {
	sorted := append([]TreeEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	var sb strings.Builder
	for _, e := range sorted {
		exec := "0"
		if e.ExecBit {
			exec = "1"
		}
		fmt.Fprintf(&sb, "%s\t%s\t%s\n", e.Path, e.Blob.String(), exec)
	}
	return s.write(filepath.Join(s.Root, "trees"), strings.NewReader(sb.String()))
}

// ReadTree parses a previously-written tree entry back into its
// TreeEntry list.
func (s *Store) ReadTree(d digest.Digest) ([]TreeEntry, error) {
	f, err := os.Open(s.treePath(d))
	if err != nil {
		return nil, errdefs.Wrap(err, errdefs.ArtifactCorrupt, "opening tree "+d.String())
	}
	defer f.Close()

	var entries []TreeEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			return nil, errdefs.New(errdefs.ArtifactCorrupt, "malformed tree entry line: "+line)
		}
		blobDigest, err := digest.Parse(parts[1])
		if err != nil {
			return nil, errors.Wrap(err, "parsing tree entry blob digest")
		}
		entries = append(entries, TreeEntry{Path: parts[0], Blob: blobDigest, ExecBit: parts[2] == "1"})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scanning tree entry")
	}
	return entries, nil
}
