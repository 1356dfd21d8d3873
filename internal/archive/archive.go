// Package archive implements the safe-extraction rules spec.md §4.5 step
// 3 and §8 property 6 require of both tar.gz and zip artifacts: reject
// entries whose path escapes the destination via "..", reject symlinks,
// and reject entries over a declared maximum size. No pack example
// extracts archives, so this package is built directly on the standard
// library's archive/tar, archive/zip, and compress/gzip — there is no
// third-party extraction library in the teacher or the rest of the pack
// to ground this on (see DESIGN.md).
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pesde-pkg/pesde-go/internal/errdefs"
)

// Format is the archive kind, inferred by the caller (the registry's
// artifact metadata declares it) rather than sniffed.
type Format int

const (
	FormatTarGz Format = iota
	FormatZip
)

// DefaultMaxEntrySize bounds any single extracted file unless the caller
// supplies a tighter per-registry limit (spec.md §4.5 step 3, "reject
// entries over the registry's declared max size").
const DefaultMaxEntrySize = 512 * 1024 * 1024

// ExtractOptions configures one extraction pass.
type ExtractOptions struct {
	MaxEntrySize int64
}

// Extract unpacks r (of the given format) into destDir, enforcing the
// safety checks of spec.md §4.5 step 3. destDir is created if absent.
func Extract(r io.Reader, format Format, destDir string, opts ExtractOptions) error {
	if opts.MaxEntrySize <= 0 {
		opts.MaxEntrySize = DefaultMaxEntrySize
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return errdefs.Wrap(err, errdefs.PermissionDenied, destDir)
	}

	switch format {
	case FormatTarGz:
		return extractTarGz(r, destDir, opts)
	case FormatZip:
		return extractZip(r, destDir, opts)
	}
	return errdefs.New(errdefs.ArtifactCorrupt, "unknown archive format")
}

func safeJoin(destDir, entryName string) (string, error) {
	cleaned := filepath.Clean("/" + entryName)[1:] // collapse any leading ../ segments against a synthetic root
	if cleaned == "" || strings.HasPrefix(entryName, "/") || strings.Contains(entryName, "..") {
		return "", errdefs.New(errdefs.UnsafeArchiveEntry, "entry path escapes destination: "+entryName)
	}
	full := filepath.Join(destDir, cleaned)
	if !strings.HasPrefix(full, filepath.Clean(destDir)+string(filepath.Separator)) {
		return "", errdefs.New(errdefs.UnsafeArchiveEntry, "entry path escapes destination: "+entryName)
	}
	return full, nil
}

func extractTarGz(r io.Reader, destDir string, opts ExtractOptions) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return errdefs.Wrap(err, errdefs.ArtifactCorrupt, "opening gzip stream")
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errdefs.Wrap(err, errdefs.ArtifactCorrupt, "reading tar entry")
		}

		switch hdr.Typeflag {
		case tar.TypeSymlink, tar.TypeLink:
			return errdefs.New(errdefs.UnsafeArchiveEntry, "symlink entry not permitted: "+hdr.Name)
		case tar.TypeDir:
			dest, err := safeJoin(destDir, hdr.Name)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return errdefs.Wrap(err, errdefs.PermissionDenied, dest)
			}
			continue
		case tar.TypeReg:
			if hdr.Size > opts.MaxEntrySize {
				return errdefs.New(errdefs.ArtifactTooLarge, hdr.Name)
			}
			dest, err := safeJoin(destDir, hdr.Name)
			if err != nil {
				return err
			}
			if err := writeEntry(dest, tr, hdr.Size, opts.MaxEntrySize, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		}
	}
}

func extractZip(r io.Reader, destDir string, opts ExtractOptions) error {
	// zip.Reader requires io.ReaderAt + size; spool to a temp file since
	// archives are fetched as a stream.
	tmp, err := os.CreateTemp("", "pesde-zip-*")
	if err != nil {
		return errdefs.Wrap(err, errdefs.StorageFull, "spooling zip to temp file")
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	size, err := io.Copy(tmp, r)
	if err != nil {
		return errdefs.Wrap(err, errdefs.ArtifactCorrupt, "spooling zip stream")
	}

	zr, err := zip.NewReader(tmp, size)
	if err != nil {
		return errdefs.Wrap(err, errdefs.ArtifactCorrupt, "opening zip stream")
	}

	for _, f := range zr.File {
		if f.Mode()&os.ModeSymlink != 0 {
			return errdefs.New(errdefs.UnsafeArchiveEntry, "symlink entry not permitted: "+f.Name)
		}
		if f.FileInfo().IsDir() {
			dest, err := safeJoin(destDir, f.Name)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return errdefs.Wrap(err, errdefs.PermissionDenied, dest)
			}
			continue
		}
		if int64(f.UncompressedSize64) > opts.MaxEntrySize {
			return errdefs.New(errdefs.ArtifactTooLarge, f.Name)
		}
		dest, err := safeJoin(destDir, f.Name)
		if err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return errdefs.Wrap(err, errdefs.ArtifactCorrupt, f.Name)
		}
		err = writeEntry(dest, rc, int64(f.UncompressedSize64), opts.MaxEntrySize, f.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeEntry(dest string, r io.Reader, declaredSize, maxSize int64, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errdefs.Wrap(err, errdefs.PermissionDenied, filepath.Dir(dest))
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm()|0o200)
	if err != nil {
		return errdefs.Wrap(err, errdefs.PermissionDenied, dest)
	}
	defer out.Close()

	// Enforce the declared-size cap against the actual bytes written too
	// (a compressed stream can under-report Size/UncompressedSize64).
	n, err := io.Copy(out, io.LimitReader(r, maxSize+1))
	if err != nil {
		return errdefs.Wrap(err, errdefs.ArtifactCorrupt, dest)
	}
	if n > maxSize {
		return errdefs.New(errdefs.ArtifactTooLarge, dest)
	}
	return nil
}
