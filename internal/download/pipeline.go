// Package download implements the 7-step node materialization pipeline
// of spec.md §4.5: stream each resolved node's artifact, validate and
// unpack it, strip forbidden files, apply any recorded patch, and hash
// the result into the CAS as a tree manifest. Bounded fan-out and the
// per-fingerprint single-flight guard are grounded on the teacher's
// mantle/lang/worker.WorkerGroup (context-aware, limited-concurrency,
// error-accumulating task pool), generalized here onto
// golang.org/x/sync's errgroup+singleflight, the same concern expressed
// with the ecosystem's standard building blocks instead of a bespoke
// channel-based limiter.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/coreos/pkg/multierror"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/pesde-pkg/pesde-go/internal/archive"
	"github.com/pesde-pkg/pesde-go/internal/cas"
	"github.com/pesde-pkg/pesde-go/internal/errdefs"
	"github.com/pesde-pkg/pesde-go/internal/logging"
	"github.com/pesde-pkg/pesde-go/internal/manifest"
	"github.com/pesde-pkg/pesde-go/internal/source"
)

var log = logging.For("download")

// Graph is the same flat map internal/resolver produces; download
// depends only on internal/manifest's node shape to avoid an import back
// onto the resolver.
type Graph map[string]*manifest.GraphNode

// Pipeline materializes a resolved graph's nodes into a CAS.
type Pipeline struct {
	Store       *cas.Store
	Adapters    *source.Set
	Concurrency int // default 16, per spec.md §4.5

	// ContinueOnError switches from fail-fast to best-effort: all nodes
	// are attempted and failures accumulate via multierror rather than
	// aborting the remaining pool (spec.md §4.5, §7 propagation policy).
	ContinueOnError bool
}

// PatchFor looks up the patch file paths declared for an identifier in
// a manifest's [patches] table, keyed "name@version/target" per
// spec.md §3.
func PatchFor(patches map[string][]string, id manifest.Identifier) []string {
	return patches[id.Name+"@"+id.Version+"/"+string(id.Target)]
}

// Run executes the pipeline over every node of the graph, honoring the
// bounded concurrency budget and the per-fingerprint single-flight guard.
// Nodes are not checked against the CAS first: each one is fetched and
// ingested again, and the write-once store keeps an entry that already
// exists (spec.md §4.5 point 1 and the Concurrency section
// of §5).
func (p *Pipeline) Run(ctx context.Context, g Graph, patches map[string][]string, readPatchFile func(relPath string) (string, error)) error {
	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = 16
	}

	var sfGroup singleflight.Group
	var accumulated multierror.Error
	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)

	for _, node := range g {
		node := node
		eg.Go(func() error {
			err := p.materializeOne(egCtx, node, &sfGroup, patches, readPatchFile)
			if err != nil {
				if !p.ContinueOnError {
					return err
				}
				mu.Lock()
				accumulated = append(accumulated, err)
				mu.Unlock()
				return nil
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}
	if p.ContinueOnError {
		if asErr := accumulated.AsError(); asErr != nil {
			return asErr
		}
	}
	return nil
}

func (p *Pipeline) materializeOne(ctx context.Context, node *manifest.GraphNode, sfGroup *singleflight.Group, patches map[string][]string, readPatchFile func(relPath string) (string, error)) error {
	adapter := p.Adapters.For(node.Identifier.Source, node.IndexURL)
	if adapter == nil {
		return errdefs.New(errdefs.DisallowedSourceKind, string(node.Identifier.Source))
	}

	resolved, err := adapter.Resolve(ctx, node.Identifier.Name, node.Identifier.Version, node.Identifier.Target)
	if err != nil {
		return err
	}

	fingerprint, err := adapter.Fingerprint(ctx, resolved.Artifact)
	if err != nil {
		return err
	}

	// Keyed on (identifier, artifact fingerprint) rather than just the
	// fingerprint: two nodes can share identical source bytes yet carry
	// different patches, and each still needs its own tree hash.
	sfKey := node.Identifier.String() + "|" + fingerprint
	result, err, _ := sfGroup.Do(sfKey, func() (interface{}, error) {
		return p.ingest(ctx, node, adapter, resolved.Artifact, patches, readPatchFile)
	})
	if err != nil {
		return err
	}
	node.SourceArtifactFingerprint = result.(string)
	return nil
}

func (p *Pipeline) ingest(ctx context.Context, node *manifest.GraphNode, adapter source.Adapter, artifact source.ArtifactHandle, patches map[string][]string, readPatchFile func(relPath string) (string, error)) (string, error) {
	scratch, err := os.MkdirTemp("", "pesde-download-*")
	if err != nil {
		return "", errdefs.Wrap(err, errdefs.StorageFull, "creating scratch directory")
	}
	defer os.RemoveAll(scratch)

	switch node.Identifier.Source {
	case manifest.SourceGit, manifest.SourceWorkspace, manifest.SourcePath:
		srcDir := artifact.URL
		if sub := artifact.Extra["sub_path"]; sub != "" {
			srcDir = filepath.Join(srcDir, sub)
		}
		if err := copyTree(srcDir, scratch); err != nil {
			return "", err
		}
	default:
		rc, _, err := adapter.Download(ctx, artifact)
		if err != nil {
			return "", err
		}
		defer rc.Close()
		if err := archive.Extract(rc, formatOf(artifact), scratch, archive.ExtractOptions{}); err != nil {
			return "", err
		}
	}

	if err := stripForbidden(scratch, node.Identifier.Target, node.Identifier.Source); err != nil {
		return "", errdefs.Wrap(err, errdefs.PermissionDenied, "stripping forbidden files")
	}

	// Patches are applied before the linker reads library type exports,
	// so a patch may introduce files or change exported types
	// (spec.md §4.5 step 5).
	relPaths := PatchFor(patches, node.Identifier)
	for _, relPath := range relPaths {
		diffText, err := readPatchFile(relPath)
		if err != nil {
			return "", errdefs.Wrap(err, errdefs.PatchDoesNotApply, relPath)
		}
		if err := ApplyUnifiedDiff(scratch, diffText); err != nil {
			return "", err
		}
	}
	if len(relPaths) > 0 {
		node.PatchFingerprint = fingerprintOf(relPaths)
	}

	log.WithField("identifier", node.Identifier.String()).Debug("materialized node into scratch tree")

	entries, err := p.Store.IngestDir(scratch)
	if err != nil {
		return "", err
	}
	treeHash, err := p.Store.WriteTree(entries)
	if err != nil {
		return "", err
	}
	return treeHash.String(), nil
}

func fingerprintOf(relPaths []string) string {
	h := sha256.New()
	for _, p := range relPaths {
		io.WriteString(h, p)
		h.Write([]byte{0})
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

func formatOf(artifact source.ArtifactHandle) archive.Format {
	if artifact.Extra["format"] == "zip" {
		return archive.FormatZip
	}
	return archive.FormatTarGz
}

func copyTree(src, dest string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if info.Name() == ".git" && info.IsDir() {
			return filepath.SkipDir
		}
		destPath := filepath.Join(dest, rel)
		if info.IsDir() {
			return os.MkdirAll(destPath, 0o755)
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, in)
		return err
	})
}
