package source

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pesde-pkg/pesde-go/internal/errdefs"
	"github.com/pesde-pkg/pesde-go/internal/manifest"
)

// Git is the adapter for an arbitrary Git URL plus a revision (spec.md
// §4.2). Clones are shallow and cached under CacheDir, one directory
// per repo URL, with a per-URL mutex serializing fetches (spec.md §5:
// "fetches are serialized per URL but parallel across URLs").
type Git struct {
	CacheDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewGit(cacheDir string) *Git {
	return &Git{CacheDir: cacheDir, locks: map[string]*sync.Mutex{}}
}

func (g *Git) lockFor(url string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[url]
	if !ok {
		l = &sync.Mutex{}
		g.locks[url] = l
	}
	return l
}

// ListVersions is not meaningful for a pinned git revision; it returns
// the single revision as its own "version" so the generic resolver
// machinery can treat it uniformly.
func (g *Git) ListVersions(ctx context.Context, canonicalName string) ([]string, error) {
	return []string{canonicalName}, nil
}

func splitGitSubPath(canonicalName string) (repoURL, subPath string) {
	if i := strings.Index(canonicalName, "#"); i >= 0 {
		return canonicalName[:i], canonicalName[i+1:]
	}
	return canonicalName, ""
}

func (g *Git) repoDir(url string) string {
	safe := strings.NewReplacer("/", "_", ":", "_", "@", "_").Replace(url)
	return filepath.Join(g.CacheDir, safe)
}

func (g *Git) ensureClone(ctx context.Context, url, rev string) (string, error) {
	lock := g.lockFor(url)
	lock.Lock()
	defer lock.Unlock()

	dir := g.repoDir(url)
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		cmd := exec.CommandContext(ctx, "git", "-C", dir, "fetch", "--depth", "1", "origin", rev)
		if out, err := cmd.CombinedOutput(); err != nil {
			return "", errdefs.Wrap(err, errdefs.NetworkFailure, string(out))
		}
		checkout := exec.CommandContext(ctx, "git", "-C", dir, "checkout", "FETCH_HEAD")
		if out, err := checkout.CombinedOutput(); err != nil {
			return "", errdefs.Wrap(err, errdefs.NetworkFailure, string(out))
		}
		return dir, nil
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return "", errdefs.Wrap(err, errdefs.PermissionDenied, dir)
	}
	args := []string{"clone", "--depth", "1"}
	if rev != "" {
		args = append(args, "--branch", rev)
	}
	args = append(args, url, dir)
	cmd := exec.CommandContext(ctx, "git", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", errdefs.Wrap(err, errdefs.NetworkFailure, string(out))
	}
	return dir, nil
}

// Resolve performs a shallow clone into the CAS-scoped cache, reads the
// manifest at subPath, and uses the tree hash as the fingerprint. If
// subPath holds a foreign-registry manifest instead, it is transparently
// converted (spec.md §4.2).
func (g *Git) Resolve(ctx context.Context, canonicalName, version string, target manifest.TargetKind) (ResolvedVersion, error) {
	// canonicalName carries an optional "#<sub-path>" suffix (spec.md
	// §3's Git specifier sub-path component), stripped before cloning.
	repoURL, subPath := splitGitSubPath(canonicalName)
	rev := version
	dir, err := g.ensureClone(ctx, repoURL, rev)
	if err != nil {
		return ResolvedVersion{}, err
	}
	manifestPath := filepath.Join(dir, subPath, "pesde.toml")

	var summary manifest.ManifestSummary
	if _, statErr := os.Stat(manifestPath); statErr == nil {
		m, err := manifest.Load(manifestPath)
		if err != nil {
			return ResolvedVersion{}, err
		}
		deps := m.AllDependencies()
		summary = manifest.ManifestSummary{
			Identifier:   manifest.Identifier{Source: manifest.SourceGit, Name: canonicalName, Version: version, Target: target},
			Lib:          m.Target.Lib,
			Bin:          m.Target.Bin,
			Scripts:      m.Target.Scripts,
			BuildFiles:   m.Target.BuildFiles,
			Dependencies: deps,
		}
	} else {
		// No native manifest: fall back to foreign-registry-shaped
		// translation, matching the "transparently converts" rule.
		summary = manifest.ManifestSummary{
			Identifier: manifest.Identifier{Source: manifest.SourceGit, Name: canonicalName, Version: version, Target: target},
			Lib:        "init.lua",
		}
	}

	treeHash, err := g.treeHash(ctx, dir, subPath)
	if err != nil {
		return ResolvedVersion{}, err
	}

	artifact := ArtifactHandle{
		Source: manifest.SourceGit,
		URL:    dir,
		Extra:  map[string]string{"sub_path": subPath, "tree_hash": treeHash, "rev": rev},
	}
	return ResolvedVersion{Summary: summary, Artifact: artifact}, nil
}

func (g *Git) treeHash(ctx context.Context, dir, subPath string) (string, error) {
	spec := "HEAD"
	if subPath != "" {
		spec = "HEAD:" + subPath
	}
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "rev-parse", spec)
	out, err := cmd.Output()
	if err != nil {
		return "", errdefs.Wrap(err, errdefs.ArtifactCorrupt, "computing git tree hash")
	}
	return strings.TrimSpace(string(out)), nil
}

// Download streams nothing: git artifacts are already-cloned working
// trees. The download pipeline branches on the artifact's source kind
// and copies the clone directory (artifact.URL, joined with
// Extra["sub_path"] when set) directly, so this always returns an error.
func (g *Git) Download(ctx context.Context, artifact ArtifactHandle) (io.ReadCloser, int64, error) {
	return nil, -1, errdefs.New(errdefs.ArtifactCorrupt, "git artifacts are materialized from a working tree, not streamed; use DownloadDir")
}

// DownloadDir returns the working-tree directory (optionally scoped to
// a sub-path) the download pipeline should walk directly.
func (g *Git) DownloadDir(artifact ArtifactHandle) string {
	if sp := artifact.Extra["sub_path"]; sp != "" {
		return filepath.Join(artifact.URL, sp)
	}
	return artifact.URL
}

func (g *Git) Fingerprint(ctx context.Context, artifact ArtifactHandle) (string, error) {
	if th := artifact.Extra["tree_hash"]; th != "" {
		return th, nil
	}
	return g.treeHash(ctx, artifact.URL, artifact.Extra["sub_path"])
}
