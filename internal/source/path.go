package source

import (
	"context"
	"io"
	"path/filepath"

	"github.com/pesde-pkg/pesde-go/internal/errdefs"
	"github.com/pesde-pkg/pesde-go/internal/manifest"
)

// Path reads a manifest directly off the local filesystem at an
// absolute path (spec.md §4.2). Forbidden at publish time by
// Manifest.ValidateForPublish.
type Path struct{}

func NewPath() *Path { return &Path{} }

func (p *Path) ListVersions(ctx context.Context, canonicalName string) ([]string, error) {
	m, err := manifest.Load(filepath.Join(canonicalName, "pesde.toml"))
	if err != nil {
		return nil, err
	}
	return []string{m.Version}, nil
}

func (p *Path) Resolve(ctx context.Context, canonicalName, version string, target manifest.TargetKind) (ResolvedVersion, error) {
	m, err := manifest.Load(filepath.Join(canonicalName, "pesde.toml"))
	if err != nil {
		return ResolvedVersion{}, err
	}
	id := manifest.Identifier{Source: manifest.SourcePath, Name: canonicalName, Version: m.Version, Target: target}
	summary := manifest.ManifestSummary{
		Identifier:   id,
		Lib:          m.Target.Lib,
		Bin:          m.Target.Bin,
		Scripts:      m.Target.Scripts,
		BuildFiles:   m.Target.BuildFiles,
		Dependencies: m.AllDependencies(),
	}
	artifact := ArtifactHandle{Source: manifest.SourcePath, URL: canonicalName}
	return ResolvedVersion{Summary: summary, Artifact: artifact}, nil
}

func (p *Path) Download(ctx context.Context, artifact ArtifactHandle) (io.ReadCloser, int64, error) {
	return nil, -1, errdefs.New(errdefs.ArtifactCorrupt, "path dependencies are materialized directly from disk; use artifact.URL")
}

func (p *Path) Fingerprint(ctx context.Context, artifact ArtifactHandle) (string, error) {
	return "path:" + artifact.URL, nil
}
