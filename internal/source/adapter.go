// Package source implements the uniform adapter contract of spec.md
// §4.2/§9 over five heterogeneous dependency sources. Rather than a
// type hierarchy, each source is a small struct behind the Adapter
// interface, grounded on the teacher's auth/ package (one small file
// per external collaborator: google.go, azure.go, esx.go, packet.go,
// oci.go, each exposing the same handful of calls).
package source

import (
	"context"
	"io"

	"github.com/pesde-pkg/pesde-go/internal/manifest"
)

// ArtifactHandle names a downloadable artifact within a given source.
// Its shape is opaque to callers; only the adapter that produced it
// interprets Extra.
type ArtifactHandle struct {
	Source manifest.SourceKind
	URL    string
	Extra  map[string]string
}

// ResolvedVersion bundles a manifest summary with the artifact handle
// needed to later download it.
type ResolvedVersion struct {
	Summary  manifest.ManifestSummary
	Artifact ArtifactHandle
}

// Adapter is the contract every dependency source satisfies (spec.md
// §4.2).
type Adapter interface {
	// ListVersions returns the ordered set of versions known for
	// canonicalName. Versions are looked up again on every call; no
	// adapter keeps an on-disk cache of them.
	ListVersions(ctx context.Context, canonicalName string) ([]string, error)

	// Resolve returns the manifest summary and artifact handle for one
	// (name, version, target).
	Resolve(ctx context.Context, canonicalName, version string, target manifest.TargetKind) (ResolvedVersion, error)

	// Download streams the artifact's bytes with its declared length
	// (-1 when unknown).
	Download(ctx context.Context, artifact ArtifactHandle) (io.ReadCloser, int64, error)

	// Fingerprint computes the stable hash an adapter promises over an
	// artifact's identity, used as the download pipeline's single-flight
	// key ahead of an actual download.
	Fingerprint(ctx context.Context, artifact ArtifactHandle) (string, error)
}
