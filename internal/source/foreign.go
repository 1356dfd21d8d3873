package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/pesde-pkg/pesde-go/internal/errdefs"
	"github.com/pesde-pkg/pesde-go/internal/manifest"
	"github.com/pesde-pkg/pesde-go/internal/specifier"
)

// foreignPackageResponse models the Wally-style registry's own JSON
// shape, distinct from the native registry's (spec.md §4.2): package
// dependencies are untyped ("name version" pairs keyed by alias) and
// everything is implicitly built for the game runtime.
type foreignPackageResponse struct {
	Versions []foreignVersionRecord `json:"versions"`
}

type foreignVersionRecord struct {
	Package struct {
		Version string `json:"version"`
	} `json:"package"`
	Place struct {
		SharedSource string `json:"shared-source,omitempty"`
		ServerSource string `json:"server-source,omitempty"`
	} `json:"place"`
	Dependencies       map[string]string `json:"dependencies,omitempty"`
	ServerDependencies map[string]string `json:"server-dependencies,omitempty"`
	DevDependencies    map[string]string `json:"dev-dependencies,omitempty"`
}

// Foreign is the adapter for a pre-existing, foreign-versioned registry
// (spec.md §4.2). Its dependencies are translated at the adapter
// boundary: names sanitized, dependencies tagged standard or dev,
// targets fixed to the game runtime, with a companion server target
// synthesized explicitly rather than inferred downstream (spec.md §9).
type Foreign struct {
	BaseURL string
	Client  *http.Client
}

func NewForeign(baseURL string, client *http.Client) *Foreign {
	if client == nil {
		client = http.DefaultClient
	}
	return &Foreign{BaseURL: baseURL, Client: client}
}

func (f *Foreign) fetch(ctx context.Context, canonicalName string) (*foreignPackageResponse, error) {
	parts := strings.SplitN(canonicalName, "/", 2)
	if len(parts) != 2 {
		return nil, errdefs.New(errdefs.InvalidName, canonicalName)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v1/package-versions/%s/%s", f.BaseURL, parts[0], parts[1]), nil)
	if err != nil {
		return nil, errdefs.Wrap(err, errdefs.NetworkFailure, "building request")
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, errdefs.Wrap(err, errdefs.NetworkFailure, canonicalName)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errdefs.New(errdefs.NetworkFailure, fmt.Sprintf("%s: status %d", canonicalName, resp.StatusCode))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errdefs.Wrap(err, errdefs.NetworkFailure, "reading body")
	}
	var parsed foreignPackageResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errdefs.Wrap(err, errdefs.ArtifactCorrupt, "decoding foreign-registry response")
	}
	return &parsed, nil
}

func (f *Foreign) ListVersions(ctx context.Context, canonicalName string) ([]string, error) {
	pkg, err := f.fetch(ctx, canonicalName)
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(pkg.Versions))
	for _, v := range pkg.Versions {
		versions = append(versions, v.Package.Version)
	}
	sort.Strings(versions)
	return versions, nil
}

// Resolve translates one foreign-registry version record into a
// ManifestSummary. When target is TargetRobloxServer, the synthesized
// server-variant dependency set (ServerDependencies) is used in place
// of the client set, matching the "server variant is synthesized by
// the adapter, not declared" rule of spec.md §9.
func (f *Foreign) Resolve(ctx context.Context, canonicalName, version string, target manifest.TargetKind) (ResolvedVersion, error) {
	pkg, err := f.fetch(ctx, canonicalName)
	if err != nil {
		return ResolvedVersion{}, err
	}
	var rec *foreignVersionRecord
	for i := range pkg.Versions {
		if pkg.Versions[i].Package.Version == version {
			rec = &pkg.Versions[i]
			break
		}
	}
	if rec == nil {
		return ResolvedVersion{}, errdefs.New(errdefs.VersionNotFound, canonicalName+"@"+version)
	}

	depSource := rec.Dependencies
	if target == manifest.TargetRobloxServer && rec.ServerDependencies != nil {
		depSource = rec.ServerDependencies
	}
	deps := make([]manifest.TaggedDependency, 0, len(depSource)+len(rec.DevDependencies))
	for alias, nameVersion := range depSource {
		deps = append(deps, translateForeignDependency(alias, nameVersion, manifest.DepStandard))
	}
	for alias, nameVersion := range rec.DevDependencies {
		deps = append(deps, translateForeignDependency(alias, nameVersion, manifest.DepDev))
	}

	id := manifest.Identifier{Source: manifest.SourceForeign, Name: canonicalName, Version: version, Target: target}
	summary := manifest.ManifestSummary{Identifier: id, Lib: "init.lua", Dependencies: deps}

	source := rec.Place.SharedSource
	if target == manifest.TargetRobloxServer && rec.Place.ServerSource != "" {
		source = rec.Place.ServerSource
	}
	artifact := ArtifactHandle{
		Source: manifest.SourceForeign,
		URL:    fmt.Sprintf("%s/v1/package-contents/%s@%s", f.BaseURL, canonicalName, version),
		Extra:  map[string]string{"source-hint": source},
	}
	return ResolvedVersion{Summary: summary, Artifact: artifact}, nil
}

// translateForeignDependency parses the foreign registry's "scope/name version"
// dependency value, sanitizes its name, and tags it with the given kind
// (standard or dev; foreign registries have no peer-dependency concept).
func translateForeignDependency(alias, nameVersion string, kind manifest.DependencyKind) manifest.TaggedDependency {
	parts := strings.SplitN(strings.TrimSpace(nameVersion), " ", 2)
	name := parts[0]
	version := ""
	if len(parts) == 2 {
		version = parts[1]
	}
	return manifest.TaggedDependency{
		Alias: alias,
		Kind:  kind,
		Spec:  manifest.DependencySpec{Wally: specifier.SanitizeForeignName(name), Version: version},
	}
}

func (f *Foreign) Download(ctx context.Context, artifact ArtifactHandle) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artifact.URL, nil)
	if err != nil {
		return nil, 0, errdefs.Wrap(err, errdefs.NetworkFailure, "building download request")
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, 0, errdefs.Wrap(err, errdefs.NetworkFailure, artifact.URL)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, errdefs.New(errdefs.NetworkFailure, fmt.Sprintf("download %s: status %d", artifact.URL, resp.StatusCode))
	}
	return resp.Body, resp.ContentLength, nil
}

func (f *Foreign) Fingerprint(ctx context.Context, artifact ArtifactHandle) (string, error) {
	sum := sha256.Sum256([]byte(artifact.URL))
	return hex.EncodeToString(sum[:]), nil
}
