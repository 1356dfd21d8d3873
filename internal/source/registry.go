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

	schema "github.com/xeipuuv/gojsonschema"

	"github.com/pesde-pkg/pesde-go/internal/errdefs"
	"github.com/pesde-pkg/pesde-go/internal/manifest"
)

// registryResponseSchema validates the wire shape of spec.md §6's
// `GET /v1/packages/{scope}/{name}` response before it is unmarshaled
// into Go structs, grounded on the teacher's own use of
// xeipuuv/gojsonschema in pkg/builds/schema.go to validate structured
// data at a trust boundary.
const registryResponseSchema = `{
  "type": "object",
  "required": ["name", "versions"],
  "properties": {
    "name": {"type": "string"},
    "deprecated": {"type": "string"},
    "versions": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["targets"],
        "properties": {
          "description": {"type": "string"},
          "targets": {
            "type": "object",
            "additionalProperties": {
              "type": "object",
              "properties": {
                "lib": {"type": "string"},
                "bin": {"type": "string"},
                "scripts": {"type": "object"},
                "yanked": {"type": "boolean"},
                "published_at": {"type": "string"},
                "license": {"type": "string"},
                "authors": {"type": "array"},
                "repository": {"type": "string"},
                "docs": {"type": "string"},
                "dependencies": {"type": "array"}
              }
            }
          }
        }
      }
    }
  }
}`

type registryDependencyRecord struct {
	Alias   string `json:"alias"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Index   string `json:"index,omitempty"`
	Kind    string `json:"kind,omitempty"` // "standard", "peer", "dev"
	Target  string `json:"target,omitempty"`
}

type registryTargetRecord struct {
	Lib          string                     `json:"lib,omitempty"`
	Bin          string                     `json:"bin,omitempty"`
	Scripts      map[string]string          `json:"scripts,omitempty"`
	Yanked       bool                       `json:"yanked,omitempty"`
	PublishedAt  string                     `json:"published_at,omitempty"`
	License      string                     `json:"license,omitempty"`
	Authors      []string                   `json:"authors,omitempty"`
	Repository   string                     `json:"repository,omitempty"`
	Docs         string                     `json:"docs,omitempty"`
	Dependencies []registryDependencyRecord `json:"dependencies,omitempty"`
}

type registryVersionRecord struct {
	Description string                          `json:"description,omitempty"`
	Targets     map[string]registryTargetRecord `json:"targets"`
}

type registryPackageResponse struct {
	Name       string                           `json:"name"`
	Deprecated string                           `json:"deprecated,omitempty"`
	Versions   map[string]registryVersionRecord `json:"versions"`
}

// Registry is the native registry adapter of spec.md §4.2: a Git
// repository acting as its own index (one text file per scope/name),
// fronted here by the HTTP wire protocol of spec.md §6, plus a gzipped
// tar artifact.
type Registry struct {
	BaseURL string
	Client  *http.Client
	Token   string
}

func NewRegistry(baseURL string, client *http.Client, token string) *Registry {
	if client == nil {
		client = http.DefaultClient
	}
	return &Registry{BaseURL: baseURL, Client: client, Token: token}
}

func (r *Registry) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+path, nil)
	if err != nil {
		return nil, errdefs.Wrap(err, errdefs.NetworkFailure, "building request")
	}
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, errdefs.Wrap(err, errdefs.NetworkFailure, path)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, errdefs.New(errdefs.AuthRequired, path)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errdefs.New(errdefs.NetworkFailure, fmt.Sprintf("%s: status %d", path, resp.StatusCode))
	}
	return io.ReadAll(resp.Body)
}

func (r *Registry) fetchPackage(ctx context.Context, canonicalName string) (*registryPackageResponse, error) {
	sn, err := manifest.ParseScopeName(canonicalName)
	if err != nil {
		return nil, err
	}
	body, err := r.get(ctx, fmt.Sprintf("/v1/packages/%s/%s", sn.Scope, sn.Name))
	if err != nil {
		return nil, err
	}

	result, err := schema.Validate(schema.NewStringLoader(registryResponseSchema), schema.NewStringLoader(string(body)))
	if err != nil {
		return nil, errdefs.Wrap(err, errdefs.ArtifactCorrupt, "validating registry response schema")
	}
	if !result.Valid() {
		return nil, errdefs.New(errdefs.ArtifactCorrupt, fmt.Sprintf("registry response for %s failed schema validation: %v", canonicalName, result.Errors()))
	}

	var parsed registryPackageResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errdefs.Wrap(err, errdefs.ArtifactCorrupt, "decoding registry response")
	}
	return &parsed, nil
}

func (r *Registry) ListVersions(ctx context.Context, canonicalName string) ([]string, error) {
	pkg, err := r.fetchPackage(ctx, canonicalName)
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(pkg.Versions))
	for v := range pkg.Versions {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions, nil
}

func (r *Registry) Resolve(ctx context.Context, canonicalName, version string, target manifest.TargetKind) (ResolvedVersion, error) {
	pkg, err := r.fetchPackage(ctx, canonicalName)
	if err != nil {
		return ResolvedVersion{}, err
	}
	vrec, ok := pkg.Versions[version]
	if !ok {
		return ResolvedVersion{}, errdefs.New(errdefs.VersionNotFound, canonicalName+"@"+version)
	}
	trec, ok := vrec.Targets[string(target)]
	if !ok {
		return ResolvedVersion{}, errdefs.New(errdefs.NoCompatibleTarget, canonicalName+"@"+version+":"+string(target))
	}
	if trec.Yanked {
		// Yanked is a warning-level condition (spec.md §7), surfaced by
		// the resolver, not rejected here.
		_ = trec.Yanked
	}

	deps := make([]manifest.TaggedDependency, 0, len(trec.Dependencies))
	for _, d := range trec.Dependencies {
		kind := manifest.DepStandard
		switch d.Kind {
		case "peer":
			kind = manifest.DepPeer
		case "dev":
			kind = manifest.DepDev
		}
		deps = append(deps, manifest.TaggedDependency{
			Alias: d.Alias,
			Kind:  kind,
			Spec: manifest.DependencySpec{
				Name:    d.Name,
				Version: d.Version,
				Index:   d.Index,
				Target:  d.Target,
			},
		})
	}

	id := manifest.Identifier{Source: manifest.SourceRegistry, Name: canonicalName, Version: version, Target: target}
	summary := manifest.ManifestSummary{
		Identifier:   id,
		Lib:          trec.Lib,
		Bin:          trec.Bin,
		Scripts:      trec.Scripts,
		Dependencies: deps,
		Yanked:       trec.Yanked,
		Deprecated:   pkg.Deprecated != "",
	}

	artifact := ArtifactHandle{
		Source: manifest.SourceRegistry,
		URL:    fmt.Sprintf("%s/v1/packages/%s/%s/%s/archive", r.BaseURL, canonicalName, version, target),
	}
	return ResolvedVersion{Summary: summary, Artifact: artifact}, nil
}

func (r *Registry) Download(ctx context.Context, artifact ArtifactHandle) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artifact.URL, nil)
	if err != nil {
		return nil, 0, errdefs.Wrap(err, errdefs.NetworkFailure, "building download request")
	}
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, 0, errdefs.Wrap(err, errdefs.NetworkFailure, artifact.URL)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, errdefs.New(errdefs.NetworkFailure, fmt.Sprintf("download %s: status %d", artifact.URL, resp.StatusCode))
	}
	return resp.Body, resp.ContentLength, nil
}

func (r *Registry) Fingerprint(ctx context.Context, artifact ArtifactHandle) (string, error) {
	sum := sha256.Sum256([]byte(artifact.URL))
	return hex.EncodeToString(sum[:]), nil
}

