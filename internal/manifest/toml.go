package manifest

import (
	"bytes"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/pesde-pkg/pesde-go/internal/errdefs"
)

// Load reads and validates a pesde.toml from path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading manifest %s", path)
	}
	return Parse(data)
}

// Parse decodes raw TOML bytes into a Manifest and validates it.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if _, err := toml.Decode(string(data), &m); err != nil {
		return nil, errdefs.Wrap(err, errdefs.MalformedManifest, "decoding manifest TOML")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Encode serializes a Manifest back to canonical TOML. Struct field
// order in types.go is the ordering contract: BurntSushi/toml emits
// fields in Go declaration order, so the written file's key order is
// stable across runs without any extra bookkeeping.
func (m *Manifest) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(m); err != nil {
		return nil, errdefs.Wrap(err, errdefs.MalformedManifest, "encoding manifest TOML")
	}
	return buf.Bytes(), nil
}

// Save encodes and writes the manifest to path.
func (m *Manifest) Save(path string) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the structural invariants spec.md §3 requires of a
// manifest before it can take part in resolution.
func (m *Manifest) Validate() error {
	if m.Name.Scope == "" || m.Name.Name == "" {
		return errdefs.New(errdefs.InvalidName, "manifest name must be scope/name")
	}
	if !m.Target.Environment.Valid() {
		return errdefs.New(errdefs.UnknownTarget, string(m.Target.Environment))
	}
	if !m.Target.Environment.IsRoblox() && len(m.Target.BuildFiles) > 0 {
		return errdefs.New(errdefs.MalformedManifest, "build_files is only valid for roblox targets")
	}
	for alias, dep := range m.Dependencies {
		if _, err := dep.Kind(); err != nil {
			return errors.Wrapf(err, "dependency %q", alias)
		}
	}
	for alias, dep := range m.PeerDependencies {
		if _, err := dep.Kind(); err != nil {
			return errors.Wrapf(err, "peer dependency %q", alias)
		}
	}
	for alias, dep := range m.DevDependencies {
		if _, err := dep.Kind(); err != nil {
			return errors.Wrapf(err, "dev dependency %q", alias)
		}
	}
	return nil
}

// ValidateForPublish applies the extra restrictions spec.md §4.2 places
// on a manifest about to be published: path dependencies are refused.
func (m *Manifest) ValidateForPublish() error {
	if err := m.Validate(); err != nil {
		return err
	}
	for alias, dep := range m.AllDependenciesStandardOnly() {
		kind, err := dep.Kind()
		if err != nil {
			return err
		}
		if kind == SourcePath {
			return errdefs.New(errdefs.DisallowedSourceKind, "path dependency "+alias+" cannot be published")
		}
	}
	return nil
}

// AllDependenciesStandardOnly returns standard+peer deps (publication
// omits dev dependencies per spec.md §3).
func (m *Manifest) AllDependenciesStandardOnly() map[string]DependencySpec {
	out := make(map[string]DependencySpec, len(m.Dependencies)+len(m.PeerDependencies))
	for alias, dep := range m.Dependencies {
		out[alias] = dep
	}
	for alias, dep := range m.PeerDependencies {
		out[alias] = dep
	}
	return out
}
