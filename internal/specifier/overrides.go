package specifier

import (
	"strings"

	"github.com/pesde-pkg/pesde-go/internal/errdefs"
	"github.com/pesde-pkg/pesde-go/internal/manifest"
)

// GraphPath is the alias chain from a root to a node (spec.md
// GLOSSARY), used as the key space for overrides.
type GraphPath []string

// Join renders the path the way an override key names it: aliases
// joined by '>'.
func (p GraphPath) Join() string {
	return strings.Join([]string(p), ">")
}

// ApplyOverrides implements spec.md §4.1's apply-overrides operation.
// An override key is a comma-separated list of '>'-joined alias paths;
// if the current graph path matches any key, that override's value
// replaces spec. An override value that is an alias reference
// (Override.IsAliasRef) is resolved against the root's own declared
// dependency specs instead of being used literally.
func ApplyOverrides(path GraphPath, spec manifest.DependencySpec, overrides map[string]manifest.Override, rootDeps map[string]manifest.DependencySpec) (manifest.DependencySpec, error) {
	current := path.Join()
	for key, override := range overrides {
		if !keyMatches(key, current) {
			continue
		}
		if override.IsAliasRef() {
			rootSpec, ok := rootDeps[override.AliasOf]
			if !ok {
				return spec, errdefs.New(errdefs.ConflictingOverride, "override alias_of refers to an undeclared root dependency: "+override.AliasOf)
			}
			return rootSpec, nil
		}
		return override.DependencySpec, nil
	}
	return spec, nil
}

func keyMatches(key, current string) bool {
	for _, candidate := range strings.Split(key, ",") {
		if strings.TrimSpace(candidate) == current {
			return true
		}
	}
	return false
}
