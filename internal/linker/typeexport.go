package linker

import (
	"os"
	"regexp"

	"github.com/pesde-pkg/pesde-go/internal/errdefs"
)

// exportTypeRe matches a top-level `export type Name` declaration.
// spec.md §4.6 only requires listing exported type alias names, not
// full understanding of their definitions, so a line-oriented regex
// scan over the (already patched) entry file is sufficient — a full
// Luau parser would be a large undertaking for no additional behavior
// the spec asks for.
var exportTypeRe = regexp.MustCompile(`(?m)^\s*export\s+type\s+([A-Za-z_][A-Za-z0-9_]*)`)

// exportedTypesOf lists the exported type alias names declared in a
// library entry file, read after patches have already been applied to
// the materialized tree (spec.md §4.5 step 5, §4.6).
func exportedTypesOf(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.Wrap(err, errdefs.EntryPointMissing, path)
	}
	matches := exportTypeRe.FindAllSubmatch(data, -1)
	names := make([]string, 0, len(matches))
	seen := map[string]bool{}
	for _, m := range matches {
		name := string(m[1])
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}
