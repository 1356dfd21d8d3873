package download

import (
	"os"
	"path/filepath"

	"github.com/pesde-pkg/pesde-go/internal/manifest"
)

// forbiddenFiles implements spec.md §4.5 step 4: "strip forbidden files
// according to target kind (e.g., the game runtime strips
// default.project.json from git and foreign-registry dependencies to
// avoid project-root conflicts)".
func forbiddenFiles(target manifest.TargetKind, source manifest.SourceKind) []string {
	if target.IsRoblox() && (source == manifest.SourceGit || source == manifest.SourceForeign) {
		return []string{"default.project.json"}
	}
	return nil
}

func stripForbidden(dir string, target manifest.TargetKind, source manifest.SourceKind) error {
	for _, name := range forbiddenFiles(target, source) {
		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
