// Package linker implements spec.md §4.6: producing a project's on-disk
// packages folder from the resolved graph and the CAS, including
// require shims, cross-package type re-export, binary shims, and
// roblox* sync-tool invocation. Directory-tree construction is plain
// os/filepath; the external-script invocation is grounded on the
// teacher's internal/pkg/cmdrun (RunCmdSync: exec.Command with
// Pdeathsig, stdout/stderr passed through).
package linker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	digest "github.com/opencontainers/go-digest"

	"github.com/pesde-pkg/pesde-go/internal/cas"
	"github.com/pesde-pkg/pesde-go/internal/errdefs"
	"github.com/pesde-pkg/pesde-go/internal/logging"
	"github.com/pesde-pkg/pesde-go/internal/manifest"
)

var log = logging.For("linker")

// Ext is the source file suffix every shim and library entry point
// carries in this ecosystem (spec.md §8's literal scenario).
const Ext = ".luau"

// PackagesFolderName implements spec.md §4.6's "one per target kind" packages
// folder naming; roblox_server shares its client's folder since the two
// are install-time compatible (spec.md §3 Target.Compatible).
func PackagesFolderName(t manifest.TargetKind) string {
	if t == manifest.TargetRobloxServer {
		t = manifest.TargetRoblox
	}
	return string(t) + "_packages"
}

// Linker materializes one root's packages folder.
type Linker struct {
	Store *cas.Store
}

// pkgDirName renders scope/name as scope+name, the on-disk directory
// name used under .pesde/ (spec.md §4.6 layout, §8 literal scenario).
func pkgDirName(name string) string {
	return strings.Replace(name, "/", "+", 1)
}

func materializationDir(folder string, id manifest.Identifier) string {
	return filepath.Join(folder, ".pesde", pkgDirName(id.Name), id.Version, string(id.Target))
}

// Install writes the full packages folder for one root manifest: the
// top-level per-alias shims, and inside each dependency's own
// materialization scope, the re-export shims for its own edges
// (spec.md §4.6).
func (l *Linker) Install(rootDir string, root *manifest.Manifest, rootEdges map[string]manifest.Identifier, graph map[string]*manifest.GraphNode, prod bool) error {
	folder := filepath.Join(rootDir, PackagesFolderName(root.Target.Environment))
	if err := os.MkdirAll(filepath.Join(folder, ".pesde"), 0o755); err != nil {
		return errdefs.Wrap(err, errdefs.PermissionDenied, folder)
	}

	materialized := map[string]bool{}
	for _, node := range graph {
		if prod && node.IsDev {
			continue
		}
		if err := l.materializeNode(folder, node, graph, materialized); err != nil {
			return err
		}
	}

	for alias, id := range rootEdges {
		node, ok := graph[id.String()]
		if !ok {
			continue
		}
		if prod && node.IsDev {
			continue
		}
		if node.Summary.Lib == "" && node.Summary.Bin == "" {
			return errdefs.New(errdefs.EntryPointMissing, id.String())
		}
		if node.Summary.Lib != "" {
			if err := writeShim(folder, filepath.Join(folder, alias+Ext), node); err != nil {
				return err
			}
		}
		if node.Summary.Bin != "" {
			if err := writeBinShim(filepath.Join(folder, alias+".bin"+Ext), node); err != nil {
				return err
			}
		}
	}

	return l.runSyncTools(rootDir, root, graph, rootEdges)
}

func (l *Linker) materializeNode(folder string, node *manifest.GraphNode, graph map[string]*manifest.GraphNode, done map[string]bool) error {
	key := node.Identifier.String()
	if done[key] {
		return nil
	}
	done[key] = true

	dir := materializationDir(folder, node.Identifier)
	if node.SourceArtifactFingerprint != "" {
		d, err := digest.Parse(node.SourceArtifactFingerprint)
		if err != nil {
			return errdefs.Wrap(err, errdefs.ArtifactCorrupt, "parsing tree fingerprint for "+key)
		}
		if err := l.Store.Materialize(d, dir); err != nil {
			return err
		}
	}

	for alias, edgeID := range node.Edges {
		edgeNode, ok := graph[edgeID.String()]
		if !ok {
			continue
		}
		if err := l.materializeNode(folder, edgeNode, graph, done); err != nil {
			return err
		}
		if edgeNode.Summary.Lib == "" {
			continue // nothing to re-export; a bin-only dependency has no require surface
		}
		shimPath := filepath.Join(dir, alias+Ext)
		if err := writeShim(folder, shimPath, edgeNode); err != nil {
			return err
		}
	}
	return nil
}

// writeShim renders the require shim for node at shimPath (spec.md
// §4.6): a relative require to node's lib entry, plus re-exported type
// aliases when node declares any.
func writeShim(folder, shimPath string, node *manifest.GraphNode) error {
	libDir := materializationDir(folder, node.Identifier)
	libPath := filepath.Join(libDir, node.Summary.Lib)
	libPathNoExt := strings.TrimSuffix(libPath, filepath.Ext(libPath))

	reqPath, err := relativeRequire(filepath.Dir(shimPath), libPathNoExt)
	if err != nil {
		return err
	}

	types, err := exportedTypesOf(libPath)
	if err != nil {
		log.WithField("lib", libPath).Warn("could not scan library for exported types")
		types = nil
	}

	var body string
	if len(types) == 0 {
		body = fmt.Sprintf("return require(%q)\n", reqPath)
	} else {
		var b strings.Builder
		fmt.Fprintf(&b, "local module = require(%q)\n\n", reqPath)
		for _, t := range types {
			fmt.Fprintf(&b, "export type %s = module.%s\n", t, t)
		}
		b.WriteString("\nreturn module\n")
		body = b.String()
	}

	if err := os.MkdirAll(filepath.Dir(shimPath), 0o755); err != nil {
		return errdefs.Wrap(err, errdefs.PermissionDenied, filepath.Dir(shimPath))
	}
	return os.WriteFile(shimPath, []byte(body), 0o644)
}

// relativeRequire computes the require("./...") argument from a shim's
// directory to a target file with its extension already stripped.
func relativeRequire(fromDir, targetNoExt string) (string, error) {
	rel, err := filepath.Rel(fromDir, targetNoExt)
	if err != nil {
		return "", errdefs.Wrap(err, errdefs.EntryPointMissing, targetNoExt)
	}
	rel = filepath.ToSlash(rel)
	if !strings.HasPrefix(rel, "./") && !strings.HasPrefix(rel, "../") {
		rel = "./" + rel
	}
	return rel, nil
}
