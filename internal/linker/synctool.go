package linker

import (
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/pesde-pkg/pesde-go/internal/errdefs"
	"github.com/pesde-pkg/pesde-go/internal/manifest"
)

// runSyncTools implements spec.md §4.6's sync-tool configuration step:
// for roblox* targets, after materialization, invoke the
// roblox_sync_config_generator script declared in [scripts] once per
// package directory that carries build_files, passing that directory
// and its build_files list as arguments. Invocation is grounded on the
// teacher's internal/pkg/cmdrun.RunCmdSync (exec.Command with
// Pdeathsig so an aborted install never leaves an orphaned generator
// process, stdout/stderr passed through so its own diagnostics reach
// the user).
func (l *Linker) runSyncTools(rootDir string, root *manifest.Manifest, graph map[string]*manifest.GraphNode, rootEdges map[string]manifest.Identifier) error {
	if !root.Target.Environment.IsRoblox() {
		return nil
	}
	scriptPath, ok := root.Scripts["roblox_sync_config_generator"]
	if !ok || scriptPath == "" {
		return nil // no generator configured; nothing to do
	}

	folder := filepath.Join(rootDir, PackagesFolderName(root.Target.Environment))

	if len(root.Target.BuildFiles) > 0 {
		if err := runSyncConfigGenerator(scriptPath, rootDir, root.Target.BuildFiles); err != nil {
			return err
		}
	}

	seen := map[string]bool{}
	for _, id := range rootEdges {
		if err := syncNode(scriptPath, folder, id, graph, seen); err != nil {
			return err
		}
	}
	return nil
}

func syncNode(scriptPath, folder string, id manifest.Identifier, graph map[string]*manifest.GraphNode, seen map[string]bool) error {
	key := id.String()
	if seen[key] {
		return nil
	}
	seen[key] = true

	node, ok := graph[key]
	if !ok {
		return nil
	}
	if id.Target.IsRoblox() && len(node.Summary.BuildFiles) > 0 {
		dir := materializationDir(folder, id)
		if err := runSyncConfigGenerator(scriptPath, dir, node.Summary.BuildFiles); err != nil {
			return err
		}
	}
	for _, edgeID := range node.Edges {
		if err := syncNode(scriptPath, folder, edgeID, graph, seen); err != nil {
			return err
		}
	}
	return nil
}

func runSyncConfigGenerator(scriptPath, packageDir string, buildFiles []string) error {
	args := append([]string{"run", scriptPath, packageDir}, buildFiles...)
	cmd := exec.Command("lune", args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGTERM}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return errdefs.Wrap(err, errdefs.SyncConfigGeneratorFailed, scriptPath+" on "+packageDir)
	}
	return nil
}
