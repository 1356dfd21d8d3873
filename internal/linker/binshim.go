package linker

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pesde-pkg/pesde-go/internal/errdefs"
	"github.com/pesde-pkg/pesde-go/internal/manifest"
)

// writeBinShim emits the executable entry for a dependency's bin
// (spec.md §4.6): the generated Luau locates the project root by
// walking upward for a manifest file, confirms the invoking directory
// is a workspace member by scanning the lockfile's workspace table, and
// otherwise delegates to the bin entry in-process via require — the
// same relative-require mechanism writeShim uses for libraries, since
// POSIX in-process execution avoids spawning an extra process.
func writeBinShim(shimPath string, node *manifest.GraphNode) error {
	folder := filepath.Dir(shimPath)
	binDir := materializationDir(folder, node.Identifier)
	binPath := filepath.Join(binDir, node.Summary.Bin)
	binPathNoExt := trimExt(binPath)

	reqPath, err := relativeRequire(filepath.Dir(shimPath), binPathNoExt)
	if err != nil {
		return err
	}

	body := fmt.Sprintf(binShimTemplate, reqPath)

	if err := os.MkdirAll(filepath.Dir(shimPath), 0o755); err != nil {
		return errdefs.Wrap(err, errdefs.PermissionDenied, filepath.Dir(shimPath))
	}
	return os.WriteFile(shimPath, []byte(body), 0o755)
}

func trimExt(p string) string {
	ext := filepath.Ext(p)
	if ext == "" {
		return p
	}
	return p[:len(p)-len(ext)]
}

// binShimTemplate walks upward for the nearest pesde.toml to locate the
// project root, then checks pesde.lock for a workspace entry naming the
// directory it was invoked from; a lockfile lacking that entry means the
// shim is being run outside the workspace it was linked for, which is
// an EntryPointMissing condition reported with exit code 1.
const binShimTemplate = `local process = require("@lune/process")
local fs = require("@lune/fs")

local function findRoot(startDir: string): string?
	local dir = startDir
	while true do
		if fs.isFile(dir .. "/pesde.toml") then
			return dir
		end
		local parent = dir:match("^(.*)/[^/]+$")
		if not parent or parent == dir then
			return nil
		end
		dir = parent
	end
end

local cwd = process.cwd:gsub("[/\\]+$", "")
local root = findRoot(cwd)
if root == nil then
	process.exit(1)
end

local lockPath = root .. "/pesde.lock"
if fs.isFile(lockPath) and root ~= cwd then
	local lock = fs.readFile(lockPath)
	local relMember = cwd:sub(#root + 2)
	if not lock:find(relMember, 1, true) then
		process.exit(1)
	end
end

return require(%q)
`
