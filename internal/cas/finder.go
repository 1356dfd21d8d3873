package cas

import (
	"os"
	"path/filepath"
	"syscall"

	"github.com/pesde-pkg/pesde-go/internal/errdefs"
	"github.com/pesde-pkg/pesde-go/internal/logging"
)

// FindRoot implements the CAS-finder algorithm of spec.md §4.4: walk
// upward from userDataDir until a writable directory is found that is on
// the same mounted volume as workspaceDir (so cross-directory hard links
// stay possible); if no such ancestor exists, create a sibling CAS on
// the workspace's own volume. The device-id comparison is POSIX-only,
// matching the teacher's own Linux-only deployment target; a
// desktop-Windows port would swap this file for a volume-serial-number
// comparison.
func FindRoot(userDataDir, workspaceDir string) (string, error) {
	workspaceDev, err := deviceOf(workspaceDir)
	if err != nil {
		return "", errdefs.Wrap(err, errdefs.PermissionDenied, "statting workspace directory")
	}

	dir := userDataDir
	for {
		candidate := filepath.Join(dir, "cas")
		if writable(dir) {
			if dev, err := deviceOf(dir); err == nil && dev == workspaceDev {
				if err := os.MkdirAll(candidate, 0o755); err == nil {
					return candidate, nil
				}
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	logging.Warn("cas", "no writable same-volume ancestor found for user data dir; creating sibling CAS on workspace volume", map[string]interface{}{"workspace": workspaceDir})
	sibling := filepath.Join(workspaceDir, ".pesde-cas")
	if err := os.MkdirAll(sibling, 0o755); err != nil {
		return "", errdefs.Wrap(err, errdefs.PermissionDenied, sibling)
	}
	return sibling, nil
}

func writable(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	probe := filepath.Join(dir, ".pesde-writable-probe")
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(probe)
	return true
}

func deviceOf(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, errdefs.New(errdefs.PermissionDenied, "platform does not expose device id")
	}
	return uint64(st.Dev), nil
}
