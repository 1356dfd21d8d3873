package cas

import (
	"encoding/json"
	"os"
	"path/filepath"

	digest "github.com/opencontainers/go-digest"
	"github.com/pkg/errors"

	"github.com/pesde-pkg/pesde-go/internal/errdefs"
)

// KnownProjects is the per-machine registry of lockfiles the prune
// operation sweeps for reachability (spec.md §4.4 "given the set of
// package identifiers currently installed across all known projects").
// It is persisted as a flat JSON array rather than the project's own
// TOML, since it lives in the user data directory, not a workspace.
type KnownProjects struct {
	LockfilePaths []string `json:"lockfile_paths"`
}

func LoadKnownProjects(path string) (*KnownProjects, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &KnownProjects{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading known-projects registry")
	}
	var kp KnownProjects
	if err := json.Unmarshal(data, &kp); err != nil {
		return nil, errdefs.Wrap(err, errdefs.MalformedManifest, "decoding known-projects registry")
	}
	return &kp, nil
}

func (kp *KnownProjects) Save(path string) error {
	data, err := json.MarshalIndent(kp, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Remember registers a lockfile path, deduplicating if already tracked.
func (kp *KnownProjects) Remember(lockfilePath string) {
	for _, p := range kp.LockfilePaths {
		if p == lockfilePath {
			return
		}
	}
	kp.LockfilePaths = append(kp.LockfilePaths, lockfilePath)
}

// Prune implements spec.md §4.4/§4.5 "only prune may delete": it reads
// every known project's lockfile, computes the reachable set of tree and
// blob hashes, and removes every CAS entry not in that set.
func (s *Store) Prune(knownProjectsPath string, readLockfileFingerprints func(path string) ([]string, error)) (removedBlobs, removedTrees int, err error) {
	kp, err := LoadKnownProjects(knownProjectsPath)
	if err != nil {
		return 0, 0, err
	}

	reachableTrees := map[string]bool{}
	reachableBlobs := map[string]bool{}

	for _, lockPath := range kp.LockfilePaths {
		fingerprints, ferr := readLockfileFingerprints(lockPath)
		if ferr != nil {
			// A project that moved or was deleted shouldn't block
			// pruning everyone else's CAS entries.
			continue
		}
		for _, fp := range fingerprints {
			d, derr := digest.Parse(fp)
			if derr != nil {
				continue
			}
			reachableTrees[d.String()] = true
			entries, terr := s.ReadTree(d)
			if terr != nil {
				continue
			}
			for _, e := range entries {
				reachableBlobs[e.Blob.String()] = true
			}
		}
	}

	removedTrees, err = sweepNamespace(filepath.Join(s.Root, "trees"), reachableTrees)
	if err != nil {
		return 0, 0, err
	}
	removedBlobs, err = sweepNamespace(filepath.Join(s.Root, "blobs"), reachableBlobs)
	if err != nil {
		return 0, 0, err
	}
	return removedBlobs, removedTrees, nil
}

func sweepNamespace(namespaceDir string, reachable map[string]bool) (int, error) {
	shards, err := os.ReadDir(namespaceDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errdefs.Wrap(err, errdefs.PermissionDenied, namespaceDir)
	}

	removed := 0
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		shardDir := filepath.Join(namespaceDir, shard.Name())
		entries, err := os.ReadDir(shardDir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			algoPrefix := "sha256:"
			key := algoPrefix + shard.Name() + entry.Name()
			if reachable[key] {
				continue
			}
			if err := os.Remove(filepath.Join(shardDir, entry.Name())); err != nil {
				continue
			}
			removed++
		}
	}
	return removed, nil
}
