// Command pesde is a thin cobra CLI over internal/engine, grounded on
// the teacher's mantle/cli.Execute (persistent flags + PreRunE logging
// setup) and cmd/gangue/gangue.go (one cobra root, one subcommand per
// verb, Run bodies that call straight into library code).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pesde-pkg/pesde-go/internal/cas"
	"github.com/pesde-pkg/pesde-go/internal/config"
	"github.com/pesde-pkg/pesde-go/internal/engine"
	"github.com/pesde-pkg/pesde-go/internal/logging"
	"github.com/pesde-pkg/pesde-go/internal/manifest"
	"github.com/pesde-pkg/pesde-go/internal/resolver"
)

var (
	flagLocked  bool
	flagProd    bool
	flagDevOnly bool
	flagVerbose bool

	rootCmd = &cobra.Command{
		Use:   "pesde",
		Short: "A package manager for the Luau ecosystem",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagVerbose {
				logging.Root.SetLevel(logging.Root.GetLevel() + 1)
			}
		},
	}

	installCmd = &cobra.Command{
		Use:   "install",
		Short: "Resolve, download, and link the current project's dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(resolver.Flags{Locked: flagLocked, Prod: flagProd, DevOnly: flagDevOnly})
		},
	}

	updateCmd = &cobra.Command{
		Use:   "update",
		Short: "Re-resolve dependencies against the latest compatible versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(resolver.Flags{Update: true, Prod: flagProd, DevOnly: flagDevOnly})
		},
	}

	publishCmd = &cobra.Command{
		Use:   "publish",
		Short: "Validate the current project's manifest for publication",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish()
		},
	}

	pruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Remove CAS entries unreachable from any known project's lockfile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "increase log verbosity")

	installCmd.Flags().BoolVar(&flagLocked, "locked", false, "reuse the lockfile's pinned versions; link straight from it when the manifest is unchanged")
	installCmd.Flags().BoolVar(&flagProd, "prod", false, "omit dev dependencies")
	installCmd.Flags().BoolVar(&flagDevOnly, "dev-only", false, "resolve dev dependencies only")

	updateCmd.Flags().BoolVar(&flagProd, "prod", false, "omit dev dependencies")
	updateCmd.Flags().BoolVar(&flagDevOnly, "dev-only", false, "resolve dev dependencies only")

	rootCmd.AddCommand(installCmd, updateCmd, publishCmd, pruneCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
	os.Exit(0)
}

// printError renders the one-line-reason-then-causal-chain shape spec.md
// §7 calls for: the outermost taxonomy error first, then each wrapped
// cause on its own indented line.
func printError(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		fmt.Fprintln(os.Stderr, "  caused by:", cause)
	}
}

func userDataDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, "pesde")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func runInstall(flags resolver.Flags) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	udd, err := userDataDir()
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	eng, err := engine.Open(cfg, udd, cwd)
	if err != nil {
		return err
	}

	if _, err := eng.Install(context.Background(), cwd, flags); err != nil {
		return err
	}

	kp, err := cas.LoadKnownProjects(knownProjectsPath(udd))
	if err != nil {
		return err
	}
	kp.Remember(filepath.Join(cwd, "pesde.lock"))
	return kp.Save(knownProjectsPath(udd))
}

func runPublish() error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	m, err := manifest.Load(filepath.Join(cwd, "pesde.toml"))
	if err != nil {
		return err
	}
	if err := m.ValidateForPublish(); err != nil {
		return err
	}
	fmt.Printf("%s is valid for publication\n", m.Name.String())
	return nil
}

func runPrune() error {
	udd, err := userDataDir()
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	casRoot := cfg.CASRoot
	if casRoot == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		casRoot, err = cas.FindRoot(udd, cwd)
		if err != nil {
			return err
		}
	}
	store, err := cas.Open(casRoot)
	if err != nil {
		return err
	}

	removedBlobs, removedTrees, err := store.Prune(knownProjectsPath(udd), readLockfileFingerprints)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d blobs, %d trees\n", removedBlobs, removedTrees)
	return nil
}

func knownProjectsPath(userDataDir string) string {
	return filepath.Join(userDataDir, "known-projects.json")
}

// readLockfileFingerprints decouples internal/cas from internal/manifest:
// Prune only needs the set of tree fingerprints a lockfile reaches.
func readLockfileFingerprints(path string) ([]string, error) {
	lf, err := manifest.LoadLockfile(path)
	if err != nil {
		return nil, err
	}
	if lf == nil {
		return nil, nil
	}
	fingerprints := make([]string, 0, len(lf.Graph))
	for _, node := range lf.Graph {
		if node.SourceArtifactFingerprint != "" {
			fingerprints = append(fingerprints, node.SourceArtifactFingerprint)
		}
	}
	return fingerprints, nil
}
