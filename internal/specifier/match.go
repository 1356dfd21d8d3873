package specifier

import (
	"strings"

	mmsemver "github.com/Masterminds/semver/v3"
	coreossemver "github.com/coreos/go-semver/semver"

	"github.com/pesde-pkg/pesde-go/internal/errdefs"
)

// Match implements spec.md §4.1's match operation: semver matching with
// the spec's explicit, non-standard carve-out that a bare "*"
// constraint also matches prerelease versions. Masterminds/semver hides
// prereleases from a constraint unless the constraint itself names one,
// so the bare-star case needs an explicit check before delegating.
func Match(constraint, candidate string) (bool, error) {
	candidate = strings.TrimPrefix(candidate, "v")
	cv, err := mmsemver.NewVersion(candidate)
	if err != nil {
		return false, errdefs.Wrap(err, errdefs.VersionNotFound, "invalid candidate version "+candidate)
	}

	trimmed := strings.TrimSpace(constraint)
	if trimmed == "" || trimmed == "*" {
		return true, nil
	}

	c, err := mmsemver.NewConstraint(trimmed)
	if err != nil {
		return false, errdefs.Wrap(err, errdefs.VersionNotFound, "invalid constraint "+constraint)
	}
	return c.Check(cv), nil
}

// HighestMatching returns the highest version in candidates satisfying
// constraint, using coreos/go-semver for the final ordering comparison
// (spec.md §4.3 point 3b: "the highest version in the adapter's list
// satisfying the constraint"; point 7: "equally valid versions prefer
// the higher semver").
func HighestMatching(constraint string, candidates []string) (string, bool, error) {
	var best string
	var bestV *coreossemver.Version
	found := false
	for _, cand := range candidates {
		ok, err := Match(constraint, cand)
		if err != nil {
			continue
		}
		if !ok {
			continue
		}
		v, err := coreossemver.NewVersion(strings.TrimPrefix(cand, "v"))
		if err != nil {
			continue
		}
		if !found || bestV.LessThan(*v) {
			best = cand
			bestV = v
			found = true
		}
	}
	return best, found, nil
}
