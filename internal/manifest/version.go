package manifest

import (
	"github.com/Masterminds/semver/v3"
	"github.com/cockroachdb/errors"

	"github.com/primaza/primazactl/internal/k8s"
)

// IsSentinel reports whether selector is matched literally rather than
// compared as a semantic version.
func IsSentinel(selector string) bool {
	return selector == VersionLatest || selector == VersionNightly
}

// ValidateSelector accepts "latest", "nightly", an empty selector and any
// semantic version.
func ValidateSelector(selector string) error {
	if selector == "" || IsSentinel(selector) {
		return nil
	}
	if _, err := semver.NewVersion(selector); err != nil {
		return k8s.Malformed("version %q is neither a semantic version nor one of %q, %q", selector, VersionLatest, VersionNightly)
	}
	return nil
}

// SelectRelease picks the release for selector. "latest" and "nightly"
// only match a release tagged with exactly that name. Otherwise a release
// whose tag equals the selector as a semantic version wins, and failing
// that the release with the highest valid semantic version. Tags that are
// not semantic versions never take part in the comparison.
func SelectRelease(releases []Release, selector string) (Release, error) {
	if err := ValidateSelector(selector); err != nil {
		return Release{}, err
	}

	if IsSentinel(selector) {
		for _, r := range releases {
			if r.Tag == selector {
				return r, nil
			}
		}
		return Release{}, errors.Wrapf(ErrReleaseNotFound, "no release tagged %q", selector)
	}

	var wanted *semver.Version
	if selector != "" {
		wanted = semver.MustParse(selector)
	}

	var (
		best        Release
		bestVersion *semver.Version
	)
	for _, r := range releases {
		v, err := semver.NewVersion(r.Tag)
		if err != nil {
			continue
		}
		if wanted != nil && v.Equal(wanted) {
			return r, nil
		}
		if bestVersion == nil || v.GreaterThan(bestVersion) {
			best, bestVersion = r, v
		}
	}

	if bestVersion == nil {
		return Release{}, errors.Wrapf(ErrReleaseNotFound, "no release matches version %q", selector)
	}
	return best, nil
}
