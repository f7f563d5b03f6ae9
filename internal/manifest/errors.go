package manifest

import "github.com/cockroachdb/errors"

var (
	// ErrReleaseNotFound indicates that no release matches the version selector.
	ErrReleaseNotFound = errors.New("release not found")

	// ErrAssetNotFound indicates that the selected release has no asset for
	// the manifest type.
	ErrAssetNotFound = errors.New("release asset not found")
)
