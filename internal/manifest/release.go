package manifest

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/creativeprojects/go-selfupdate"
)

// Release is one published release and its downloadable assets.
type Release struct {
	Tag    string
	Assets []Asset
}

// Asset is one downloadable file of a release.
type Asset struct {
	Name string
	URL  string
}

// FindAsset returns the asset named name.
func (r Release) FindAsset(name string) (Asset, bool) {
	for _, a := range r.Assets {
		if a.Name == name {
			return a, true
		}
	}
	return Asset{}, false
}

// ReleaseLister lists the releases of a repository given as owner/name.
type ReleaseLister interface {
	ListReleases(ctx context.Context, repository string) ([]Release, error)
}

// GitHubReleases lists releases through the GitHub API. GITHUB_TOKEN is
// used when set to lift the anonymous rate limit.
type GitHubReleases struct{}

// ListReleases implements ReleaseLister.
func (GitHubReleases) ListReleases(ctx context.Context, repository string) ([]Release, error) {
	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{
		APIToken: os.Getenv("GITHUB_TOKEN"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create release source")
	}

	sourceReleases, err := source.ListReleases(ctx, selfupdate.ParseSlug(repository))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list releases of %s", repository)
	}

	releases := make([]Release, 0, len(sourceReleases))
	for _, sr := range sourceReleases {
		r := Release{Tag: sr.GetTagName()}
		for _, sa := range sr.GetAssets() {
			r.Assets = append(r.Assets, Asset{Name: sa.GetName(), URL: sa.GetBrowserDownloadURL()})
		}
		releases = append(releases, r)
	}
	return releases, nil
}

func download(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid asset url %s", url)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to download %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("failed to download %s: %s", url, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", url)
	}
	return data, nil
}
