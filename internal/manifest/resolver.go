package manifest

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-cleanhttp"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/primaza/primazactl/internal/logging"
)

// Source identifies one manifest. Path takes precedence over the remote
// release lookup by Version and Type.
type Source struct {
	Path      string
	Version   string
	Type      Type
	Namespace string
}

type cacheKey struct {
	path, version string
	typ           Type
}

// Resolver loads manifests. Each distinct file or release asset is loaded
// at most once per resolver; callers receive fresh copies retargeted to
// the requested namespace.
type Resolver struct {
	lister     ReleaseLister
	client     *http.Client
	repository string
	logger     *slog.Logger

	mu       sync.Mutex
	cache    map[cacheKey][]*unstructured.Unstructured
	releases []Release
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithReleaseLister replaces the GitHub release source.
func WithReleaseLister(l ReleaseLister) Option {
	return func(r *Resolver) { r.lister = l }
}

// WithHTTPClient replaces the client used for asset downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// WithRepository replaces the release repository.
func WithRepository(repo string) Option {
	return func(r *Resolver) { r.repository = repo }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a resolver for the primaza release repository.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		lister:     GitHubReleases{},
		client:     cleanhttp.DefaultClient(),
		repository: Repository(),
		cache:      make(map[cacheKey][]*unstructured.Unstructured),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrDefault(r.logger)
	return r
}

// Resolve returns the documents of src in manifest order, retargeted to
// src.Namespace.
func (r *Resolver) Resolve(ctx context.Context, src Source) ([]*unstructured.Unstructured, error) {
	key := cacheKey{path: src.Path}
	if src.Path == "" {
		key = cacheKey{version: src.Version, typ: src.Type}
	}

	r.mu.Lock()
	docs, ok := r.cache[key]
	r.mu.Unlock()

	if !ok {
		data, err := r.load(ctx, src)
		if err != nil {
			return nil, err
		}
		docs, err = Decode(data)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid manifest %s", describe(src))
		}

		r.mu.Lock()
		r.cache[key] = docs
		r.mu.Unlock()
	}

	return Retarget(docs, src.Namespace), nil
}

func (r *Resolver) load(ctx context.Context, src Source) ([]byte, error) {
	if src.Path != "" {
		r.logger.Debug("loading manifest file", slog.String("path", src.Path))
		data, err := os.ReadFile(src.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read manifest %s", src.Path)
		}
		return data, nil
	}

	if src.Type == "" {
		return nil, errors.New("manifest source has neither a path nor a type")
	}

	releases, err := r.listReleases(ctx)
	if err != nil {
		return nil, err
	}

	release, err := SelectRelease(releases, src.Version)
	if err != nil {
		return nil, errors.Wrapf(err, "repository %s", r.repository)
	}

	name := src.Type.AssetName(release.Tag)
	asset, ok := release.FindAsset(name)
	if !ok {
		return nil, errors.Wrapf(ErrAssetNotFound, "%s in release %s of %s", name, release.Tag, r.repository)
	}

	r.logger.Info("downloading manifest",
		slog.String("asset", asset.Name),
		slog.String("release", release.Tag),
		logging.Host(asset.URL))
	return download(ctx, r.client, asset.URL)
}

func (r *Resolver) listReleases(ctx context.Context) ([]Release, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.releases != nil {
		return r.releases, nil
	}
	releases, err := r.lister.ListReleases(ctx, r.repository)
	if err != nil {
		return nil, err
	}
	r.releases = releases
	return releases, nil
}

func describe(src Source) string {
	if src.Path != "" {
		return src.Path
	}
	version := src.Version
	if version == "" {
		version = "newest"
	}
	return string(src.Type) + " " + version
}
