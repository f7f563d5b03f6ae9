package manifest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primaza/primazactl/internal/k8s"
)

type stubLister struct {
	releases []Release
	calls    atomic.Int32
}

func (s *stubLister) ListReleases(_ context.Context, _ string) ([]Release, error) {
	s.calls.Add(1)
	return s.releases, nil
}

func TestResolver_Remote(t *testing.T) {
	var downloads atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downloads.Add(1)
		if r.URL.Path != "/crds_config_v1.2.0.yaml" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(publishedManifest))
	}))
	defer server.Close()

	lister := &stubLister{releases: []Release{
		{Tag: "v1.0.0", Assets: []Asset{{Name: "crds_config_v1.0.0.yaml", URL: server.URL + "/crds_config_v1.0.0.yaml"}}},
		{Tag: "v1.2.0", Assets: []Asset{{Name: "crds_config_v1.2.0.yaml", URL: server.URL + "/crds_config_v1.2.0.yaml"}}},
	}}
	resolver := NewResolver(WithReleaseLister(lister), WithHTTPClient(server.Client()), WithRepository("primaza/primaza"))

	docs, err := resolver.Resolve(context.Background(), Source{Version: "v9.0.0", Type: WorkerConfig, Namespace: "tenant1"})
	require.NoError(t, err)
	require.Len(t, docs, 5)
	assert.Equal(t, "tenant1", docs[0].GetName())

	again, err := resolver.Resolve(context.Background(), Source{Version: "v9.0.0", Type: WorkerConfig, Namespace: "other"})
	require.NoError(t, err)
	assert.Equal(t, "other", again[0].GetName())
	assert.Equal(t, "tenant1", docs[0].GetName(), "cached documents are copied per call")

	assert.Equal(t, int32(1), downloads.Load())
	assert.Equal(t, int32(1), lister.calls.Load())
}

func TestResolver_Errors(t *testing.T) {
	lister := &stubLister{releases: []Release{{Tag: "v1.0.0"}}}
	resolver := NewResolver(WithReleaseLister(lister))

	_, err := resolver.Resolve(context.Background(), Source{Version: "v1.0.0", Type: ControlPlaneConfig})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAssetNotFound))
	assert.Contains(t, err.Error(), "control_plane_config_v1.0.0.yaml")

	_, err = resolver.Resolve(context.Background(), Source{Version: "nightly", Type: ControlPlaneConfig})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReleaseNotFound))
}

func TestResolver_LocalPathWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(publishedManifest), 0o600))

	lister := &stubLister{}
	resolver := NewResolver(WithReleaseLister(lister))

	docs, err := resolver.Resolve(context.Background(), Source{Path: path, Version: "v1.0.0", Type: ControlPlaneConfig, Namespace: "ns"})
	require.NoError(t, err)
	assert.Len(t, docs, 5)
	assert.Equal(t, int32(0), lister.calls.Load())
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte("apiVersion: v1\nkind: Secret\nmetadata: {}\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, k8s.ErrMalformedInput))

	_, err = Decode([]byte("apiVersion: v1\nkind: [\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, k8s.ErrMalformedInput))

	docs, err := Decode([]byte("---\n---\napiVersion: v1\nkind: Namespace\nmetadata:\n  name: a\n"))
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestRepository(t *testing.T) {
	t.Setenv(RepositoryOverrideEnv, "")
	assert.Equal(t, DefaultRepository, Repository())

	t.Setenv(RepositoryOverrideEnv, "me/primaza-fork")
	assert.Equal(t, "me/primaza-fork", Repository())
}
