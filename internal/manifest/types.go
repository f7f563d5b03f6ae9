package manifest

import (
	"fmt"
	"os"
)

// Type names a manifest published with every primaza release.
type Type string

const (
	ControlPlaneConfig     Type = "control_plane_config"
	WorkerConfig           Type = "crds_config"
	ApplicationAgentConfig Type = "application_namespace_config"
	ServiceAgentConfig     Type = "service_namespace_config"
)

// AssetName returns the release asset holding the manifest for tag.
func (t Type) AssetName(tag string) string {
	return fmt.Sprintf("%s_%s.yaml", t, tag)
}

// FileName is the name of the manifest inside a local manifest directory.
func (t Type) FileName() string {
	return string(t) + ".yaml"
}

// Version selectors matched literally against release tags.
const (
	VersionLatest  = "latest"
	VersionNightly = "nightly"
)

const (
	// DefaultRepository hosts the primaza releases.
	DefaultRepository = "primaza/primaza"

	// RepositoryOverrideEnv replaces DefaultRepository when set.
	RepositoryOverrideEnv = "PRIMAZA_REPOSITORY_OVERRIDE"
)

// Repository returns the release repository in owner/name form.
func Repository() string {
	if repo := os.Getenv(RepositoryOverrideEnv); repo != "" {
		return repo
	}
	return DefaultRepository
}
