package k8s

import "time"

const (
	// Default client performance settings
	DefaultQPSLimit   = 20.0
	DefaultBurstLimit = 30
	DefaultTimeout    = 30 * time.Second

	// FieldManager is recorded on every object this tool writes.
	FieldManager = "primazactl"

	// SelfCheckNamespace is where the custom resources defined by a
	// CustomResourceDefinition are checked for self access.
	SelfCheckNamespace = "kube-system"
)

// Pod readiness polling.
const (
	PodPollInterval = 2 * time.Second
	PodPollTimeout  = 60 * time.Second
)
