package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNames(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"worker identity", ServiceAccountName("tenant1", "env1", ""), "primaza-tenant1-env1"},
		{"typed identity", ServiceAccountName("tenant1", "env1", UserTypeApplication), "primaza-app-tenant1-env1"},
		{"worker token", TokenSecretName("tenant1", "env1", ""), "primaza-tkn-tenant1-env1"},
		{"typed token", TokenSecretName("tenant1", "env1", UserTypeService), "primaza-tkn-svc-tenant1-env1"},
		{"kubeconfig secret", KubeconfigSecretName("env1"), "primaza-env1-kubeconfig"},
		{"auth secret", AuthSecretName("env1"), "primaza-auth-env1"},
		{"agent", AgentServiceAccountName(UserTypeApplication), "primaza-app-agent"},
		{"role", ControlPlaneRoleName(UserTypeApplication), "primaza:controlplane:app"},
		{"role binding", ControlPlaneRoleBindingName("primaza-app-tenant1-env1"), "primaza-app-tenant1-env1:controlplane"},
		{"binding", NamespaceRoleBindingName("primaza-tenant1-env1", "service"), "primaza-tenant1-env1-service-binding"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestNamesAreBounded(t *testing.T) {
	long := strings.Repeat("a", 40)
	name := ServiceAccountName(long, long, UserTypeApplication)
	assert.LessOrEqual(t, len(name), MaxNameLength)
	assert.True(t, strings.HasPrefix(name, "primaza-app-"))

	// Truncation never leaves a trailing separator.
	name = ServiceAccountName(strings.Repeat("b", 54), "x", "")
	assert.LessOrEqual(t, len(name), MaxNameLength)
	assert.False(t, strings.HasSuffix(name, "-"))
}
