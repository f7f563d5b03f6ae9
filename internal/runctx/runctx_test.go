package runctx

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

func TestParseDryRun(t *testing.T) {
	tests := []struct {
		input   string
		want    DryRunMode
		wantErr bool
	}{
		{input: "", want: DryRunNone},
		{input: "none", want: DryRunNone},
		{input: "client", want: DryRunClient},
		{input: "server", want: DryRunServer},
		{input: "all", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDryRun(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseOutput(t *testing.T) {
	got, err := ParseOutput("yaml")
	require.NoError(t, err)
	assert.Equal(t, OutputYAML, got)

	_, err = ParseOutput("json")
	assert.Error(t, err)
}

func TestModes(t *testing.T) {
	tests := []struct {
		name         string
		dryRun       DryRunMode
		output       OutputMode
		dryRunActive bool
		client       bool
		server       bool
		outputActive bool
	}{
		{name: "defaults", dryRun: DryRunNone, output: OutputNone},
		{name: "client dry run", dryRun: DryRunClient, output: OutputNone, dryRunActive: true, client: true},
		{name: "server dry run with yaml", dryRun: DryRunServer, output: OutputYAML, dryRunActive: true, server: true, outputActive: true},
		{name: "yaml only", dryRun: DryRunNone, output: OutputYAML, outputActive: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := New(tt.dryRun, tt.output, nil)
			assert.Equal(t, tt.dryRunActive, rc.DryRunActive())
			assert.Equal(t, tt.client, rc.ClientDryRun())
			assert.Equal(t, tt.server, rc.ServerDryRun())
			assert.Equal(t, tt.outputActive, rc.OutputActive())
		})
	}
}

func TestRecordInactive(t *testing.T) {
	rc := Default()
	require.NoError(t, rc.Record(&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "ns"}}))
	assert.Empty(t, rc.Items())
}

func TestRecordTypedObjectGetsKind(t *testing.T) {
	rc := New(DryRunClient, OutputNone, nil)

	require.NoError(t, rc.Record(&corev1.ServiceAccount{
		ObjectMeta: metav1.ObjectMeta{Name: "primaza-app-agent", Namespace: "app"},
	}))

	items := rc.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "ServiceAccount", items[0]["kind"])
	assert.Equal(t, "v1", items[0]["apiVersion"])
}

func TestRecordRedactsSecrets(t *testing.T) {
	rc := New(DryRunClient, OutputYAML, nil)

	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "primaza-tenant1-kubeconfig", Namespace: "primaza-system"},
		StringData: map[string]string{"kubeconfig": "apiVersion: v1\nusers: [token: abc]"},
		Data:       map[string][]byte{"token": []byte("abc")},
	}
	require.NoError(t, rc.Record(secret))

	items := rc.Items()
	require.Len(t, items, 1)
	assert.Equal(t, RedactedValue, items[0]["stringData"].(map[string]any)["kubeconfig"])
	assert.Equal(t, RedactedValue, items[0]["data"].(map[string]any)["token"])

	// the caller's object is untouched
	assert.Equal(t, "abc", string(secret.Data["token"]))

	warnings := rc.Warnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "WARNING: (dry run client)")
	assert.Contains(t, warnings[0], "primaza-system/primaza-tenant1-kubeconfig")
}

func TestRecordUnstructuredCopies(t *testing.T) {
	rc := New(DryRunNone, OutputYAML, nil)
	u := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "v1",
		"kind":       "ConfigMap",
		"metadata":   map[string]any{"name": "cm"},
	}}
	require.NoError(t, rc.Record(u))

	u.SetName("changed")
	assert.Equal(t, "cm", rc.Items()[0]["metadata"].(map[string]any)["name"])
}

func TestRender(t *testing.T) {
	t.Run("inactive output writes nothing", func(t *testing.T) {
		rc := New(DryRunClient, OutputNone, nil)
		var out, errOut bytes.Buffer
		require.NoError(t, rc.Render(&out, &errOut))
		assert.Empty(t, out.String())
	})

	t.Run("yaml list with warnings", func(t *testing.T) {
		rc := New(DryRunNone, OutputYAML, nil)
		require.NoError(t, rc.Record(&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "app"}}))
		rc.AddWarning("something to know")

		var out, errOut bytes.Buffer
		require.NoError(t, rc.Render(&out, &errOut))

		assert.Contains(t, out.String(), "apiVersion: v1")
		assert.Contains(t, out.String(), "items:")
		assert.Contains(t, out.String(), "kind: Namespace")
		assert.Equal(t, "WARNING: something to know\n", errOut.String())
	})

	t.Run("empty list", func(t *testing.T) {
		rc := New(DryRunNone, OutputYAML, nil)
		var out, errOut bytes.Buffer
		require.NoError(t, rc.Render(&out, &errOut))
		assert.Contains(t, out.String(), "items: []")
	})
}
