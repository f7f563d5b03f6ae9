package runctx

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/cockroachdb/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/yaml"

	"github.com/primaza/primazactl/internal/logging"
)

// DryRunMode selects how mutating calls are issued.
type DryRunMode string

// OutputMode selects whether accumulated resources are rendered.
type OutputMode string

const (
	DryRunNone   DryRunMode = "none"
	DryRunClient DryRunMode = "client"
	DryRunServer DryRunMode = "server"

	OutputNone OutputMode = "none"
	OutputYAML OutputMode = "yaml"
)

// RedactedValue replaces every Secret payload value before it is recorded.
const RedactedValue = "<redacted>"

// ParseDryRun validates a dry-run flag value. An empty value means none.
func ParseDryRun(s string) (DryRunMode, error) {
	switch DryRunMode(s) {
	case "", DryRunNone:
		return DryRunNone, nil
	case DryRunClient, DryRunServer:
		return DryRunMode(s), nil
	default:
		return DryRunNone, errors.Newf("invalid dry-run mode %q, must be one of none, client, server", s)
	}
}

// ParseOutput validates an output flag value. An empty value means none.
func ParseOutput(s string) (OutputMode, error) {
	switch OutputMode(s) {
	case "", OutputNone:
		return OutputNone, nil
	case OutputYAML:
		return OutputYAML, nil
	default:
		return OutputNone, errors.Newf("invalid output mode %q, must be one of none, yaml", s)
	}
}

// RunContext carries the dry-run and output modes of one invocation and
// collects the resources and warnings produced while it runs.
type RunContext struct {
	dryRun DryRunMode
	output OutputMode
	logger *slog.Logger

	items    []map[string]any
	warnings []string
}

// New creates a RunContext. Invalid modes are expected to have been
// rejected by ParseDryRun and ParseOutput.
func New(dryRun DryRunMode, output OutputMode, logger *slog.Logger) *RunContext {
	if dryRun == "" {
		dryRun = DryRunNone
	}
	if output == "" {
		output = OutputNone
	}
	return &RunContext{
		dryRun: dryRun,
		output: output,
		logger: logging.OrDefault(logger),
	}
}

// Default returns a RunContext with dry-run and output disabled.
func Default() *RunContext {
	return New(DryRunNone, OutputNone, nil)
}

// DryRun returns the configured dry-run mode.
func (r *RunContext) DryRun() DryRunMode { return r.dryRun }

// Output returns the configured output mode.
func (r *RunContext) Output() OutputMode { return r.output }

// DryRunActive reports whether any dry-run mode is set.
func (r *RunContext) DryRunActive() bool { return r.dryRun != DryRunNone }

// ClientDryRun reports whether mutating calls must be skipped entirely.
func (r *RunContext) ClientDryRun() bool { return r.dryRun == DryRunClient }

// ServerDryRun reports whether mutating calls carry the server dry-run flag.
func (r *RunContext) ServerDryRun() bool { return r.dryRun == DryRunServer }

// OutputActive reports whether accumulated resources will be rendered.
func (r *RunContext) OutputActive() bool { return r.output != OutputNone }

// Recording reports whether Record keeps documents.
func (r *RunContext) Recording() bool { return r.OutputActive() || r.DryRunActive() }

// Record appends a copy of obj to the resource list. Secret payloads are
// replaced with RedactedValue and a warning is added for each redacted
// secret. Typed objects without apiVersion/kind get them from the client-go
// scheme.
func (r *RunContext) Record(obj runtime.Object) error {
	if !r.Recording() || obj == nil {
		return nil
	}

	content, err := toMap(obj)
	if err != nil {
		return err
	}

	u := &unstructured.Unstructured{Object: content}
	if u.GetKind() == "Secret" && redactSecret(u.Object) {
		r.AddWarning(fmt.Sprintf("secret %s/%s payload redacted in output", u.GetNamespace(), u.GetName()))
	}

	r.items = append(r.items, u.Object)
	return nil
}

// AddWarning appends a warning to the side list and logs it.
func (r *RunContext) AddWarning(message string) {
	r.logger.Warn(message, logging.DryRun(string(r.dryRun)))
	if !r.Recording() {
		return
	}
	prefix := "WARNING: "
	if r.DryRunActive() {
		prefix = fmt.Sprintf("WARNING: (dry run %s) ", r.dryRun)
	}
	r.warnings = append(r.warnings, prefix+message)
}

// Items returns the recorded resources in recording order.
func (r *RunContext) Items() []map[string]any {
	out := make([]map[string]any, len(r.items))
	copy(out, r.items)
	return out
}

// Warnings returns the recorded warnings in recording order.
func (r *RunContext) Warnings() []string {
	out := make([]string, len(r.warnings))
	copy(out, r.warnings)
	return out
}

// Render writes the resource list to out and the warnings to errOut. It is
// a no-op unless an output mode is set.
func (r *RunContext) Render(out, errOut io.Writer) error {
	if !r.OutputActive() {
		return nil
	}

	items := r.items
	if items == nil {
		items = []map[string]any{}
	}
	doc := map[string]any{
		"apiVersion": "v1",
		"items":      items,
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "rendering output")
	}
	if _, err := out.Write(data); err != nil {
		return errors.Wrap(err, "writing output")
	}

	for _, w := range r.warnings {
		if _, err := fmt.Fprintln(errOut, w); err != nil {
			return errors.Wrap(err, "writing warnings")
		}
	}
	return nil
}

func toMap(obj runtime.Object) (map[string]any, error) {
	if u, ok := obj.(*unstructured.Unstructured); ok {
		return u.DeepCopy().Object, nil
	}

	obj = obj.DeepCopyObject()
	if obj.GetObjectKind().GroupVersionKind().Kind == "" {
		gvks, _, err := scheme.Scheme.ObjectKinds(obj)
		if err != nil || len(gvks) == 0 {
			return nil, errors.Wrapf(err, "resolving kind of %T", obj)
		}
		obj.GetObjectKind().SetGroupVersionKind(gvks[0])
	}

	content, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	if err != nil {
		return nil, errors.Wrapf(err, "converting %T", obj)
	}
	return content, nil
}

// redactSecret replaces every data and stringData value in place and
// reports whether anything was replaced.
func redactSecret(obj map[string]any) bool {
	redacted := false
	for _, field := range []string{"data", "stringData"} {
		payload, ok := obj[field].(map[string]any)
		if !ok {
			continue
		}
		for k := range payload {
			payload[k] = RedactedValue
			redacted = true
		}
	}
	return redacted
}
