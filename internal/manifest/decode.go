package manifest

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"

	"github.com/primaza/primazactl/internal/k8s"
)

// Decode splits a multi-document YAML or JSON stream into documents, in
// order. Empty documents are skipped. Every document must carry an
// apiVersion, a kind and a name.
func Decode(data []byte) ([]*unstructured.Unstructured, error) {
	decoder := utilyaml.NewYAMLOrJSONDecoder(bytes.NewReader(data), 4096)
	registry := k8s.NewRegistry()

	var docs []*unstructured.Unstructured
	for i := 0; ; i++ {
		var obj map[string]any
		if err := decoder.Decode(&obj); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, errors.Mark(errors.Wrapf(err, "document %d", i), k8s.ErrMalformedInput)
		}
		if len(obj) == 0 {
			continue
		}

		doc := &unstructured.Unstructured{Object: obj}
		if _, err := registry.ForObject(doc); err != nil {
			return nil, errors.Wrapf(err, "document %d", i)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
