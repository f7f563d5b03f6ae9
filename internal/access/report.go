package access

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/primaza/primazactl/internal/k8s"
)

// WriteReport renders violations as a table.
func WriteReport(w io.Writer, violations []k8s.Violation) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Subject", "Namespace", "Verb", "Resource", "Name", "Expected", "Allowed"})
	for _, v := range violations {
		resource := v.Resource
		if v.Group != "" {
			resource += "." + v.Group
		}
		t.AppendRow(table.Row{v.Subject, v.Namespace, v.Verb, resource, v.Name, v.Expected, v.Allowed})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, AutoMerge: true},
		{Number: 2, AutoMerge: true},
	})

	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	t.Render()
}
