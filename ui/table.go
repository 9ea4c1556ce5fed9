package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/franksops/gofastq/engine"
	"github.com/franksops/gofastq/store"
)

func newTable(w io.Writer, header ...any) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.Header(header...)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Header = tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignLeft}}
		cfg.Row = tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignLeft}}
		// keep the indent of nested queue items
		cfg.Behavior.TrimSpace = tw.Off
	})
	return table
}

// RenderQueue prints a saved queue document, directories flattened with
// their children indented below them.
func RenderQueue(w io.Writer, doc engine.Document) error {
	if len(doc.Items) == 0 {
		_, err := fmt.Fprintln(w, "Queue is empty")
		return err
	}

	table := newTable(w, "Type", "Source", "Destination", "Size")
	var add func(items []engine.DocumentItem, depth int) error
	add = func(items []engine.DocumentItem, depth int) error {
		for _, it := range items {
			size := formatBytes(it.Size)
			kind := it.Type
			if kind == "" {
				kind = "file"
			}
			if kind == "directory" {
				size = "-"
			}
			source := strings.Repeat("  ", depth) + it.Source
			if err := table.Append([]string{kind, source, it.Dest, size}); err != nil {
				return err
			}
			if err := add(it.Children, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := add(doc.Items, 0); err != nil {
		return err
	}
	return table.Render()
}

// RenderFailed prints the failed-transfer registry.
func RenderFailed(w io.Writer, records []store.FailedRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No failed transfers")
		return err
	}

	table := newTable(w, "Source", "Destination", "Retries", "Error")
	for _, r := range records {
		if err := table.Append([]string{r.Source, r.Dest, fmt.Sprint(r.Retries), r.Error}); err != nil {
			return err
		}
	}
	return table.Render()
}
