package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// row is one label/value line of table output.
type row struct {
	label string
	value string
}

// render writes v as JSON or YAML, or rows as an aligned two-column table.
func render(w io.Writer, format string, v any, rows []row) error {
	switch strings.ToLower(format) {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	case formatTable, "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, r := range rows {
			fmt.Fprintf(tw, "%s:\t%s\n", r.label, r.value)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("invalid format: %q (must be table, json, or yaml)", format)
	}
}
