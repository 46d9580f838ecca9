// Package cli holds shared helpers for the guidekit command line:
// output formatting and server connection resolution.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// OutputFormat selects how command results are rendered.
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// ParseFormat validates a --format flag value.
func ParseFormat(raw string) (OutputFormat, error) {
	switch OutputFormat(raw) {
	case FormatTable, FormatJSON, FormatYAML:
		return OutputFormat(raw), nil
	default:
		return "", fmt.Errorf("unsupported format: %s (want table, json, or yaml)", raw)
	}
}

// Print renders v in the given format. Table rendering is caller-specific,
// so callers pass it as a fallback func.
func Print(w io.Writer, v any, format OutputFormat, table func() error) error {
	switch format {
	case FormatJSON:
		return PrintJSON(w, v)
	case FormatYAML:
		return PrintYAML(w, v)
	default:
		return table()
	}
}

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintYAML writes v as YAML.
func PrintYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	enc.SetIndent(2)
	return enc.Encode(v)
}

// NewTable returns a table writer with the given header.
func NewTable(w io.Writer, headers ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.Header(toAny(headers)...)
	return table
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
