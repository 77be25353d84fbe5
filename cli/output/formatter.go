// Package output renders presets, resolutions and list query refreshes for
// the tracebase CLI.
package output

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/tracebase-eu/tracebase/cli/util"
	"github.com/tracebase-eu/tracebase/internal/api"
	"github.com/tracebase-eu/tracebase/internal/preset"
	"github.com/tracebase-eu/tracebase/internal/query"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Format selects how structured output is rendered
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// descriptionWidth bounds the DESCRIPTION column of the preset table
const descriptionWidth = 60

// ParseFormat maps the --output flag to a Format. Empty means table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("invalid output format %q: expected table, json or yaml", s)
}

// Formatter writes command output. Quiet suppresses all of it.
type Formatter struct {
	Format    Format
	NoHeaders bool
	Quiet     bool
	Writer    io.Writer
	ErrWriter io.Writer
}

// NewFormatter returns a formatter on stdout and stderr
func NewFormatter(format Format, noHeaders, quiet bool) *Formatter {
	return &Formatter{
		Format:    format,
		NoHeaders: noHeaders,
		Quiet:     quiet,
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
	}
}

// Print encodes data as YAML in yaml mode and as indented JSON otherwise
func (f *Formatter) Print(data interface{}) error {
	if f.Quiet {
		return nil
	}
	if f.Format == FormatYAML {
		enc := yaml.NewEncoder(f.Writer)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			_ = enc.Close()
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// PrintCompact writes data as one JSON line whatever the format
func (f *Formatter) PrintCompact(data interface{}) error {
	if f.Quiet {
		return nil
	}
	return json.NewEncoder(f.Writer).Encode(data)
}

// PrintRefresh writes the serialized list query of one refresh as a single
// JSON line
func (f *Formatter) PrintRefresh(qb *query.QueryBuilder) error {
	return f.PrintCompact(qb.BuildQuery())
}

// PrintPresets lists preset descriptors. Presets without an entity apply to
// any list and show as "any".
func (f *Formatter) PrintPresets(presets []preset.Descriptor) error {
	if len(presets) == 0 {
		f.PrintInfo("No presets found.")
		return nil
	}
	if f.Format != FormatTable {
		return f.Print(presets)
	}

	data := TableData{Headers: []string{"ID", "ENTITY", "ASYNC", "DESCRIPTION"}}
	for _, p := range presets {
		data.Rows = append(data.Rows, []string{
			string(p.ID),
			entityLabel(p.Entity),
			strconv.FormatBool(p.Async),
			util.TruncateString(p.Description, descriptionWidth),
		})
	}
	return f.PrintTable(data)
}

// PrintResolution prints a resolved preset. In table mode a key/value summary
// precedes the composed query.
func (f *Formatter) PrintResolution(resp *api.ResolveResponse) error {
	if f.Format != FormatTable {
		return f.Print(resp)
	}

	rows := [][]string{
		{"preset", string(resp.Preset)},
		{"entity", entityLabel(resp.Entity)},
		{"kind", resp.Kind},
	}
	if resp.Count != nil {
		rows = append(rows, []string{"count", strconv.Itoa(*resp.Count)})
	}
	if resp.Records != nil {
		rows = append(rows, []string{"records", strconv.Itoa(len(resp.Records))})
	}
	if err := f.PrintTable(TableData{Rows: rows}); err != nil {
		return err
	}
	f.PrintInfo("")
	return f.Print(resp.Query)
}

func entityLabel(e preset.Entity) string {
	if e == "" {
		return "any"
	}
	return string(e)
}

// TableData holds headers and rows of a table
type TableData struct {
	Headers []string
	Rows    [][]string
}

// records turns rows into objects keyed by header. Cells past the last header
// are dropped.
func (d TableData) records() []map[string]string {
	out := make([]map[string]string, 0, len(d.Rows))
	for _, row := range d.Rows {
		rec := make(map[string]string, len(d.Headers))
		for i := 0; i < len(row) && i < len(d.Headers); i++ {
			rec[d.Headers[i]] = row[i]
		}
		out = append(out, rec)
	}
	return out
}

// PrintTable renders a borderless tab-padded table in table mode, otherwise
// one object per row
func (f *Formatter) PrintTable(data TableData) error {
	if f.Quiet {
		return nil
	}
	if f.Format != FormatTable {
		return f.Print(data.records())
	}

	table := tablewriter.NewWriter(f.Writer)
	if len(data.Headers) > 0 && !f.NoHeaders {
		table.SetHeader(data.Headers)
		table.SetAutoFormatHeaders(true)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetHeaderLine(false)
	}
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	table.AppendBulk(data.Rows)
	table.Render()
	return nil
}

// PrintInfo writes a line to the output
func (f *Formatter) PrintInfo(message string) {
	if !f.Quiet {
		_, _ = fmt.Fprintln(f.Writer, message)
	}
}

// PrintWarning writes a warning line to the error output
func (f *Formatter) PrintWarning(message string) {
	if !f.Quiet {
		_, _ = fmt.Fprintln(f.errWriter(), "Warning:", message)
	}
}

// PrintPresetError reports a failed preset cycle as a warning
func (f *Formatter) PrintPresetError(id preset.ID, err error) {
	f.PrintWarning(fmt.Sprintf("%s: %v", id, err))
}

func (f *Formatter) errWriter() io.Writer {
	if f.ErrWriter == nil {
		return os.Stderr
	}
	return f.ErrWriter
}
