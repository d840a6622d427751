// Package output formats command results as YAML, JSON or tables.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/pflag"
	"github.com/thediveo/enumflag/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Format represents the output format
type Format int

const (
	FormatYAML Format = iota
	FormatJSON
	FormatTable
)

// FormatIDs maps each format to the names accepted on the command line.
var FormatIDs = map[Format][]string{
	FormatYAML:  {"yaml", "yml"},
	FormatJSON:  {"json"},
	FormatTable: {"table"},
}

// String returns the canonical name of the format.
func (f Format) String() string {
	if ids, ok := FormatIDs[f]; ok {
		return ids[0]
	}
	return "unknown"
}

// NewFormatValue returns a flag value that sets *f from a format name.
func NewFormatValue(f *Format) pflag.Value {
	return enumflag.New(f, "format", FormatIDs, enumflag.EnumCaseInsensitive)
}

// Formatter formats output in various formats
type Formatter struct {
	Format    Format
	NoHeaders bool
	Quiet     bool
	Writer    io.Writer
}

// NewFormatter creates a new formatter writing to w, or stdout when w is nil.
func NewFormatter(format Format, w io.Writer) *Formatter {
	if w == nil {
		w = os.Stdout
	}
	return &Formatter{Format: format, Writer: w}
}

// Print outputs data in the configured format. Tables have no generic
// rendering, so table mode falls back to YAML.
func (f *Formatter) Print(data interface{}) error {
	if f.Quiet {
		return nil
	}

	switch f.Format {
	case FormatJSON:
		return f.printJSON(data)
	default:
		return f.printYAML(data)
	}
}

func (f *Formatter) printJSON(data interface{}) error {
	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (f *Formatter) printYAML(data interface{}) error {
	encoder := yaml.NewEncoder(f.Writer)
	encoder.SetIndent(2)
	defer func() { _ = encoder.Close() }()
	return encoder.Encode(data)
}

// TableData represents tabular data for table output
type TableData struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// PrintTable prints formatted table output. Other formats get a list of
// header-keyed maps.
func (f *Formatter) PrintTable(data TableData) error {
	if f.Quiet {
		return nil
	}

	if f.Format != FormatTable {
		rows := make([]map[string]string, len(data.Rows))
		for i, row := range data.Rows {
			rowMap := make(map[string]string)
			for j, cell := range row {
				if j < len(data.Headers) {
					rowMap[strings.ToLower(strings.ReplaceAll(data.Headers[j], " ", "_"))] = cell
				}
			}
			rows[i] = rowMap
		}
		return f.Print(rows)
	}

	if data.Title != "" {
		f.PrintHeading(data.Title)
	}

	table := tablewriter.NewWriter(f.Writer)

	if !f.NoHeaders && len(data.Headers) > 0 {
		table.SetHeader(data.Headers)
	}

	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)

	table.AppendBulk(data.Rows)
	table.Render()
	return nil
}

// PrintHeading prints a title-cased section heading.
func (f *Formatter) PrintHeading(title string) {
	if f.Quiet {
		return
	}
	_, _ = fmt.Fprintf(f.Writer, "\n%s\n", cases.Title(language.English).String(title))
}

// PrintSuccess prints a success message
func (f *Formatter) PrintSuccess(message string) {
	if f.Quiet {
		return
	}
	_, _ = fmt.Fprintln(f.Writer, message)
}
