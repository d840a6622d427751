package output

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	planerrors "github.com/conneroisu/extplan/internal/errors"
	"github.com/conneroisu/extplan/internal/plan"
)

// PrintPlan prints bp. YAML and JSON emit the full plan document; table mode
// prints one table per plan section.
func (f *Formatter) PrintPlan(bp *plan.BuildPlan) error {
	if f.Format != FormatTable {
		return f.Print(bp)
	}
	for _, t := range PlanTables(bp) {
		if err := f.PrintTable(t); err != nil {
			return err
		}
	}
	return nil
}

// PlanTables summarizes a plan as tables, one per section.
func PlanTables(bp *plan.BuildPlan) []TableData {
	tables := []TableData{
		EntryTable(bp.Entry()),
		PageTable(bp.PageBindings()),
		StageTable(bp.Pipeline()),
		PluginTable(bp.Plugins()),
	}
	if advisories := bp.Advisories(); len(advisories) > 0 {
		tables = append(tables, AdvisoryTable(advisories))
	}
	return tables
}

// EntryTable lists entries in plan order.
func EntryTable(entries plan.EntryMap) TableData {
	t := TableData{Title: "entries", Headers: []string{"Name", "Modules"}}
	for _, e := range entries {
		t.Rows = append(t.Rows, []string{e.Name, strings.Join(e.Modules, ", ")})
	}
	return t
}

// PageTable lists page bindings.
func PageTable(bindings []plan.PageBinding) TableData {
	t := TableData{Title: "pages", Headers: []string{"Bundle", "Template", "Filename", "Chunks"}}
	for _, b := range bindings {
		t.Rows = append(t.Rows, []string{b.BundleName, b.Template, b.Filename, strings.Join(b.Chunks, ", ")})
	}
	return t
}

// StageTable lists pipeline stages in order.
func StageTable(pipeline plan.Pipeline) TableData {
	t := TableData{Title: "pipeline stages", Headers: []string{"Name", "Kind", "Test", "Loaders", "Scope", "Gate"}}
	for _, s := range pipeline {
		test := ""
		if s.Test != nil {
			test = s.Test.String()
		} else if len(s.Exclude) > 0 {
			excluded := make([]string, len(s.Exclude))
			for i, p := range s.Exclude {
				excluded[i] = p.String()
			}
			test = "not " + strings.Join(excluded, " ")
		}

		loaders := make([]string, len(s.Loaders))
		for i, l := range s.Loaders {
			loaders[i] = l.Name
		}

		gate := ""
		if s.Gate != nil {
			gate = s.Gate.Requires
			if s.Gate.Skipped {
				gate += " (skipped)"
			}
		}

		t.Rows = append(t.Rows, []string{
			s.Name,
			string(s.Kind),
			test,
			strings.Join(loaders, ", "),
			strings.Join(s.Include, ", "),
			gate,
		})
	}
	return t
}

// PluginTable lists plugin directives in order. Option keys are sorted.
func PluginTable(plugins []plan.Plugin) TableData {
	t := TableData{Title: "plugins", Headers: []string{"Name", "Options"}}
	for _, p := range plugins {
		keys := make([]string, 0, len(p.Options))
		for k := range p.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		opts := make([]string, len(keys))
		for i, k := range keys {
			opts[i] = k + "=" + p.Options[k]
		}
		t.Rows = append(t.Rows, []string{p.Name, strings.Join(opts, " ")})
	}
	return t
}

// AdvisoryTable lists advisories.
func AdvisoryTable(advisories []plan.Advisory) TableData {
	t := TableData{Title: "advisories", Headers: []string{"Code", "Subject", "Message"}}
	for _, a := range advisories {
		t.Rows = append(t.Rows, []string{a.Code, a.Subject, a.Message})
	}
	return t
}

// FindingTable lists build findings, errors first as the collector
// recorded them.
func FindingTable(findings []planerrors.Finding) TableData {
	t := TableData{Title: "findings", Headers: []string{"Location", "Stage", "Severity", "Message"}}
	for _, f := range findings {
		loc := f.File
		if f.Line > 0 {
			loc = fmt.Sprintf("%s:%d:%d", f.File, f.Line, f.Column)
		}
		stage := f.Stage
		if stage == "" {
			stage = "-"
		}
		t.Rows = append(t.Rows, []string{loc, stage, f.Severity.String(), f.Message})
	}
	return t
}

// SummaryTable is a two-column table of counts.
func SummaryTable(title string, rows ...[]string) TableData {
	return TableData{Title: title, Headers: []string{"Item", "Count"}, Rows: rows}
}

// CountRow is a convenience for summary tables.
func CountRow(label string, n int) []string {
	return []string{label, strconv.Itoa(n)}
}
