package errors

import (
	"fmt"
	"sort"
	"sync"
)

// FindingKind distinguishes the stage family that produced a diagnostic.
type FindingKind string

const (
	FindingLint  FindingKind = "lint"
	FindingType  FindingKind = "type"
	FindingBuild FindingKind = "build"
)

// Severity represents the severity of a finding
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// String returns the string representation of the severity
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Finding is a diagnostic attached to a pipeline stage. Findings never abort
// plan synthesis; they describe the outcome of a later transform run.
type Finding struct {
	Kind     FindingKind
	Stage    string
	File     string
	Line     int
	Column   int
	Message  string
	Severity Severity
}

// Error implements the error interface
func (f *Finding) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s: %s", f.File, f.Line, f.Column, f.Severity, f.Message)
}

// FindingCollector collects findings reported while a plan is executed.
type FindingCollector struct {
	findings []Finding
	mutex    sync.RWMutex
}

// NewFindingCollector creates a new finding collector
func NewFindingCollector() *FindingCollector {
	return &FindingCollector{findings: make([]Finding, 0)}
}

// Add records a finding.
func (fc *FindingCollector) Add(f Finding) {
	fc.mutex.Lock()
	defer fc.mutex.Unlock()
	fc.findings = append(fc.findings, f)
}

// All returns a copy of every finding in insertion order.
func (fc *FindingCollector) All() []Finding {
	fc.mutex.RLock()
	defer fc.mutex.RUnlock()
	result := make([]Finding, len(fc.findings))
	copy(result, fc.findings)
	return result
}

// ByStage groups findings by stage name; stage keys are returned sorted.
func (fc *FindingCollector) ByStage() ([]string, map[string][]Finding) {
	fc.mutex.RLock()
	defer fc.mutex.RUnlock()

	grouped := make(map[string][]Finding)
	for _, f := range fc.findings {
		grouped[f.Stage] = append(grouped[f.Stage], f)
	}
	stages := make([]string, 0, len(grouped))
	for s := range grouped {
		stages = append(stages, s)
	}
	sort.Strings(stages)
	return stages, grouped
}

// HasErrors reports whether any finding has error severity.
func (fc *FindingCollector) HasErrors() bool {
	fc.mutex.RLock()
	defer fc.mutex.RUnlock()
	for _, f := range fc.findings {
		if f.Severity >= SeverityError {
			return true
		}
	}
	return false
}

// Len returns the number of collected findings.
func (fc *FindingCollector) Len() int {
	fc.mutex.RLock()
	defer fc.mutex.RUnlock()
	return len(fc.findings)
}
