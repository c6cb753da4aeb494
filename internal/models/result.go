package models

import (
	"fmt"
	"slices"
)

// Status is the outcome of a single validator's scan.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// ValidationResult is the complete output of one validator for one run.
type ValidationResult struct {
	Validator string `json:"validator"`
	Key       string `json:"key"`
	// Summary holds validator-specific counters such as "checked" or "broken".
	Summary map[string]int `json:"summary"`
	Issues  []Issue        `json:"issues"`
	// Suggestions are informational notes that never affect Status.
	Suggestions []string `json:"suggestions,omitempty"`
	Status      Status   `json:"status"`
}

// NewResult returns an empty result for the given descriptor.
func NewResult(d ValidatorDescriptor) *ValidationResult {
	return &ValidationResult{
		Validator: d.Name,
		Key:       d.Key,
		Summary:   map[string]int{},
		Issues:    []Issue{},
		Status:    StatusPassed,
	}
}

// Add appends an issue and stamps its fingerprint.
func (r *ValidationResult) Add(i Issue) {
	i.Fingerprint = fingerprint(r.Key, i)
	r.Issues = append(r.Issues, i)
}

// Addf is a shorthand for Add with a formatted message.
func (r *ValidationResult) Addf(sev Severity, category, file string, line int, format string, args ...any) {
	r.Add(Issue{Severity: sev, Category: category, File: file, Line: line, Message: fmt.Sprintf(format, args...)})
}

// Inc bumps a summary counter.
func (r *ValidationResult) Inc(counter string, n int) {
	if r.Summary == nil {
		r.Summary = map[string]int{}
	}
	r.Summary[counter] += n
}

// Count returns the number of issues with the given severity.
func (r *ValidationResult) Count(sev Severity) int {
	n := 0
	for _, i := range r.Issues {
		if i.Severity == sev {
			n++
		}
	}
	return n
}

// Categories returns the distinct issue categories in first-seen order.
func (r *ValidationResult) Categories() []string {
	var out []string
	for _, i := range r.Issues {
		if !slices.Contains(out, i.Category) {
			out = append(out, i.Category)
		}
	}
	return out
}

// Finalize derives Status from the issue list and fills the severity counters.
func (r *ValidationResult) Finalize() *ValidationResult {
	if r.Summary == nil {
		r.Summary = map[string]int{}
	}
	r.Summary["errors"] = r.Count(SeverityError)
	r.Summary["warnings"] = r.Count(SeverityWarning)
	r.Summary["info"] = r.Count(SeverityInfo)
	r.Status = StatusPassed
	if r.Summary["errors"] > 0 {
		r.Status = StatusFailed
	}
	return r
}
