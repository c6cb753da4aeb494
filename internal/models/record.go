package models

import "time"

// RunStatus is the orchestrator's view of one validator run.
type RunStatus string

const (
	RunPassed           RunStatus = "passed"
	RunValidationFailed RunStatus = "validation_failed"
	// RunError means the validator itself could not complete.
	RunError RunStatus = "error"
)

// OrchestrationRecord captures one validator invocation.
type OrchestrationRecord struct {
	Name       string        `json:"name"`
	Key        string        `json:"key"`
	Status     RunStatus     `json:"status"`
	Critical   bool          `json:"critical"`
	Duration   time.Duration `json:"-"`
	DurationMs int64         `json:"duration_ms"`
	Error      string        `json:"error,omitempty"`
	ReportFile string        `json:"report_file,omitempty"`
	Issues     int           `json:"issues"`
}

// CriticalFailure reports whether this record alone forces the "must fix" tier.
func (r OrchestrationRecord) CriticalFailure() bool {
	return r.Critical && r.Status != RunPassed
}

// RunSummary is the aggregate bookkeeping for one orchestrator run.
type RunSummary struct {
	Passed    int       `json:"passed"`
	Failed    int       `json:"failed"`
	Warnings  int       `json:"warnings"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Duration returns the wall-clock time of the run.
func (s RunSummary) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// Verdict is the overall posture selected after aggregation.
type Verdict string

const (
	VerdictAllClear         Verdict = "all_clear"
	VerdictNonCriticalIssue Verdict = "non_critical_issues"
	VerdictCriticalIssue    Verdict = "critical_issues"
)

// MasterReport combines every validator's outcome for one run.
type MasterReport struct {
	RunID           string                `json:"run_id"`
	Timestamp       time.Time             `json:"timestamp"`
	Root            string                `json:"root"`
	Summary         RunSummary            `json:"summary"`
	TotalDurationMs int64                 `json:"total_duration_ms"`
	Verdict         Verdict               `json:"verdict"`
	ExitCode        int                   `json:"exit_code"`
	Validators      []OrchestrationRecord `json:"validators"`
	Recommendations []string              `json:"recommendations"`
}
