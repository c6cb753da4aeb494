package orchestrator

import (
	"fmt"

	"github.com/caxton-dev/sitecheck/internal/models"
)

// Process exit codes.
const (
	ExitOK       = 0
	ExitCritical = 1
	ExitWarnings = 2
	// ExitFatal is an orchestrator bookkeeping failure, never a finding.
	ExitFatal = 3
)

// Tally counts records into the run summary buckets. An error always counts
// as failed. A validation failure counts as failed for critical validators
// and as a warning otherwise.
func Tally(records []models.OrchestrationRecord) (passed, failed, warnings int) {
	for _, r := range records {
		switch {
		case r.Status == models.RunPassed:
			passed++
		case r.Status == models.RunError || r.Critical:
			failed++
		default:
			warnings++
		}
	}
	return passed, failed, warnings
}

// DecideVerdict is a pure function of the records and ignores their order.
func DecideVerdict(records []models.OrchestrationRecord) models.Verdict {
	nonCritical := false
	for _, r := range records {
		if r.CriticalFailure() {
			return models.VerdictCriticalIssue
		}
		if r.Status != models.RunPassed {
			nonCritical = true
		}
	}
	if nonCritical {
		return models.VerdictNonCriticalIssue
	}
	return models.VerdictAllClear
}

// ExitCode maps a verdict to the process exit code.
func ExitCode(v models.Verdict) int {
	switch v {
	case models.VerdictCriticalIssue:
		return ExitCritical
	case models.VerdictNonCriticalIssue:
		return ExitWarnings
	default:
		return ExitOK
	}
}

// advice is the fixed recommendation for each validator key.
var advice = map[string]string{
	"links":       "Fix broken links: update moved pages and remove dead external references",
	"html-css":    "Fix HTML structure and accessibility errors (lang, alt text, form labels) and CSS syntax errors",
	"javascript":  "Fix script syntax errors and remove dynamic code evaluation before deploying",
	"code-syntax": "Label every code block with a supported language and fix invalid JSON or YAML samples",
	"seo":         "Add missing titles and descriptions, complete social tags, and fix structured data",
	"build":       "Fix the generator configuration, deployment workflow, or dependency manifests so the site builds",
	"responsive":  "Fix the viewport declaration and add fluid images, breakpoints, and mobile navigation",
}

// Recommendations lists one action per non-passing record, critical ones
// first and otherwise in run order.
func Recommendations(records []models.OrchestrationRecord) []string {
	var critical, other []string
	for _, r := range records {
		if r.Status == models.RunPassed {
			continue
		}
		text := advice[r.Key]
		if text == "" {
			text = "Review the " + r.Name + " report"
		}
		if r.Status == models.RunError {
			text = fmt.Sprintf("%s could not complete (%s); fix the fault and re-run", r.Name, r.Error)
		}
		if r.Critical {
			critical = append(critical, text)
		} else {
			other = append(other, text)
		}
	}
	return append(critical, other...)
}
