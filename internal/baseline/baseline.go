// Package baseline compares a run's findings with the reports the previous
// run left in the report directory.
package baseline

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/caxton-dev/sitecheck/internal/models"
	"github.com/caxton-dev/sitecheck/internal/report"
)

// Delta is the change in one validator's findings since the previous run.
type Delta struct {
	Key       string         `json:"key"`
	Name      string         `json:"name"`
	New       []models.Issue `json:"new,omitempty"`
	Resolved  []models.Issue `json:"resolved,omitempty"`
	Unchanged int            `json:"unchanged"`
}

// Changed reports whether any finding appeared or disappeared.
func (d Delta) Changed() bool { return len(d.New) > 0 || len(d.Resolved) > 0 }

// Load reads the previous report of every descriptor found in dir. Missing
// reports are skipped, so a first run yields an empty map.
func Load(dir string, descriptors []models.ValidatorDescriptor) (map[string]*models.ValidationResult, error) {
	previous := make(map[string]*models.ValidationResult)
	var errs []error
	for _, d := range descriptors {
		r, err := report.ReadValidator(filepath.Join(dir, d.ReportFile))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			continue
		case err != nil:
			errs = append(errs, err)
			continue
		}
		previous[d.Key] = r.ValidationResult
	}
	if err := errors.Join(errs...); err != nil {
		return previous, fmt.Errorf("loading previous reports: %w", err)
	}
	return previous, nil
}

// Compare matches issues by fingerprint for every descriptor present in both
// runs, in descriptor order. Validators without a previous report have no
// baseline and are left out.
func Compare(descriptors []models.ValidatorDescriptor, previous, current map[string]*models.ValidationResult) []Delta {
	var deltas []Delta
	for _, d := range descriptors {
		prev, cur := previous[d.Key], current[d.Key]
		if prev == nil || cur == nil {
			continue
		}
		deltas = append(deltas, diff(d, prev.Issues, cur.Issues))
	}
	return deltas
}

// diff treats the issue lists as multisets so a finding reported twice must
// also be fixed twice.
func diff(d models.ValidatorDescriptor, before, after []models.Issue) Delta {
	delta := Delta{Key: d.Key, Name: d.Name}

	seen := make(map[string]int, len(before))
	for _, i := range before {
		seen[i.Fingerprint]++
	}
	for _, i := range after {
		if seen[i.Fingerprint] > 0 {
			seen[i.Fingerprint]--
			delta.Unchanged++
			continue
		}
		delta.New = append(delta.New, i)
	}
	for _, i := range before {
		if seen[i.Fingerprint] > 0 {
			seen[i.Fingerprint]--
			delta.Resolved = append(delta.Resolved, i)
		}
	}
	return delta
}

// Totals sums new and resolved findings across deltas.
func Totals(deltas []Delta) (added, resolved int) {
	for _, d := range deltas {
		added += len(d.New)
		resolved += len(d.Resolved)
	}
	return added, resolved
}
