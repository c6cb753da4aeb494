package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/caxton-dev/sitecheck/internal/baseline"
	"github.com/caxton-dev/sitecheck/internal/layout"
	"github.com/caxton-dev/sitecheck/internal/models"
	"github.com/caxton-dev/sitecheck/internal/orchestrator"
)

const nameWidth = 30

// display renders console output for one run.
type display struct {
	w io.Writer
	p *message.Printer

	green   func(a ...any) string
	yellow  func(a ...any) string
	red     func(a ...any) string
	magenta func(a ...any) string
	bold    func(a ...any) string
}

func newDisplay(w io.Writer) *display {
	return &display{
		w:       w,
		p:       message.NewPrinter(language.English),
		green:   color.New(color.FgGreen).SprintFunc(),
		yellow:  color.New(color.FgYellow).SprintFunc(),
		red:     color.New(color.FgRed).SprintFunc(),
		magenta: color.New(color.FgMagenta).SprintFunc(),
		bold:    color.New(color.Bold).SprintFunc(),
	}
}

func (d *display) header(root string, validators int) {
	fmt.Fprintf(d.w, "%s %s\n   %s\n\n", //nolint:errcheck
		d.bold("🔍 Validating"), root, d.p.Sprintf("%d validators selected", validators))
}

// statusIcon distinguishes validators that found issues from ones that
// could not complete.
func (d *display) statusIcon(rec models.OrchestrationRecord) string {
	switch {
	case rec.Status == models.RunPassed:
		return d.green("✅")
	case rec.Status == models.RunError:
		return d.magenta("💥")
	case rec.Critical:
		return d.red("❌")
	default:
		return d.yellow("⚠️")
	}
}

func statusText(rec models.OrchestrationRecord) string {
	switch rec.Status {
	case models.RunPassed:
		return "passed"
	case models.RunError:
		return "error"
	default:
		return "issues found"
	}
}

func criticalityLabel(critical bool) string {
	if critical {
		return string(models.Critical)
	}
	return string(models.NonCritical)
}

func (d *display) validatorLine(rec models.OrchestrationRecord) {
	detail := d.p.Sprintf("%d issues", rec.Issues)
	if rec.Status == models.RunError {
		detail = rec.Error
	}
	fmt.Fprintf(d.w, "  %s %s  %s  %s  %s  %s\n", //nolint:errcheck
		d.statusIcon(rec),
		padRight(rec.Name, nameWidth),
		padRight(criticalityLabel(rec.Critical), 12),
		padRight(statusText(rec), 12),
		padRight(formatDuration(rec.Duration), 7),
		detail)
}

func (d *display) summary(out *orchestrator.Outcome) {
	m := out.Master

	fmt.Fprintf(d.w, "\n%s\n", d.bold("📊 Summary")) //nolint:errcheck
	fmt.Fprintf(d.w, "   %s\n", d.p.Sprintf("Passed: %d  Failed: %d  Warnings: %d", //nolint:errcheck
		m.Summary.Passed, m.Summary.Failed, m.Summary.Warnings))
	fmt.Fprintf(d.w, "   Duration: %s\n", formatDuration(time.Duration(m.TotalDurationMs)*time.Millisecond)) //nolint:errcheck

	if issues := totalIssues(out.Results); issues != nil {
		fmt.Fprintf(d.w, "   %s\n", d.p.Sprintf("Issues: %d errors, %d warnings, %d info", //nolint:errcheck
			issues[0], issues[1], issues[2]))
	}

	var faulted []models.OrchestrationRecord
	for _, rec := range m.Validators {
		if rec.Status == models.RunError {
			faulted = append(faulted, rec)
		}
	}
	if len(faulted) > 0 {
		fmt.Fprintf(d.w, "\n%s\n", d.magenta("💥 Could not complete")) //nolint:errcheck
		for _, rec := range faulted {
			fmt.Fprintf(d.w, "   %s: %s\n", rec.Name, rec.Error) //nolint:errcheck
		}
	}

	if len(m.Recommendations) > 0 {
		fmt.Fprintf(d.w, "\n%s\n", d.bold("💡 Recommendations")) //nolint:errcheck
		for i, r := range m.Recommendations {
			fmt.Fprintf(d.w, "   %d. %s\n", i+1, r) //nolint:errcheck
		}
	}

	if r := out.Results[layout.Descriptor.Key]; r != nil && len(r.Suggestions) > 0 {
		fmt.Fprintf(d.w, "\n%s\n", d.bold("📱 Manual checks")) //nolint:errcheck
		for _, s := range r.Suggestions {
			fmt.Fprintf(d.w, "   • %s\n", s) //nolint:errcheck
		}
	}

	if len(out.Artifacts) > 0 {
		fmt.Fprintf(d.w, "\n%s\n", d.bold("📁 Reports")) //nolint:errcheck
		for _, a := range out.Artifacts {
			fmt.Fprintf(d.w, "   %s  %s\n", padRight(a.HumanSize(), 8), a.Path) //nolint:errcheck
		}
	}

	fmt.Fprintf(d.w, "\n%s\n", d.verdictLine(m.Verdict, m.ExitCode)) //nolint:errcheck
}

// changes lists what moved since the previous run's reports.
func (d *display) changes(deltas []baseline.Delta) {
	added, resolved := baseline.Totals(deltas)
	fmt.Fprintf(d.w, "\n%s\n", d.bold("🔁 Since last run")) //nolint:errcheck
	if added == 0 && resolved == 0 {
		fmt.Fprintln(d.w, "   no changes") //nolint:errcheck
		return
	}
	for _, delta := range deltas {
		if !delta.Changed() {
			continue
		}
		fmt.Fprintf(d.w, "   %s %s %s\n", padRight(delta.Name, nameWidth), //nolint:errcheck
			d.red(d.p.Sprintf("+%d new", len(delta.New))), d.green(d.p.Sprintf("-%d resolved", len(delta.Resolved))))
		for _, i := range delta.New {
			fmt.Fprintf(d.w, "     + [%s] %s %s\n", i.Severity, i.Category, i.Location()) //nolint:errcheck
		}
	}
}

// totalIssues sums issues across results by severity: errors, warnings, info.
// It returns nil when there are none.
func totalIssues(results map[string]*models.ValidationResult) []int {
	counts := make([]int, 3)
	sum := 0
	for _, r := range results {
		for i, sev := range []models.Severity{models.SeverityError, models.SeverityWarning, models.SeverityInfo} {
			n := r.Count(sev)
			counts[i] += n
			sum += n
		}
	}
	if sum == 0 {
		return nil
	}
	return counts
}

func (d *display) verdictLine(v models.Verdict, code int) string {
	switch v {
	case models.VerdictCriticalIssue:
		return d.red(fmt.Sprintf("❌ Critical issues found - fix before deploying (exit %d)", code))
	case models.VerdictNonCriticalIssue:
		return d.yellow(fmt.Sprintf("⚠️  Non-critical issues found - review before deploying (exit %d)", code))
	default:
		return d.green(fmt.Sprintf("✅ All checks passed (exit %d)", code))
	}
}

func printRegistry(w io.Writer, descriptors []models.ValidatorDescriptor) {
	fmt.Fprintf(w, "%s  %s  %s\n", padRight("KEY", 12), padRight("CRITICALITY", 12), "DESCRIPTION") //nolint:errcheck
	for _, d := range descriptors {
		fmt.Fprintf(w, "%s  %s  %s\n", padRight(d.Key, 12), padRight(string(d.Criticality), 12), d.Description) //nolint:errcheck
	}
}

// padRight pads s with spaces so its terminal display width reaches width.
func padRight(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	return s + strings.Repeat(" ", width-sw)
}

// formatDuration renders sub-second durations in milliseconds and the rest
// in seconds with one decimal.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
