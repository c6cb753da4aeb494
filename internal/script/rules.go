package script

import (
	"github.com/caxton-dev/sitecheck/internal/models"
	"github.com/caxton-dev/sitecheck/internal/rules"
)

// patternRules is the static sweep over every non-minified script.
var patternRules = rules.MustCompile(
	rules.Rule{
		Name:     "eval",
		Pattern:  `(?<![\w.$])eval\s*\(`,
		Category: "security",
		Severity: models.SeverityError,
		Message:  "eval() executes arbitrary code",
	},
	rules.Rule{
		Name:     "function-constructor",
		Pattern:  `\bnew\s+Function\s*\(`,
		Category: "security",
		Severity: models.SeverityError,
		Message:  "new Function() executes arbitrary code",
	},
	rules.Rule{
		Name:     "string-timer",
		Pattern:  `\bset(?:Timeout|Interval)\s*\(\s*['"` + "`" + `]`,
		Category: "security",
		Severity: models.SeverityError,
		Message:  "timer called with a code string is evaluated like eval()",
	},
	rules.Rule{
		Name:     "blocking-dialog",
		Pattern:  `(?<![\w.$])(?:window\.)?(?:alert|confirm|prompt)\s*\(`,
		Category: "blocking-dialog",
		Severity: models.SeverityWarning,
		Message:  "blocking dialog halts the page; use an in-page message instead",
	},
	rules.Rule{
		Name:     "loose-equality",
		Pattern:  `(?<![=!<>])(?:==|!=)(?!=)`,
		Category: "loose-equality",
		Severity: models.SeverityWarning,
		Message:  "use === or !== instead of loose equality",
	},
	rules.Rule{
		Name:     "legacy-var",
		Pattern:  `(?<![\w.$])var\s+[\w$]`,
		Category: "legacy-var",
		Severity: models.SeverityWarning,
		Message:  "prefer let or const over var",
	},
	rules.Rule{
		Name:     "console",
		Pattern:  `\bconsole\.(?:log|debug|info|warn|error|trace|dir)\s*\(`,
		Category: "console-statement",
		Severity: models.SeverityWarning,
		Message:  "console output left in production script",
	},
	rules.Rule{
		Name:     "listener-without-removal",
		Pattern:  `\.addEventListener\s*\(`,
		Unless:   `\.removeEventListener\s*\(`,
		Category: "listener-leak",
		Severity: models.SeverityWarning,
		Message:  "event listeners are added but never removed",
		Once:     true,
	},
	rules.Rule{
		Name:     "interval-without-clear",
		Pattern:  `\bsetInterval\s*\(`,
		Unless:   `\bclearInterval\s*\(`,
		Category: "timer-leak",
		Severity: models.SeverityWarning,
		Message:  "setInterval is never cancelled with clearInterval",
		Once:     true,
	},
	rules.Rule{
		Name:     "timeout-without-clear",
		Pattern:  `\bsetTimeout\s*\(`,
		Unless:   `\bclearTimeout\s*\(`,
		Category: "timer-leak",
		Severity: models.SeverityWarning,
		Message:  "setTimeout is never cancelled with clearTimeout",
		Once:     true,
	},
	rules.Rule{
		Name:     "non-passive-listener",
		Pattern:  `\.addEventListener\s*\(\s*['"](?:scroll|touchstart|touchmove|wheel|mousewheel)['"](?![^;]*passive)`,
		Category: "non-passive-listener",
		Severity: models.SeverityWarning,
		Message:  "high-frequency listener is not marked { passive: true }",
	},
	rules.Rule{
		Name:     "html-sink",
		Pattern:  `\.(?:innerHTML|outerHTML)\s*\+?=(?!=)|\bdocument\.write(?:ln)?\s*\(|\.insertAdjacentHTML\s*\(`,
		Category: "security",
		Severity: models.SeverityWarning,
		Message:  "HTML injection sink; sanitize input or use textContent",
	},
)

// runtimeRules flag patterns that tend to fail at runtime.
var runtimeRules = rules.MustCompile(
	rules.Rule{
		Name:     "dom-before-ready",
		Pattern:  `\bdocument\.(?:getElementById|getElementsBy\w+|querySelector(?:All)?)\s*\(`,
		Unless:   `DOMContentLoaded|readyState|\bonload\b|addEventListener\(\s*['"]load['"]`,
		Category: "dom-before-ready",
		Severity: models.SeverityWarning,
		Message:  "DOM is queried without waiting for DOMContentLoaded",
		Once:     true,
	},
	rules.Rule{
		Name:     "async-without-catch",
		Pattern:  `\basync\s+(?:function\b|\([^)]*\)\s*=>|[\w$]+\s*=>)`,
		Unless:   `\bcatch\b`,
		Category: "unhandled-async",
		Severity: models.SeverityWarning,
		Message:  "async function has no error handling",
		Once:     true,
	},
	rules.Rule{
		Name:     "then-without-catch",
		Pattern:  `\.then\s*\(`,
		Unless:   `\.catch\s*\(`,
		Category: "unhandled-promise",
		Severity: models.SeverityWarning,
		Message:  "promise chain has no .catch() handler",
		Once:     true,
	},
)

// advisoryRules never produce errors.
var advisoryRules = rules.MustCompile(
	rules.Rule{
		Name:     "dom-query-in-loop",
		Pattern:  `\b(?:for|while)\s*\([^)]*\)\s*\{[^}]*\bdocument\.(?:getElementById|getElementsBy\w+|querySelector(?:All)?)\s*\(`,
		Category: "dom-query-in-loop",
		Severity: models.SeverityWarning,
		Message:  "DOM query inside a loop; hoist it out",
	},
	rules.Rule{
		Name:     "unthrottled-listener",
		Pattern:  `\.addEventListener\s*\(\s*['"](?:scroll|resize|mousemove)['"]`,
		Unless:   `throttle|debounce|requestAnimationFrame`,
		Category: "unthrottled-listener",
		Severity: models.SeverityWarning,
		Message:  "high-frequency listener is not throttled or debounced",
		Once:     true,
	},
)

// RuleSets returns the three passes in evaluation order.
func RuleSets() [][]rules.Rule {
	return [][]rules.Rule{patternRules.Rules(), runtimeRules.Rules(), advisoryRules.Rules()}
}
