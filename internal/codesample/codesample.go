// Package codesample checks fenced code blocks in Markdown sources: language
// labels, light per-language sanity checks, and content hygiene.
package codesample

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/caxton-dev/sitecheck/internal/logging"
	"github.com/caxton-dev/sitecheck/internal/mddoc"
	"github.com/caxton-dev/sitecheck/internal/models"
	"github.com/caxton-dev/sitecheck/internal/projectconfig"
	"github.com/caxton-dev/sitecheck/internal/rules"
	"github.com/caxton-dev/sitecheck/internal/scan"
)

// Descriptor registers the code sample validator.
var Descriptor = models.ValidatorDescriptor{
	Name:        "Code Syntax Validation",
	Key:         "code-syntax",
	Criticality: models.NonCritical,
	Description: "Fenced code block labels, JSON/YAML validity, and sample hygiene",
	ReportFile:  "code-syntax-report.json",
}

const (
	matchTimeout = 2 * time.Second
	// MaxLineLength is the longest sample line accepted without a warning.
	MaxLineLength = 120
)

// credentialPattern matches a secret-like key assigned a quoted value, or a
// bare value that runs to the end of the line as in YAML, TOML, and shell.
// Variable references, templates, masked values, and environment lookups are
// not credentials.
const credentialPattern = `(?i)(?:\b|_)(?:password|passwd|secret|token|api[-_]?key|access[-_]?key|client[-_]?secret)\b["']?[ \t]*[:=][ \t]*` +
	`(?:["'](?![$<{*%])[^"'\s]{4,}["']` +
	`|(?![$<{*%"']|process\.env|os\.(?:getenv|environ)|env\b|(?:string|str|null|none|nil|true|false|required|optional)\b)` +
	`[^\s"'(),;{}\[\]]{4,}[ \t]*(?=[;#]|$))`

var hygieneRules = rules.MustCompile(
	rules.Rule{
		Name:     "placeholder",
		Pattern:  `\b(?:TODO|FIXME|XXX|TBD)\b|<(?:your|insert)[-_ ][^>\n]*>`,
		Category: "placeholder",
		Severity: models.SeverityWarning,
		Message:  "sample contains a placeholder marker",
	},
	rules.Rule{
		Name:     "credential",
		Pattern:  credentialPattern,
		Category: "security",
		Severity: models.SeverityWarning,
		Message:  "sample contains a literal credential; use an environment variable or placeholder",
	},
)

// Validator is the code sample validator.
type Validator struct {
	cfg *projectconfig.ProjectConfig
	log *zap.SugaredLogger
}

// New returns a code sample validator. A nil cfg means defaults.
func New(cfg *projectconfig.ProjectConfig) *Validator {
	if cfg == nil {
		cfg = projectconfig.New()
	}
	return &Validator{cfg: cfg, log: logging.For("code-syntax")}
}

// Descriptor implements the orchestrator's validator contract.
func (v *Validator) Descriptor() models.ValidatorDescriptor { return Descriptor }

// Validate checks every fenced block in every Markdown file under root.
func (v *Validator) Validate(_ context.Context, root string) (*models.ValidationResult, error) {
	res := models.NewResult(Descriptor)
	found := scan.Options{ExcludeDirs: v.cfg.Site.ExcludeDirs}.FindFiles(root, ".md", ".markdown")
	found.LogSkipped(v.log)
	res.Inc("files", len(found.Files))
	for _, k := range []string{"blocks", "highlighted", "unlabeled", "unsupported"} {
		res.Inc(k, 0)
	}

	for _, f := range found.Files {
		content, err := f.Read()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Rel, err)
		}
		doc := mddoc.Parse(content)
		for _, cb := range doc.CodeBlocks {
			checkBlock(res, f.Rel, cb)
		}
	}

	v.log.Infow("code sample validation finished",
		"files", len(found.Files), "blocks", res.Summary["blocks"], "issues", len(res.Issues))
	return res.Finalize(), nil
}

func checkBlock(res *models.ValidationResult, file string, cb mddoc.CodeBlock) {
	res.Inc("blocks", 1)
	where := fmt.Sprintf("block #%d", cb.Index+1)

	lang, known := aliases[cb.Lang]
	switch {
	case cb.Lang == "":
		res.Inc("unlabeled", 1)
		res.Add(models.Issue{Severity: models.SeverityWarning, Category: "missing-language", File: file, Line: cb.Line,
			Snippet: where, Message: "code block has no language label, so it will not be highlighted"})
	case !known:
		res.Inc("unsupported", 1)
		res.Add(models.Issue{Severity: models.SeverityWarning, Category: "unsupported-language", File: file, Line: cb.Line,
			Snippet: cb.Lang, Message: fmt.Sprintf("language %q is not recognized by the highlighter", cb.Lang)})
	default:
		res.Inc("highlighted", 1)
	}

	body := strings.TrimSpace(cb.Content)
	if body != "" {
		if re, ok := hallmarks[lang]; ok {
			if hit, _ := re.MatchString(cb.Content); !hit {
				res.Add(models.Issue{Severity: models.SeverityWarning, Category: "language_mismatch", File: file, Line: cb.Line,
					Snippet: where, Message: fmt.Sprintf("block is labeled %s but has none of its usual syntax", cb.Lang)})
			}
		}
		switch lang {
		case "json":
			checkJSON(res, file, cb, where)
		case "yaml":
			checkYAML(res, file, cb, where)
		}
	}

	for _, m := range hygieneRules.Apply(cb.Content) {
		res.Add(models.Issue{Severity: m.Rule.Severity, Category: m.Rule.Category, File: file,
			Line: cb.Line + m.Line, Snippet: m.Text, Message: m.Rule.Message})
	}
	if n, line := longestLine(cb.Content); n > MaxLineLength {
		res.Add(models.Issue{Severity: models.SeverityWarning, Category: "long-line", File: file, Line: cb.Line + line,
			Snippet: where, Message: fmt.Sprintf("line is %d characters (max %d) and will scroll horizontally", n, MaxLineLength)})
	}
}

func checkJSON(res *models.ValidationResult, file string, cb mddoc.CodeBlock, where string) {
	var v any
	if err := json.Unmarshal([]byte(cb.Content), &v); err != nil {
		res.Add(models.Issue{Severity: models.SeverityError, Category: "syntax_error", File: file, Line: cb.Line,
			Snippet: where, Message: fmt.Sprintf("invalid JSON: %v", err)})
		return
	}
	// The decoder tolerates some input the grammar forbids, such as numbers
	// with leading zeros.
	if !gjson.Valid(cb.Content) {
		res.Add(models.Issue{Severity: models.SeverityError, Category: "syntax_error", File: file, Line: cb.Line,
			Snippet: where, Message: "invalid JSON: does not follow the JSON grammar (check number formats and escapes)"})
	}
}

func checkYAML(res *models.ValidationResult, file string, cb mddoc.CodeBlock, where string) {
	var v any
	if err := yaml.Unmarshal([]byte(cb.Content), &v); err != nil {
		res.Add(models.Issue{Severity: models.SeverityWarning, Category: "yaml-invalid", File: file, Line: cb.Line,
			Snippet: where, Message: fmt.Sprintf("YAML does not parse: %v", err)})
		return
	}
	if line, step := oddIndent(cb.Content); line > 0 {
		res.Add(models.Issue{Severity: models.SeverityWarning, Category: "yaml-indentation", File: file, Line: cb.Line + line,
			Snippet: where, Message: fmt.Sprintf("indentation steps by %d spaces; use a consistent even step", step)})
	}
}

// oddIndent returns the 1-based line of the first indentation increase by an
// odd number of spaces, or 0.
func oddIndent(content string) (line, step int) {
	prev := 0
	for i, l := range strings.Split(content, "\n") {
		trimmed := strings.TrimLeft(l, " ")
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		indent := len(l) - len(trimmed)
		if d := indent - prev; d > 0 && d%2 == 1 {
			return i + 1, d
		}
		prev = indent
	}
	return 0, 0
}

func longestLine(content string) (n, line int) {
	for i, l := range strings.Split(content, "\n") {
		if c := utf8.RuneCountInString(l); c > n {
			n, line = c, i+1
		}
	}
	return n, line
}
