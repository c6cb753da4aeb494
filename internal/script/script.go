// Package script checks JavaScript files for syntax errors and risky
// patterns without executing them.
package script

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/dop251/goja/parser"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/caxton-dev/sitecheck/internal/logging"
	"github.com/caxton-dev/sitecheck/internal/models"
	"github.com/caxton-dev/sitecheck/internal/projectconfig"
	"github.com/caxton-dev/sitecheck/internal/rules"
	"github.com/caxton-dev/sitecheck/internal/scan"
)

// Descriptor registers the script validator.
var Descriptor = models.ValidatorDescriptor{
	Name:        "JavaScript Validation",
	Key:         "javascript",
	Criticality: models.Critical,
	Description: "JavaScript syntax, security patterns, and runtime risks",
	ReportFile:  "javascript-validation-report.json",
}

// moduleSyntax detects ES module files, which cannot be parsed as a function body.
var moduleSyntax = regexp2.MustCompile(
	`^\s*(?:import\s*[\w{*'"]|export\s+(?:default|const|let|var|function|class|async|\{|\*))`,
	regexp2.Multiline)

var (
	tryBlock   = regexp2.MustCompile(`\btry\s*\{`, regexp2.None)
	catchBlock = regexp2.MustCompile(`\bcatch\s*[({]`, regexp2.None)
)

// Validator is the script validator.
type Validator struct {
	cfg *projectconfig.ProjectConfig
	log *zap.SugaredLogger
}

// New returns a script validator. A nil cfg means defaults.
func New(cfg *projectconfig.ProjectConfig) *Validator {
	if cfg == nil {
		cfg = projectconfig.New()
	}
	return &Validator{cfg: cfg, log: logging.For("javascript")}
}

// Descriptor implements the orchestrator's validator contract.
func (v *Validator) Descriptor() models.ValidatorDescriptor { return Descriptor }

// Validate checks every .js and .mjs file under root.
func (v *Validator) Validate(_ context.Context, root string) (*models.ValidationResult, error) {
	res := models.NewResult(Descriptor)
	found := scan.Options{ExcludeDirs: v.cfg.Site.ExcludeDirs}.FindFiles(root, ".js", ".mjs")
	found.LogSkipped(v.log)
	res.Inc("files", len(found.Files))

	for _, f := range found.Files {
		content, err := f.Read()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Rel, err)
		}
		v.log.Debugw("checking file", "file", f.Rel)
		v.checkFile(res, f.Rel, string(content))
	}

	v.log.Infow("script validation finished", "files", len(found.Files), "issues", len(res.Issues))
	return res.Finalize(), nil
}

func (v *Validator) checkFile(res *models.ValidationResult, file, src string) {
	if isModule(src) {
		res.Inc("modules", 1)
		res.Addf(models.SeverityInfo, "module-syntax-unchecked", file, 0,
			"ES module syntax; parse check skipped")
	} else if issue, ok := syntaxError(src); ok {
		issue.File = file
		res.Add(issue)
	}

	if strings.HasSuffix(strings.ToLower(file), ".min.js") {
		res.Inc("minified", 1)
		return
	}

	rules.Report(res, file, patternRules.Apply(src))

	rules.Report(res, file, runtimeRules.Apply(src))
	if tries, catches := count(tryBlock, src), count(catchBlock, src); tries > catches {
		res.Addf(models.SeverityWarning, "try-without-catch", file, 0,
			"%d try blocks but only %d catch clauses", tries, catches)
	}

	rules.Report(res, file, advisoryRules.Apply(src))
	limit := v.cfg.Assets.MaxScriptKB * 1024
	if limit > 0 && len(src) > limit {
		res.Addf(models.SeverityWarning, "file-size", file, 0, "script is %s (limit %s)",
			humanize.Bytes(uint64(len(src))), humanize.Bytes(uint64(limit)))
	}
}

// syntaxError parses src as a function body and converts the first parser
// error into an issue.
func syntaxError(src string) (models.Issue, bool) {
	_, err := parser.ParseFunction("", src)
	if err == nil {
		return models.Issue{}, false
	}
	issue := models.Issue{Severity: models.SeverityError, Category: "syntax-error", Message: err.Error()}

	var list parser.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		first := list[0]
		issue.Message = first.Message
		// The body starts on the second line of the wrapper.
		issue.Line = max(first.Position.Line-1, 1)
	}
	return issue, true
}

func isModule(src string) bool {
	ok, _ := moduleSyntax.MatchString(src)
	return ok
}

func count(re *regexp2.Regexp, src string) int {
	n := 0
	m, err := re.FindStringMatch(src)
	for err == nil && m != nil {
		n++
		m, err = re.FindNextMatch(m)
	}
	return n
}
