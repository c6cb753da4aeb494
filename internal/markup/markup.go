// Package markup checks HTML structure and accessibility and basic CSS
// correctness.
package markup

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/caxton-dev/sitecheck/internal/htmldoc"
	"github.com/caxton-dev/sitecheck/internal/logging"
	"github.com/caxton-dev/sitecheck/internal/models"
	"github.com/caxton-dev/sitecheck/internal/projectconfig"
	"github.com/caxton-dev/sitecheck/internal/scan"
)

// Descriptor registers the markup validator.
var Descriptor = models.ValidatorDescriptor{
	Name:        "HTML/CSS Validation",
	Key:         "html-css",
	Criticality: models.Critical,
	Description: "HTML structure, accessibility basics, and CSS correctness",
	ReportFile:  "html-css-validation-report.json",
}

// Validator is the markup validator.
type Validator struct {
	cfg *projectconfig.ProjectConfig
	log *zap.SugaredLogger
}

// New returns a markup validator. A nil cfg means defaults.
func New(cfg *projectconfig.ProjectConfig) *Validator {
	if cfg == nil {
		cfg = projectconfig.New()
	}
	return &Validator{cfg: cfg, log: logging.For("html-css")}
}

// Descriptor implements the orchestrator's validator contract.
func (v *Validator) Descriptor() models.ValidatorDescriptor { return Descriptor }

// Validate checks every HTML and CSS file under root.
func (v *Validator) Validate(_ context.Context, root string) (*models.ValidationResult, error) {
	res := models.NewResult(Descriptor)
	opts := scan.Options{ExcludeDirs: v.cfg.Site.ExcludeDirs}

	htmlFiles := opts.FindFiles(root, ".html", ".htm")
	htmlFiles.LogSkipped(v.log)
	res.Inc("html_files", len(htmlFiles.Files))
	for _, f := range htmlFiles.Files {
		content, err := f.Read()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Rel, err)
		}
		v.log.Debugw("checking file", "file", f.Rel)
		doc := htmldoc.Parse(content)
		checkStructure(res, f.Rel, doc)
		checkAccessibility(res, f.Rel, doc)
	}

	cssFiles := opts.FindFiles(root, ".css")
	cssFiles.LogSkipped(v.log)
	res.Inc("css_files", len(cssFiles.Files))
	if err := checkStylesheets(res, cssFiles.Files); err != nil {
		return nil, err
	}

	v.log.Infow("markup validation finished",
		"html_files", len(htmlFiles.Files), "css_files", len(cssFiles.Files), "issues", len(res.Issues))
	return res.Finalize(), nil
}

// textInputTypes are the input types that accept free text and need a label.
var textInputTypes = map[string]bool{
	"": true, "text": true, "email": true, "password": true, "search": true,
	"tel": true, "url": true, "number": true, "date": true,
}

func checkStructure(res *models.ValidationResult, file string, doc *htmldoc.Document) {
	root := doc.First("html")
	if root == nil {
		res.Addf(models.SeverityError, "missing-html-element", file, 0, "document has no <html> root element")
	} else if strings.TrimSpace(root.Get("lang")) == "" {
		res.Addf(models.SeverityError, "missing-lang", file, root.Line, "<html> element has no lang attribute")
	}
	if doc.First("head") == nil {
		res.Addf(models.SeverityError, "missing-head", file, 0, "document has no <head> element")
	}
	if doc.First("body") == nil {
		res.Addf(models.SeverityError, "missing-body", file, 0, "document has no <body> element")
	}
	if !doc.HasCharset() {
		res.Addf(models.SeverityError, "missing-charset", file, 0, "no character encoding declaration (<meta charset>)")
	}
	if doc.Viewport() == nil {
		res.Addf(models.SeverityWarning, "missing-viewport", file, 0, "no viewport meta declaration")
	}

	for _, img := range doc.Find("img") {
		alt, ok := img.Attr("alt")
		switch {
		case !ok:
			res.Add(models.Issue{Severity: models.SeverityError, Category: "missing-alt-text", File: file, Line: img.Line,
				Snippet: img.Get("src"), Message: "image has no alt attribute"})
		case strings.TrimSpace(alt) == "" && !htmldoc.IsDecorative(img):
			res.Add(models.Issue{Severity: models.SeverityWarning, Category: "empty-alt-text", File: file, Line: img.Line,
				Snippet: img.Get("src"), Message: `image has empty alt but is not marked decorative (role="presentation" or aria-hidden="true")`})
		}
	}
	res.Inc("images", len(doc.Find("img")))

	prev := 0
	for _, h := range doc.Headings() {
		level := htmldoc.HeadingLevel(h.Tag)
		if prev > 0 && level > prev+1 {
			res.Add(models.Issue{Severity: models.SeverityWarning, Category: "heading-skip", File: file, Line: h.Line,
				Snippet: h.Text, Message: fmt.Sprintf("heading level skips from h%d to h%d", prev, level)})
		}
		prev = level
	}

	labels := map[string]bool{}
	for _, l := range doc.Find("label") {
		if id := l.Get("for"); id != "" {
			labels[id] = true
		}
	}
	for _, in := range doc.Find("input", "textarea") {
		if in.Tag == "input" && !textInputTypes[strings.ToLower(in.Get("type"))] {
			continue
		}
		if labeled(in, labels) {
			continue
		}
		res.Add(models.Issue{Severity: models.SeverityError, Category: "missing-form-label", File: file, Line: in.Line,
			Snippet: in.Get("name"), Message: "text input has no associated <label> or accessible name"})
	}
}

func labeled(in *htmldoc.Element, labels map[string]bool) bool {
	if id := in.Get("id"); id != "" && labels[id] {
		return true
	}
	if in.Inside("label") {
		return true
	}
	for _, a := range []string{"aria-label", "aria-labelledby", "title"} {
		if strings.TrimSpace(in.Get(a)) != "" {
			return true
		}
	}
	return false
}

// landmarkTags and landmarkRoles mark navigable page regions.
var (
	landmarkTags  = []string{"main", "nav", "header", "footer", "aside"}
	landmarkRoles = map[string]bool{
		"main": true, "navigation": true, "banner": true, "contentinfo": true,
		"complementary": true, "region": true, "search": true,
	}
	interactiveTags = map[string]bool{
		"a": true, "button": true, "input": true, "select": true, "textarea": true, "summary": true, "option": true,
	}
)

func checkAccessibility(res *models.ValidationResult, file string, doc *htmldoc.Document) {
	navs := doc.Find("nav")
	for _, el := range doc.Elements {
		if strings.EqualFold(el.Get("role"), "navigation") {
			navs = append(navs, el)
		}
	}
	if len(navs) > 0 && !hasSkipLink(doc) {
		res.Addf(models.SeverityWarning, "missing-skip-link", file, navs[0].Line,
			"page has navigation but no skip-to-content link")
	}

	if len(doc.Find(landmarkTags...)) == 0 && !hasLandmarkRole(doc) {
		res.Addf(models.SeverityWarning, "missing-landmark", file, 0,
			"page has no landmark region (<main>, <nav>, <header>, or an ARIA landmark role)")
	}

	for _, el := range doc.Elements {
		if !el.Has("onclick") || interactiveTags[el.Tag] {
			continue
		}
		if el.Has("tabindex") && el.Get("role") != "" && (el.Has("onkeydown") || el.Has("onkeyup") || el.Has("onkeypress")) {
			continue
		}
		res.Add(models.Issue{Severity: models.SeverityWarning, Category: "inaccessible-click-handler", File: file, Line: el.Line,
			Snippet: "<" + el.Tag + " onclick>", Message: "inline click handler on a non-interactive element without keyboard support"})
	}

	if len(doc.Find("table")) > 0 && len(doc.Find("th")) == 0 {
		res.Addf(models.SeverityWarning, "table-missing-headers", file, doc.First("table").Line,
			"table has no header cells (<th>)")
	}
}

func hasSkipLink(doc *htmldoc.Document) bool {
	for _, a := range doc.Find("a") {
		href := a.Get("href")
		if !strings.HasPrefix(href, "#") {
			continue
		}
		text := strings.ToLower(a.Text + " " + a.Get("class"))
		if strings.Contains(text, "skip") {
			return true
		}
	}
	return false
}

func hasLandmarkRole(doc *htmldoc.Document) bool {
	for _, el := range doc.Elements {
		if landmarkRoles[strings.ToLower(el.Get("role"))] {
			return true
		}
	}
	return false
}
