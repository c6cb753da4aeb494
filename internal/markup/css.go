package markup

import (
	"fmt"
	"strings"

	"github.com/caxton-dev/sitecheck/internal/cssdoc"
	"github.com/caxton-dev/sitecheck/internal/models"
	"github.com/caxton-dev/sitecheck/internal/rules"
	"github.com/caxton-dev/sitecheck/internal/scan"
)

// typoProperties maps misspelled property names to the intended property.
var typoProperties = map[string]string{
	"colour":            "color",
	"backgroud":         "background",
	"backround":         "background",
	"background-colour": "background-color",
	"widht":             "width",
	"heigth":            "height",
	"hieght":            "height",
	"maring":            "margin",
	"margn":             "margin",
	"paddig":            "padding",
	"pading":            "padding",
	"dispaly":           "display",
	"positon":           "position",
	"font-wieght":       "font-weight",
	"font-szie":         "font-size",
	"text-algin":        "text-align",
	"boder":             "border",
	"z-indx":            "z-index",
}

// compatRules flag features with uneven cross-browser support.
var compatRules = rules.MustCompile(
	rules.Rule{
		Name:     "backdrop-filter-unprefixed",
		Pattern:  `(?<!-webkit-)backdrop-filter\s*:`,
		Unless:   `-webkit-backdrop-filter\s*:`,
		Category: "browser-compatibility",
		Severity: models.SeverityWarning,
		Message:  "backdrop-filter needs a -webkit- prefixed fallback for Safari",
		Once:     true,
	},
	rules.Rule{
		Name:     "has-selector",
		Pattern:  `:has\(`,
		Category: "browser-compatibility",
		Severity: models.SeverityWarning,
		Message:  ":has() is not supported by older browsers",
	},
	rules.Rule{
		Name:     "container-query",
		Pattern:  `@container\b`,
		Category: "browser-compatibility",
		Severity: models.SeverityWarning,
		Message:  "container queries are not supported by older browsers",
		Once:     true,
	},
	rules.Rule{
		Name:     "text-wrap-balance",
		Pattern:  `text-wrap\s*:\s*(balance|pretty)`,
		Category: "browser-compatibility",
		Severity: models.SeverityWarning,
		Message:  "text-wrap: balance/pretty has limited support",
	},
	rules.Rule{
		Name:     "legacy-ms-prefix",
		Pattern:  `-ms-[a-z-]+\s*:`,
		Category: "browser-compatibility",
		Severity: models.SeverityWarning,
		Message:  "-ms- prefixed property targets browsers that are no longer supported",
	},
)

// CompatRules returns the cross-browser rule definitions.
func CompatRules() []rules.Rule { return compatRules.Rules() }

func checkStylesheets(res *models.ValidationResult, files []*scan.File) error {
	focus := false
	var first string
	for _, f := range files {
		content, err := f.Read()
		if err != nil {
			return fmt.Errorf("reading %s: %w", f.Rel, err)
		}
		if first == "" {
			first = f.Rel
		}
		src := string(content)
		checkStylesheet(res, f.Rel, src)
		if strings.Contains(src, ":focus") {
			focus = true
		}
	}
	if first != "" && !focus {
		res.Addf(models.SeverityWarning, "missing-focus-styles", first, 0,
			"no stylesheet defines :focus styles for keyboard users")
	}
	return nil
}

func checkStylesheet(res *models.ValidationResult, file, src string) {
	open, closed := cssdoc.CountBraces(src)
	if open != closed {
		res.Addf(models.SeverityError, "unmatched-braces", file, 0,
			"unmatched braces: %d '{' vs %d '}'", open, closed)
	}

	sheet := cssdoc.Parse(src)
	for _, d := range sheet.Declarations() {
		if want, ok := typoProperties[d.Property]; ok {
			res.Add(models.Issue{Severity: models.SeverityError, Category: "invalid-property", File: file, Line: d.Line,
				Snippet: d.Property, Message: fmt.Sprintf("unknown property %q, did you mean %q?", d.Property, want)})
		}
	}
	for _, line := range sheet.MissingSemicolons {
		res.Addf(models.SeverityWarning, "missing-semicolon", file, line, "declaration appears to be missing a semicolon")
	}

	rules.Report(res, file, compatRules.Apply(src))

	for _, r := range sheet.Rules {
		fg, ok := r.Get("color")
		if !ok {
			continue
		}
		bg, ok := r.Get("background-color")
		if !ok {
			bg, ok = r.Get("background")
		}
		if ok && normalizeColor(fg) != "" && normalizeColor(fg) == normalizeColor(bg) {
			res.Add(models.Issue{Severity: models.SeverityError, Category: "low-contrast", File: file, Line: r.Line,
				Snippet: r.Selector, Message: fmt.Sprintf("text color equals background color (%s)", fg)})
		}
	}

	absolute, relative := 0, 0
	line := 0
	for _, d := range sheet.Declarations() {
		if d.Property != "font-size" {
			continue
		}
		v := strings.ToLower(d.Value)
		switch {
		case strings.HasSuffix(v, "px") || strings.HasSuffix(v, "pt"):
			absolute++
			if line == 0 {
				line = d.Line
			}
		case strings.HasSuffix(v, "rem") || strings.HasSuffix(v, "em") || strings.HasSuffix(v, "%"):
			relative++
		}
	}
	if absolute > 0 && relative == 0 {
		res.Addf(models.SeverityWarning, "absolute-font-units", file, line,
			"font sizes use only absolute units; prefer rem or em so text scales")
	}
}

// namedColors covers the literal spellings used by the contrast heuristic.
var namedColors = map[string]string{
	"white": "#ffffff",
	"black": "#000000",
	"red":   "#ff0000",
}

// normalizeColor lower-cases and expands simple literal colors. Anything else
// (gradients, variables, images) returns "".
func normalizeColor(v string) string {
	v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "!important"))
	v = strings.ToLower(v)
	if n, ok := namedColors[v]; ok {
		return n
	}
	if strings.HasPrefix(v, "#") && !strings.ContainsAny(v, " ()") {
		if len(v) == 4 {
			return "#" + string([]byte{v[1], v[1], v[2], v[2], v[3], v[3]})
		}
		if len(v) == 7 {
			return v
		}
	}
	return ""
}
