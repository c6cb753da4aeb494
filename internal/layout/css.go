package layout

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/caxton-dev/sitecheck/internal/cssdoc"
	"github.com/caxton-dev/sitecheck/internal/models"
	"github.com/caxton-dev/sitecheck/internal/rules"
)

// MaxFixedWidthPx is the widest fixed pixel width that still fits a phone.
const MaxFixedWidthPx = 480

// stylesheet is a parsed .css file or inline <style> block. offset shifts
// block-relative lines to page lines.
type stylesheet struct {
	file   string
	offset int
	src    string
	sheet  *cssdoc.Sheet
}

// Breakpoint is one width condition from a media query.
type Breakpoint struct {
	// Direction is "min" or "max".
	Direction string
	Value     float64
	// Unit is empty for unitless zero.
	Unit string
}

var breakpointPattern = regexp2.MustCompile(`\b(min|max)-width\s*:\s*([\d.]+)\s*(px|em|rem|vw|ch)?`, regexp2.IgnoreCase)

// ParseBreakpoints extracts every min-width and max-width condition from a
// media query prelude.
func ParseBreakpoints(prelude string) []Breakpoint {
	var out []Breakpoint
	m, _ := breakpointPattern.FindStringMatch(prelude)
	for m != nil {
		g := m.Groups()
		if n, err := strconv.ParseFloat(g[2].String(), 64); err == nil {
			out = append(out, Breakpoint{
				Direction: strings.ToLower(g[1].String()),
				Value:     n,
				Unit:      strings.ToLower(g[3].String()),
			})
		}
		m, _ = breakpointPattern.FindNextMatch(m)
	}
	return out
}

// antiPatterns are text-level checks run over every stylesheet.
var antiPatterns = rules.MustCompile(
	rules.Rule{
		Name:     "full-viewport-width",
		Pattern:  `(?<![\w-])width\s*:\s*100vw`,
		Category: "horizontal-overflow",
		Severity: models.SeverityWarning,
		Message:  "100vw includes the scrollbar and causes horizontal scrolling; use 100%",
	},
	rules.Rule{
		Name:     "tiny-font",
		Pattern:  `font-size\s*:\s*(?:[0-9]|1[01])(?:\.\d+)?px\b`,
		Category: "legibility",
		Severity: models.SeverityWarning,
		Message:  "text smaller than 12px is hard to read on small screens",
	},
)

// Rules exposes the anti-pattern table.
func Rules() []rules.Rule { return antiPatterns.Rules() }

func checkBreakpoints(res *models.ValidationResult, sheets []stylesheet) {
	var minCount, maxCount int
	var units []string
	for _, s := range sheets {
		for _, mq := range s.sheet.Media {
			for _, bp := range ParseBreakpoints(mq.Prelude) {
				res.Inc("breakpoints", 1)
				if bp.Direction == "min" {
					minCount++
				} else {
					maxCount++
				}
				if bp.Unit != "" && !slices.Contains(units, bp.Unit) {
					units = append(units, bp.Unit)
				}
			}
		}
	}
	res.Inc("min_width_queries", minCount)
	res.Inc("max_width_queries", maxCount)

	switch {
	case minCount+maxCount < 2:
	case maxCount >= 2*minCount && maxCount > minCount:
		res.Addf(models.SeverityWarning, "desktop-first-breakpoints", ".", 0,
			"%d of %d breakpoints use max-width; prefer mobile-first min-width queries", maxCount, minCount+maxCount)
	case minCount >= 2*maxCount && minCount > maxCount:
		res.Inc("mobile_first", 1)
	}
	if len(units) > 1 {
		res.Addf(models.SeverityInfo, "mixed-breakpoint-units", ".", 0,
			"breakpoints mix units (%s)", strings.Join(units, ", "))
	}
}

// globalFluidImages reports whether any stylesheet caps img elements at
// their container width.
func globalFluidImages(sheets []stylesheet) bool {
	for _, s := range sheets {
		for _, r := range s.sheet.Rules {
			if r.Media != "" || !selectsImages(r.Selector) {
				continue
			}
			if w, ok := r.Get("max-width"); ok && w == "100%" {
				return true
			}
		}
	}
	return false
}

func selectsImages(selector string) bool {
	for _, part := range strings.Split(selector, ",") {
		fields := strings.Fields(part)
		if len(fields) > 0 && fields[len(fields)-1] == "img" {
			return true
		}
	}
	return false
}

var motionProperties = []string{"animation", "animation-name", "transition", "transition-property"}

func checkMotion(res *models.ValidationResult, sheets []stylesheet) {
	moving := ""
	line := 0
	for _, s := range sheets {
		for _, mq := range s.sheet.Media {
			if strings.Contains(strings.ToLower(mq.Prelude), "prefers-reduced-motion") {
				res.Inc("reduced_motion_queries", 1)
			}
		}
		if moving != "" {
			continue
		}
		for _, r := range s.sheet.Rules {
			for _, d := range r.Declarations {
				if slices.Contains(motionProperties, d.Property) && !strings.EqualFold(d.Value, "none") {
					moving, line = s.file, d.Line+s.offset
					break
				}
			}
			if moving != "" {
				break
			}
		}
	}
	if moving != "" && res.Summary["reduced_motion_queries"] == 0 {
		res.Addf(models.SeverityWarning, "missing-reduced-motion", moving, line,
			"animations or transitions are not disabled under prefers-reduced-motion")
	}
}

func checkAntiPatterns(res *models.ValidationResult, sheets []stylesheet) {
	cleared := false
	type floated struct {
		file string
		line int
		sel  string
	}
	var floats []floated

	for _, s := range sheets {
		for _, r := range s.sheet.Rules {
			if strings.Contains(strings.ToLower(r.Selector), "clearfix") {
				cleared = true
			}
			if _, ok := r.Get("clear"); ok {
				cleared = true
			}
			if d, ok := r.Get("display"); ok && d == "flow-root" {
				cleared = true
			}
			if f, ok := r.Get("float"); ok && (f == "left" || f == "right") {
				floats = append(floats, floated{s.file, r.Line + s.offset, r.Selector})
			}
			if strings.Contains(strings.ToLower(r.Media), "min-width") {
				continue
			}
			for _, d := range r.Declarations {
				if d.Property != "width" && d.Property != "min-width" {
					continue
				}
				px, ok := strings.CutSuffix(strings.ToLower(d.Value), "px")
				if !ok {
					continue
				}
				if n, err := strconv.ParseFloat(px, 64); err == nil && n > MaxFixedWidthPx {
					res.Add(models.Issue{Severity: models.SeverityWarning, Category: "fixed-width", File: s.file,
						Line: d.Line + s.offset, Snippet: r.Selector,
						Message: fmt.Sprintf("fixed width %s is wider than a phone screen (%dpx)", d.Value, MaxFixedWidthPx)})
				}
			}
		}
		for _, m := range antiPatterns.Apply(s.src) {
			m.Line += s.offset
			rules.Report(res, s.file, []rules.Match{m})
		}
	}
	res.Inc("floats", len(floats))

	if cleared {
		return
	}
	for _, f := range floats {
		res.Add(models.Issue{Severity: models.SeverityWarning, Category: "float-without-clear", File: f.file,
			Line: f.line, Snippet: f.sel, Message: "floated element with no clear or clearfix anywhere in the stylesheets"})
	}
}
