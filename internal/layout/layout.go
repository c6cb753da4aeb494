// Package layout checks responsive-design compliance: the viewport
// declaration, media-query breakpoints, fluid images, reduced-motion support,
// mobile navigation, and common fixed-layout anti-patterns.
package layout

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"

	"github.com/caxton-dev/sitecheck/internal/cssdoc"
	"github.com/caxton-dev/sitecheck/internal/htmldoc"
	"github.com/caxton-dev/sitecheck/internal/logging"
	"github.com/caxton-dev/sitecheck/internal/models"
	"github.com/caxton-dev/sitecheck/internal/projectconfig"
	"github.com/caxton-dev/sitecheck/internal/scan"
)

// Descriptor registers the layout validator.
var Descriptor = models.ValidatorDescriptor{
	Name:        "Responsive Design Validation",
	Key:         "responsive",
	Criticality: models.NonCritical,
	Description: "Viewport, breakpoints, fluid images, reduced motion, and mobile navigation",
	ReportFile:  "responsive-design-report.json",
}

// Suggestions are attached to every result. They never affect status.
var Suggestions = []string{
	"Test on real devices at 320px, 375px, 768px, and 1024px widths",
	"Rotate phones and tablets between portrait and landscape",
	"Zoom to 200% and confirm no content is clipped or overlaps",
	"Navigate every page using only the keyboard on a narrow viewport",
	"Enable reduced motion in the OS and confirm animations stop",
	"Check touch targets are at least 44x44 CSS pixels",
}

// MinZoomScale is the smallest maximum-scale that still lets users zoom.
const MinZoomScale = 2.0

var (
	navClass = regexp2.MustCompile(
		`\b(?:hamburger|burger|menu-toggle|nav-toggle|navbar-toggler|mobile-(?:menu|nav)|menu-button|nav-button|offcanvas)\b`,
		regexp2.IgnoreCase)
	navScript = regexp2.MustCompile(
		`(?:menu|nav)[-_]?toggle|hamburger|aria-expanded|classList\.toggle\(\s*['"][\w-]*(?:open|active|menu|nav|show|visible|expanded)`,
		regexp2.IgnoreCase)
)

// fluidClasses are utility classes from common CSS frameworks that make an
// image scale with its container.
var fluidClasses = []string{"img-fluid", "img-responsive", "responsive", "fluid", "w-full", "max-w-full", "w-100", "pure-img"}

// Validator is the layout validator.
type Validator struct {
	cfg *projectconfig.ProjectConfig
	log *zap.SugaredLogger
}

// New returns a layout validator. A nil cfg means defaults.
func New(cfg *projectconfig.ProjectConfig) *Validator {
	if cfg == nil {
		cfg = projectconfig.New()
	}
	return &Validator{cfg: cfg, log: logging.For("responsive")}
}

// Descriptor implements the orchestrator's validator contract.
func (v *Validator) Descriptor() models.ValidatorDescriptor { return Descriptor }

// site accumulates what the cross-file checks need.
type site struct {
	sheets    []stylesheet
	images    []image
	pages     int
	hasNav    bool
	navSource string
}

type image struct {
	file string
	el   *htmldoc.Element
}

// Validate checks every HTML, CSS, and script file under root.
func (v *Validator) Validate(_ context.Context, root string) (*models.ValidationResult, error) {
	res := models.NewResult(Descriptor)
	opts := scan.Options{ExcludeDirs: v.cfg.Site.ExcludeDirs}
	s := &site{}

	pages := opts.FindFiles(root, ".html", ".htm")
	pages.LogSkipped(v.log)
	for _, f := range pages.Files {
		content, err := f.Read()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Rel, err)
		}
		v.log.Debugw("checking file", "file", f.Rel)
		doc := htmldoc.Parse(content)
		if doc.First("html") != nil || doc.First("head") != nil {
			s.pages++
			checkViewport(res, f.Rel, doc)
		} else {
			res.Inc("fragments", 1)
		}
		s.collect(f.Rel, doc)
	}
	res.Inc("html_files", s.pages)

	styles := opts.FindFiles(root, ".css")
	styles.LogSkipped(v.log)
	res.Inc("css_files", len(styles.Files))
	for _, f := range styles.Files {
		content, err := f.Read()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Rel, err)
		}
		s.sheets = append(s.sheets, stylesheet{file: f.Rel, src: string(content), sheet: cssdoc.Parse(string(content))})
	}

	if !s.hasNav {
		scripts := opts.FindFiles(root, ".js", ".mjs")
		scripts.LogSkipped(v.log)
		for _, f := range scripts.Files {
			content, err := f.Read()
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", f.Rel, err)
			}
			if ok, _ := navScript.MatchString(string(content)); ok {
				s.hasNav, s.navSource = true, f.Rel
				break
			}
		}
	}

	checkBreakpoints(res, s.sheets)
	checkImages(res, s)
	checkMotion(res, s.sheets)
	checkAntiPatterns(res, s.sheets)
	if s.pages > 0 && !s.hasNav {
		res.Addf(models.SeverityWarning, "missing-mobile-navigation", ".", 0,
			"no mobile navigation pattern (menu toggle markup or script) was found")
	}
	if s.hasNav {
		v.log.Debugw("mobile navigation found", "source", s.navSource)
	}

	res.Suggestions = append([]string(nil), Suggestions...)
	v.log.Infow("responsive validation finished",
		"html_files", s.pages, "css_files", len(styles.Files), "issues", len(res.Issues))
	return res.Finalize(), nil
}

// collect gathers images, inline styles, and navigation markers from a page.
func (s *site) collect(file string, doc *htmldoc.Document) {
	for _, img := range doc.Find("img") {
		s.images = append(s.images, image{file: file, el: img})
	}
	for _, st := range doc.Find("style") {
		if st.Text == "" {
			continue
		}
		s.sheets = append(s.sheets, stylesheet{file: file, offset: st.Line - 1, src: st.Text, sheet: cssdoc.Parse(st.Text)})
	}
	if s.hasNav {
		return
	}
	for _, el := range doc.Elements {
		marker := el.Get("class") + " " + el.Get("id")
		if ok, _ := navClass.MatchString(marker); ok {
			s.hasNav, s.navSource = true, file
			return
		}
		if el.Tag == "button" && el.Has("aria-expanded") && el.Has("aria-controls") {
			s.hasNav, s.navSource = true, file
			return
		}
		if el.Tag == "script" && el.Text != "" {
			if ok, _ := navScript.MatchString(el.Text); ok {
				s.hasNav, s.navSource = true, file
				return
			}
		}
	}
}

// viewportDirectives splits "width=device-width, initial-scale=1".
func viewportDirectives(content string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.FieldsFunc(content, func(r rune) bool { return r == ',' || r == ';' }) {
		k, val, _ := strings.Cut(part, "=")
		out[strings.ToLower(strings.TrimSpace(k))] = strings.ToLower(strings.TrimSpace(val))
	}
	return out
}

func checkViewport(res *models.ValidationResult, file string, doc *htmldoc.Document) {
	vp := doc.Viewport()
	if vp == nil {
		res.Addf(models.SeverityError, "missing-viewport", file, 0, "no viewport meta declaration")
		return
	}
	content := vp.Get("content")
	d := viewportDirectives(content)

	if d["width"] != "device-width" {
		res.Add(models.Issue{Severity: models.SeverityError, Category: "viewport-width", File: file, Line: vp.Line,
			Snippet: content, Message: "viewport does not set width=device-width"})
	}
	if _, ok := d["initial-scale"]; !ok {
		res.Add(models.Issue{Severity: models.SeverityWarning, Category: "viewport-initial-scale", File: file, Line: vp.Line,
			Snippet: content, Message: "viewport does not set initial-scale"})
	}

	if us, ok := d["user-scalable"]; ok && (us == "no" || us == "0") {
		res.Add(models.Issue{Severity: models.SeverityError, Category: "viewport-zoom-disabled", File: file, Line: vp.Line,
			Snippet: content, Message: "user-scalable=" + us + " prevents users from zooming"})
	}
	if ms, ok := d["maximum-scale"]; ok {
		if n, err := strconv.ParseFloat(ms, 64); err == nil && n < MinZoomScale {
			res.Add(models.Issue{Severity: models.SeverityError, Category: "viewport-zoom-disabled", File: file, Line: vp.Line,
				Snippet: content, Message: fmt.Sprintf("maximum-scale=%s limits zoom below %gx", ms, MinZoomScale)})
		}
	}
}

// fluid reports whether an image scales with its container on its own.
func fluid(img *htmldoc.Element) bool {
	if img.Has("srcset") || img.Has("sizes") || img.HasClass(fluidClasses...) {
		return true
	}
	if strings.HasSuffix(strings.TrimSpace(img.Get("width")), "%") {
		return true
	}
	style := strings.ReplaceAll(strings.ToLower(img.Get("style")), " ", "")
	return strings.Contains(style, "max-width:100%") || strings.Contains(style, "width:100%")
}

func checkImages(res *models.ValidationResult, s *site) {
	res.Inc("images", len(s.images))
	if globalFluidImages(s.sheets) {
		res.Inc("responsive_images", len(s.images))
		return
	}
	for _, img := range s.images {
		if fluid(img.el) || htmldoc.IsDecorative(img.el) {
			res.Inc("responsive_images", 1)
			continue
		}
		res.Add(models.Issue{Severity: models.SeverityWarning, Category: "non-responsive-image", File: img.file,
			Line: img.el.Line, Snippet: img.el.Get("src"),
			Message: "image has no srcset, fluid width, or responsive class"})
	}
}
