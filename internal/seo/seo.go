// Package seo checks search and social metadata on rendered pages and the
// equivalent front matter on Markdown sources.
package seo

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/caxton-dev/sitecheck/internal/htmldoc"
	"github.com/caxton-dev/sitecheck/internal/logging"
	"github.com/caxton-dev/sitecheck/internal/mddoc"
	"github.com/caxton-dev/sitecheck/internal/models"
	"github.com/caxton-dev/sitecheck/internal/projectconfig"
	"github.com/caxton-dev/sitecheck/internal/scan"
	"github.com/caxton-dev/sitecheck/internal/validation"
)

// Descriptor registers the SEO validator.
var Descriptor = models.ValidatorDescriptor{
	Name:        "SEO Validation",
	Key:         "seo",
	Criticality: models.NonCritical,
	Description: "Titles, descriptions, social cards, headings, and structured data",
	ReportFile:  "seo-validation-report.json",
}

// Recommended lengths, in characters.
const (
	MinTitle       = 10
	MaxTitle       = 60
	MinDescription = 50
	MaxDescription = 160
)

var (
	openGraphTags = []string{"og:title", "og:description", "og:type", "og:url"}
	twitterTags   = []string{"twitter:card", "twitter:title", "twitter:description"}
)

// genericLinkText is compared against lower-cased, trimmed link text.
var genericLinkText = map[string]bool{
	"click here": true, "here": true, "read more": true, "more": true, "link": true,
	"this": true, "this link": true, "learn more": true, "click": true, "go": true,
}

// Validator is the SEO validator.
type Validator struct {
	cfg *projectconfig.ProjectConfig
	log *zap.SugaredLogger
}

// New returns an SEO validator. A nil cfg means defaults.
func New(cfg *projectconfig.ProjectConfig) *Validator {
	if cfg == nil {
		cfg = projectconfig.New()
	}
	return &Validator{cfg: cfg, log: logging.For("seo")}
}

// Descriptor implements the orchestrator's validator contract.
func (v *Validator) Descriptor() models.ValidatorDescriptor { return Descriptor }

// Validate checks every HTML page and Markdown source under root.
func (v *Validator) Validate(_ context.Context, root string) (*models.ValidationResult, error) {
	res := models.NewResult(Descriptor)
	opts := scan.Options{ExcludeDirs: v.cfg.Site.ExcludeDirs}

	pages := opts.FindFiles(root, ".html", ".htm")
	pages.LogSkipped(v.log)
	for _, f := range pages.Files {
		content, err := f.Read()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Rel, err)
		}
		doc := htmldoc.Parse(content)
		if doc.First("html") == nil && doc.First("head") == nil {
			// Layout partials and includes carry no page metadata of their own.
			res.Inc("fragments", 1)
			continue
		}
		res.Inc("html_files", 1)
		checkPage(res, f.Rel, doc)
	}

	sources := opts.FindFiles(root, ".md", ".markdown")
	sources.LogSkipped(v.log)
	res.Inc("markdown_files", len(sources.Files))
	for _, f := range sources.Files {
		content, err := f.Read()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Rel, err)
		}
		checkSource(res, f.Rel, mddoc.Parse(content))
	}

	v.log.Infow("seo validation finished",
		"html_files", res.Summary["html_files"], "markdown_files", len(sources.Files), "issues", len(res.Issues))
	return res.Finalize(), nil
}

func checkPage(res *models.ValidationResult, file string, doc *htmldoc.Document) {
	if !doc.HasCharset() {
		res.Addf(models.SeverityWarning, "missing-charset", file, 0, "no <meta charset> declaration")
	}
	if doc.Viewport() == nil {
		res.Addf(models.SeverityWarning, "missing-viewport", file, 0, "no viewport meta tag; page is not mobile friendly")
	}

	if title := doc.First("title"); title == nil || title.Text == "" {
		res.Addf(models.SeverityError, "missing-title", file, 0, "page has no <title>")
	} else {
		checkLength(res, file, title.Line, "title", title.Text, MinTitle, MaxTitle)
	}

	descs := doc.Meta("description")
	switch {
	case len(descs) == 0:
		res.Addf(models.SeverityWarning, "missing-description", file, 0, "no meta description")
	case len(descs) > 1:
		res.Addf(models.SeverityError, "duplicate-description", file, descs[1].Line,
			"%d meta description tags; search engines pick one unpredictably", len(descs))
	default:
		checkLength(res, file, descs[0].Line, "description", descs[0].Get("content"), MinDescription, MaxDescription)
	}

	checkGroup(res, file, doc, "Open Graph", "open-graph", openGraphTags)
	checkGroup(res, file, doc, "Twitter card", "twitter-card", twitterTags)

	canonical := false
	for _, l := range doc.Find("link") {
		if strings.EqualFold(l.Get("rel"), "canonical") && l.Get("href") != "" {
			canonical = true
			break
		}
	}
	if !canonical {
		res.Addf(models.SeverityWarning, "missing-canonical", file, 0, `no <link rel="canonical">`)
	}

	headings := make([]heading, 0, len(doc.Headings()))
	for _, h := range doc.Headings() {
		headings = append(headings, heading{level: htmldoc.HeadingLevel(h.Tag), text: h.Text, line: h.Line})
	}
	checkHeadings(res, file, headings, true)

	for _, img := range doc.Find("img") {
		res.Inc("images", 1)
		alt, ok := img.Attr("alt")
		switch {
		case !ok:
			res.Add(models.Issue{Severity: models.SeverityWarning, Category: "missing-alt-text", File: file, Line: img.Line,
				Snippet: img.Get("src"), Message: "image has no alt text for search indexing"})
		case strings.TrimSpace(alt) == "" && !htmldoc.IsDecorative(img):
			res.Add(models.Issue{Severity: models.SeverityWarning, Category: "empty-alt-text", File: file, Line: img.Line,
				Snippet: img.Get("src"), Message: "content image has empty alt text"})
		default:
			res.Inc("images_with_alt", 1)
		}
	}

	for _, a := range doc.Find("a") {
		checkLinkText(res, file, a.Line, a.Text, a.Get("href"))
	}

	for _, s := range doc.Find("script") {
		if !strings.EqualFold(strings.TrimSpace(s.Get("type")), "application/ld+json") {
			continue
		}
		res.Inc("structured_data", 1)
		checkStructuredData(res, file, s.Line, s.Text)
	}
}

func checkGroup(res *models.ValidationResult, file string, doc *htmldoc.Document, label, category string, tags []string) {
	var missing []string
	for _, t := range tags {
		if len(doc.Meta(t)) == 0 {
			missing = append(missing, t)
		}
	}
	switch {
	case len(missing) == len(tags):
		res.Addf(models.SeverityInfo, "missing-"+category, file, 0, "no %s tags; shared links will have no preview", label)
	case len(missing) > 0:
		res.Add(models.Issue{Severity: models.SeverityWarning, Category: "incomplete-" + category, File: file,
			Snippet: strings.Join(missing, ", "), Message: fmt.Sprintf("%s tags are incomplete", label)})
	}
}

func checkLength(res *models.ValidationResult, file string, line int, what, value string, lo, hi int) {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	if n < lo || n > hi {
		res.Add(models.Issue{Severity: models.SeverityWarning, Category: what + "-length", File: file, Line: line,
			Snippet: value, Message: fmt.Sprintf("%s is %d characters; recommended %d-%d", what, n, lo, hi)})
	}
}

type heading struct {
	level int
	text  string
	line  int
}

// checkHeadings expects exactly one h1 when requireH1 is set, and no skipped
// levels in either case.
func checkHeadings(res *models.ValidationResult, file string, hs []heading, requireH1 bool) {
	h1 := 0
	prev := 0
	for _, h := range hs {
		if h.level == 1 {
			h1++
			if h1 == 2 {
				res.Add(models.Issue{Severity: models.SeverityWarning, Category: "multiple-h1", File: file, Line: h.line,
					Snippet: h.text, Message: "more than one top-level heading"})
			}
		}
		if prev > 0 && h.level > prev+1 {
			res.Add(models.Issue{Severity: models.SeverityWarning, Category: "heading-skip", File: file, Line: h.line,
				Snippet: h.text, Message: fmt.Sprintf("heading level skips from h%d to h%d", prev, h.level)})
		}
		prev = h.level
	}
	if requireH1 && h1 == 0 {
		res.Addf(models.SeverityWarning, "missing-h1", file, 0, "page has no top-level heading")
	}
}

func checkLinkText(res *models.ValidationResult, file string, line int, text, href string) {
	if genericLinkText[strings.ToLower(strings.Trim(strings.TrimSpace(text), ".!:…"))] {
		res.Add(models.Issue{Severity: models.SeverityWarning, Category: "generic-link-text", File: file, Line: line,
			Snippet: text, Message: fmt.Sprintf("link text %q does not describe its target %s", text, href)})
	}
}

func checkStructuredData(res *models.ValidationResult, file string, line int, data string) {
	problems, err := validation.ValidateStructuredData(data)
	if err != nil {
		res.Add(models.Issue{Severity: models.SeverityError, Category: "invalid-structured-data", File: file, Line: line,
			Message: err.Error()})
		return
	}
	for _, p := range problems {
		res.Add(models.Issue{Severity: models.SeverityError, Category: "invalid-structured-data", File: file, Line: line,
			Message: p})
	}
}

// checkSource applies the page checks to a Markdown file's front matter and body.
func checkSource(res *models.ValidationResult, file string, doc *mddoc.Document) {
	dups := doc.DuplicateKeys()
	switch {
	case !doc.HasFrontMatter:
		res.Addf(models.SeverityWarning, "missing-front-matter", file, 1, "no front matter block; title and description cannot be set")
	case len(dups) > 0:
		for _, k := range dups {
			res.Add(models.Issue{Severity: models.SeverityError, Category: "invalid-front-matter", File: file, Line: 1,
				Snippet: k, Message: fmt.Sprintf("front matter key %q is defined more than once", k)})
		}
	case doc.FrontMatterErr != nil:
		res.Addf(models.SeverityError, "invalid-front-matter", file, 1, "front matter does not parse: %v", doc.FrontMatterErr)
	}

	if doc.HasFrontMatter && doc.FrontMatter != nil {
		if title := doc.Title(); title == "" {
			res.Addf(models.SeverityWarning, "missing-title", file, 1, "front matter has no title")
		} else {
			checkLength(res, file, 1, "title", title, MinTitle, MaxTitle)
		}
		if desc := doc.String("description"); desc == "" {
			res.Addf(models.SeverityWarning, "missing-description", file, 1, "front matter has no description")
		} else {
			checkLength(res, file, 1, "description", desc, MinDescription, MaxDescription)
		}
		checkSocial(res, file, doc)
	}

	hs := make([]heading, 0, len(doc.Headings))
	for _, h := range doc.Headings {
		hs = append(hs, heading{level: h.Level, text: h.Text, line: h.Line})
	}
	// Layouts usually render the front matter title as the h1.
	checkHeadings(res, file, hs, doc.String("title") == "")

	for _, l := range doc.Links {
		if l.Image {
			res.Inc("images", 1)
			if strings.TrimSpace(l.Text) == "" {
				res.Add(models.Issue{Severity: models.SeverityWarning, Category: "missing-alt-text", File: file, Line: l.Line,
					Snippet: l.Dest, Message: "image has no alt text for search indexing"})
			} else {
				res.Inc("images_with_alt", 1)
			}
			continue
		}
		checkLinkText(res, file, l.Line, l.Text, l.Dest)
	}
}

// twitterCards are the card types Twitter renders.
var twitterCards = map[string]bool{"summary": true, "summary_large_image": true, "app": true, "player": true}

// checkSocial is the front matter counterpart of the Open Graph, Twitter card,
// and canonical tag checks. Generators derive og:title, og:description, and
// og:url from the title, description, and permalink, so only the keys a page
// has to set itself are looked at.
func checkSocial(res *models.ValidationResult, file string, doc *mddoc.Document) {
	if !hasImage(doc) {
		res.Addf(models.SeverityInfo, "missing-open-graph", file, 1,
			"front matter sets no image; shared links will have no preview image")
	}

	card := doc.String("twitter_card")
	tw, hasTwitter := doc.FrontMatter["twitter"].(map[string]any)
	if c, ok := tw["card"].(string); ok {
		card = strings.TrimSpace(c)
	}
	switch {
	case card == "" && hasTwitter:
		res.Addf(models.SeverityWarning, "incomplete-twitter-card", file, 1, "twitter front matter has no card type")
	case card == "":
		res.Addf(models.SeverityInfo, "missing-twitter-card", file, 1,
			"front matter sets no twitter card; shared links fall back to a plain link")
	case !twitterCards[card]:
		res.Add(models.Issue{Severity: models.SeverityWarning, Category: "incomplete-twitter-card", File: file, Line: 1,
			Snippet: card, Message: fmt.Sprintf("unknown twitter card type %q", card)})
	}

	for _, key := range []string{"canonical_url", "canonical"} {
		raw := doc.String(key)
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			res.Add(models.Issue{Severity: models.SeverityWarning, Category: "invalid-canonical", File: file, Line: 1,
				Snippet: raw, Message: fmt.Sprintf("front matter %s must be an absolute URL", key)})
		}
	}
}

// hasImage accepts image as a path or as a map with a path, a non-empty
// images list, or og_image.
func hasImage(doc *mddoc.Document) bool {
	if doc.String("image") != "" || doc.String("og_image") != "" {
		return true
	}
	if m, ok := doc.FrontMatter["image"].(map[string]any); ok {
		if p, _ := m["path"].(string); strings.TrimSpace(p) != "" {
			return true
		}
	}
	images, _ := doc.FrontMatter["images"].([]any)
	return len(images) > 0
}
